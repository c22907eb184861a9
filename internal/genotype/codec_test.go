package genotype

import (
	"errors"
	"math/rand"
	"reflect"
	"strings"
	"testing"

	"gephyra/internal/model"
)

func TestCodecRoundTrip(t *testing.T) {
	schema := model.DefaultSchema()
	g, err := NewRandom(schema, rand.New(rand.NewSource(41)))
	if err != nil {
		t.Fatalf("new random genome: %v", err)
	}
	g.Modulation[0][3] = true
	g.Modulation[2][1] = true

	text := EncodeToString(g)
	parsed, err := Parse(strings.NewReader(text), schema)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(parsed) != 1 {
		t.Fatalf("expected 1 genome, got %d", len(parsed))
	}
	if !reflect.DeepEqual(parsed[0], g) {
		t.Fatal("round-tripped genome differs from the original")
	}
}

func TestCodecRoundTripsMultipleGenomes(t *testing.T) {
	schema := model.DefaultSchema()
	rng := rand.New(rand.NewSource(43))
	genomes := make([]model.Genome, 3)
	for i := range genomes {
		g, err := NewRandom(schema, rng)
		if err != nil {
			t.Fatalf("new random genome: %v", err)
		}
		genomes[i] = g
	}
	parsed, err := Parse(strings.NewReader(EncodeToString(genomes...)), schema)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(parsed) != len(genomes) {
		t.Fatalf("expected %d genomes, got %d", len(genomes), len(parsed))
	}
	for i := range genomes {
		if !reflect.DeepEqual(parsed[i], genomes[i]) {
			t.Fatalf("genome %d did not round-trip", i)
		}
	}
}

func TestParseIgnoresSurroundingText(t *testing.T) {
	schema := model.DefaultSchema()
	g, err := NewRandom(schema, rand.New(rand.NewSource(47)))
	if err != nil {
		t.Fatalf("new random genome: %v", err)
	}
	var sb strings.Builder
	sb.WriteString("gen,fitness1,movesMade1\n")
	sb.WriteString("1,42.5,100,t\n")
	sb.WriteString("//\n")
	sb.WriteString("Weights0------------------------\n")
	sb.WriteString(EncodeToString(g))
	sb.WriteString("End of Weights0------------------------\n")
	sb.WriteString("//\n")
	sb.WriteString("Seed: 123456\n")

	parsed, err := Parse(strings.NewReader(sb.String()), schema)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(parsed) != 1 {
		t.Fatalf("expected 1 genome, got %d", len(parsed))
	}
	if !reflect.DeepEqual(parsed[0], g) {
		t.Fatal("genome embedded in a stats file did not round-trip")
	}
}

func TestParseRejectsMissingRow(t *testing.T) {
	schema := model.DefaultSchema()
	g, err := NewRandom(schema, rand.New(rand.NewSource(53)))
	if err != nil {
		t.Fatalf("new random genome: %v", err)
	}
	lines := strings.Split(strings.TrimRight(EncodeToString(g), "\n"), "\n")
	// drop the first matrix row after the W0 label
	tampered := strings.Join(append(lines[:2:2], lines[3:]...), "\n")

	_, err = Parse(strings.NewReader(tampered), schema)
	if !errors.Is(err, ErrMalformedGenome) {
		t.Fatalf("expected ErrMalformedGenome, got %v", err)
	}
}

func TestParseRejectsMissingLayer(t *testing.T) {
	schema := model.DefaultSchema()
	g, err := NewRandom(schema, rand.New(rand.NewSource(59)))
	if err != nil {
		t.Fatalf("new random genome: %v", err)
	}
	text := EncodeToString(g)
	// remove the final weight layer entirely
	idx := strings.Index(text, "W3:")
	endIdx := strings.Index(text, "N0:")
	tampered := text[:idx] + text[endIdx:]

	_, err = Parse(strings.NewReader(tampered), schema)
	if !errors.Is(err, ErrMalformedGenome) {
		t.Fatalf("expected ErrMalformedGenome, got %v", err)
	}
}

func TestParseRejectsBadFlagValue(t *testing.T) {
	schema := model.DefaultSchema()
	g, err := NewRandom(schema, rand.New(rand.NewSource(61)))
	if err != nil {
		t.Fatalf("new random genome: %v", err)
	}
	text := strings.Replace(EncodeToString(g), "N0: [0", "N0: [2", 1)

	_, err = Parse(strings.NewReader(text), schema)
	if !errors.Is(err, ErrMalformedGenome) {
		t.Fatalf("expected ErrMalformedGenome, got %v", err)
	}
}

func TestParseRejectsUnterminatedBlock(t *testing.T) {
	schema := model.DefaultSchema()
	g, err := NewRandom(schema, rand.New(rand.NewSource(67)))
	if err != nil {
		t.Fatalf("new random genome: %v", err)
	}
	text := strings.Replace(EncodeToString(g), "0 end\n", "", 1)

	_, err = Parse(strings.NewReader(text), schema)
	if !errors.Is(err, ErrMalformedGenome) {
		t.Fatalf("expected ErrMalformedGenome, got %v", err)
	}
}

func TestParseEmptyInputYieldsNoGenomes(t *testing.T) {
	parsed, err := Parse(strings.NewReader("no blocks here\n"), model.DefaultSchema())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(parsed) != 0 {
		t.Fatalf("expected no genomes, got %d", len(parsed))
	}
}
