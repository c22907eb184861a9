package genotype

import (
	"math/rand"
	"reflect"
	"testing"

	"gephyra/internal/model"
)

func TestMedianOfIdenticalPopulationReturnsSameGenome(t *testing.T) {
	schema := model.DefaultSchema()
	base, err := NewRandom(schema, rand.New(rand.NewSource(31)))
	if err != nil {
		t.Fatalf("new random genome: %v", err)
	}
	base.Modulation[1][2] = true

	population := make([]model.Genome, 7)
	for i := range population {
		population[i] = CloneGenome(base)
	}
	got, err := Median(population, schema)
	if err != nil {
		t.Fatalf("median: %v", err)
	}
	if !reflect.DeepEqual(got, base) {
		t.Fatal("median of identical genomes differs from the member genome")
	}
}

func TestMedianTakesUpperMedian(t *testing.T) {
	schema := model.Schema{LayerSizes: []int{1, 1}}
	population := make([]model.Genome, 0, 4)
	for _, v := range []float64{4, 1, 3, 2} {
		population = append(population, model.Genome{
			Weights:    [][][]float64{{{v}}},
			Modulation: [][]bool{},
		})
	}
	got, err := Median(population, schema)
	if err != nil {
		t.Fatalf("median: %v", err)
	}
	// sorted values are [1 2 3 4]; the upper median sits at index 4/2
	if got.Weights[0][0][0] != 3 {
		t.Fatalf("expected upper median 3, got %f", got.Weights[0][0][0])
	}
}

func TestMedianFlagsMajorityVote(t *testing.T) {
	schema := model.Schema{LayerSizes: []int{1, 2, 1}}
	member := func(first, second bool) model.Genome {
		return model.Genome{
			Weights:    [][][]float64{{{0, 0}}, {{0}, {0}}},
			Modulation: [][]bool{{first, second}},
		}
	}
	population := []model.Genome{
		member(true, true),
		member(true, false),
		member(true, false),
		member(false, false),
		member(false, true),
	}
	got, err := Median(population, schema)
	if err != nil {
		t.Fatalf("median: %v", err)
	}
	if !got.Modulation[0][0] {
		t.Fatal("three of five set the first flag, majority vote should keep it")
	}
	if got.Modulation[0][1] {
		t.Fatal("two of five set the second flag, majority vote should clear it")
	}
}

func TestMedianFlagTieClears(t *testing.T) {
	schema := model.Schema{LayerSizes: []int{1, 1, 1}}
	member := func(flag bool) model.Genome {
		return model.Genome{
			Weights:    [][][]float64{{{0}}, {{0}}},
			Modulation: [][]bool{{flag}},
		}
	}
	population := []model.Genome{member(true), member(true), member(false), member(false)}
	got, err := Median(population, schema)
	if err != nil {
		t.Fatalf("median: %v", err)
	}
	if got.Modulation[0][0] {
		t.Fatal("an exact tie should leave the flag unset")
	}
}

func TestMedianRejectsEmptyPopulation(t *testing.T) {
	if _, err := Median(nil, model.DefaultSchema()); err == nil {
		t.Fatal("expected error for empty population")
	}
}

func TestMedianRejectsMismatchedMember(t *testing.T) {
	schema := model.DefaultSchema()
	ok, err := NewRandom(schema, rand.New(rand.NewSource(37)))
	if err != nil {
		t.Fatalf("new random genome: %v", err)
	}
	bad, err := NewRandom(model.Schema{LayerSizes: []int{2, 2}}, rand.New(rand.NewSource(38)))
	if err != nil {
		t.Fatalf("new mismatched genome: %v", err)
	}
	if _, err := Median([]model.Genome{ok, bad}, schema); err == nil {
		t.Fatal("expected error for member with a different layer schedule")
	}
}
