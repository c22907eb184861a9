package stats

import (
	"bytes"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"gephyra/internal/genotype"
	"gephyra/internal/model"
)

func testSchema() model.Schema {
	return model.Schema{LayerSizes: []int{2, 3, 2}}
}

func testGenome(t *testing.T, seed int64) model.Genome {
	t.Helper()
	g, err := genotype.NewRandom(testSchema(), rand.New(rand.NewSource(seed)))
	if err != nil {
		t.Fatalf("NewRandom: %v", err)
	}
	return g
}

func episode(fitness float64, moves int) model.EpisodeStats {
	return model.EpisodeStats{
		Fitness:        fitness,
		Moves:          moves,
		Alive:          true,
		HasCarried:     false,
		DroppedInRiver: false,
		StonesPlaced:   2,
		ResourcesFound: 1,
		AchievedGoal:   true,
	}
}

func TestGenerationWriterSingleEnvironmentShape(t *testing.T) {
	var buf bytes.Buffer
	created := time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC)
	gw, err := NewGenerationWriter(&buf, WriterOptions{
		Population:   0,
		Environments: 1,
		Seed:         99,
		FlushEvery:   1,
		CreatedAt:    created,
	})
	if err != nil {
		t.Fatalf("NewGenerationWriter: %v", err)
	}

	if err := gw.Write(model.GenerationRecord{
		Generation: 1,
		Episodes:   []model.EpisodeStats{episode(12.5, 10)},
	}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want preamble, header and one record", len(lines))
	}
	if lines[0] != "# created 2025-03-09T12:00:00Z seed 99 aware f" {
		t.Fatalf("preamble = %q", lines[0])
	}
	wantHeader := "gen,fitness1,movesMade1,isAlive1,hasCarried1,droppedInRiver1,numStones1,targetsFound1,successful1"
	if lines[1] != wantHeader {
		t.Fatalf("header = %q, want %q", lines[1], wantHeader)
	}
	if lines[2] != "1,12.5,10,t,f,f,2,1,t" {
		t.Fatalf("record = %q", lines[2])
	}
}

func TestGenerationWriterMultiEnvironmentAddsTotalFitness(t *testing.T) {
	var buf bytes.Buffer
	gw, err := NewGenerationWriter(&buf, WriterOptions{
		Environments: 2,
		Aware:        true,
		FlushEvery:   1,
		CreatedAt:    time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("NewGenerationWriter: %v", err)
	}

	if err := gw.Write(model.GenerationRecord{
		Generation:        7,
		Episodes:          []model.EpisodeStats{episode(1.5, 3), episode(2.25, 4)},
		CumulativeFitness: 3.75,
	}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if !strings.HasSuffix(lines[0], "aware t") {
		t.Fatalf("preamble %q does not record awareness", lines[0])
	}
	if !strings.HasSuffix(lines[1], ",fitness2,movesMade2,isAlive2,hasCarried2,droppedInRiver2,numStones2,targetsFound2,successful2,totalFitness") {
		t.Fatalf("header %q lacks the second group or the total column", lines[1])
	}
	if lines[2] != "7,1.5,3,t,f,f,2,1,t,2.25,4,t,f,f,2,1,t,3.75" {
		t.Fatalf("record = %q", lines[2])
	}
}

func TestGenerationWriterRejectsWrongEpisodeCount(t *testing.T) {
	var buf bytes.Buffer
	gw, err := NewGenerationWriter(&buf, WriterOptions{Environments: 2, FlushEvery: 1})
	if err != nil {
		t.Fatalf("NewGenerationWriter: %v", err)
	}
	err = gw.Write(model.GenerationRecord{
		Generation: 1,
		Episodes:   []model.EpisodeStats{episode(1, 1)},
	})
	if err == nil {
		t.Fatal("expected an error for a one-episode record in a two-environment log")
	}
}

func TestGenerationWriterBuffersUntilTheFlushInterval(t *testing.T) {
	var buf bytes.Buffer
	gw, err := NewGenerationWriter(&buf, WriterOptions{
		Environments: 1,
		FlushEvery:   3,
		CreatedAt:    time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("NewGenerationWriter: %v", err)
	}

	headerOnly := buf.Len()
	for gen := 1; gen <= 2; gen++ {
		if err := gw.Write(model.GenerationRecord{
			Generation: gen,
			Episodes:   []model.EpisodeStats{episode(float64(gen), gen)},
		}); err != nil {
			t.Fatalf("Write %d: %v", gen, err)
		}
	}
	if buf.Len() != headerOnly {
		t.Fatal("records reached the writer before the flush interval")
	}

	if err := gw.Write(model.GenerationRecord{
		Generation: 3,
		Episodes:   []model.EpisodeStats{episode(3, 3)},
	}); err != nil {
		t.Fatalf("Write 3: %v", err)
	}
	if buf.Len() == headerOnly {
		t.Fatal("the third record did not trigger a flush")
	}
	if got := gw.Lines(); got != 3 {
		t.Fatalf("Lines() = %d, want 3", got)
	}
}

func TestGenerationWriterFinishEmbedsAParsableGenome(t *testing.T) {
	var buf bytes.Buffer
	gw, err := NewGenerationWriter(&buf, WriterOptions{
		Population:   1,
		Environments: 1,
		Seed:         7,
		FlushEvery:   1,
		CreatedAt:    time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("NewGenerationWriter: %v", err)
	}
	for gen := 1; gen <= 3; gen++ {
		if err := gw.Write(model.GenerationRecord{
			Generation: gen,
			Episodes:   []model.EpisodeStats{episode(float64(gen)+0.5, gen)},
		}); err != nil {
			t.Fatalf("Write %d: %v", gen, err)
		}
	}

	best := testGenome(t, 31)
	if err := gw.Finish(best, 4242); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"//\nWeights1------------------------\n",
		"End of Weights1------------------------\n//\nSeed: 4242\n",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output lacks %q:\n%s", want, out)
		}
	}
	if !strings.HasSuffix(out, "Seed: 4242\n") {
		t.Fatal("the seed line is not the final line")
	}

	parsed, err := genotype.Parse(bytes.NewReader(buf.Bytes()), testSchema())
	if err != nil {
		t.Fatalf("Parse over the finished log: %v", err)
	}
	if len(parsed) != 1 {
		t.Fatalf("parsed %d genomes out of the log, want 1", len(parsed))
	}
	if !reflect.DeepEqual(parsed[0], best) {
		t.Fatal("genome did not survive the log round-trip")
	}

	if err := gw.Write(model.GenerationRecord{
		Generation: 4,
		Episodes:   []model.EpisodeStats{episode(4, 4)},
	}); err == nil {
		t.Fatal("expected an error writing after Finish")
	}
}

func TestReadGenerationSeriesSkipsDecorations(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "generations-agent0.csv")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create log: %v", err)
	}
	gw, err := NewGenerationWriter(f, WriterOptions{
		Environments: 2,
		Seed:         1,
		FlushEvery:   1,
		CreatedAt:    time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("NewGenerationWriter: %v", err)
	}
	want := []float64{1.5, 2.5, 3.5}
	for i, fit := range want {
		if err := gw.Write(model.GenerationRecord{
			Generation:        i + 1,
			Episodes:          []model.EpisodeStats{episode(fit, i), episode(fit+1, i)},
			CumulativeFitness: 2*fit + 1,
		}); err != nil {
			t.Fatalf("Write %d: %v", i, err)
		}
	}
	if err := gw.Finish(testGenome(t, 5), 1); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close log: %v", err)
	}

	got, err := ReadGenerationSeries(path)
	if err != nil {
		t.Fatalf("ReadGenerationSeries: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("series = %v, want %v", got, want)
	}
}

func TestDiagnose(t *testing.T) {
	d, err := Diagnose([]float64{2, 4, 6})
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if d.Count != 3 || d.Mean != 4 || d.Min != 2 || d.Max != 6 || d.BestIndex != 2 {
		t.Fatalf("diagnostics = %+v", d)
	}
	if math.Abs(d.StdDev-2) > 1e-12 {
		t.Fatalf("stddev = %v, want 2", d.StdDev)
	}

	single, err := Diagnose([]float64{5})
	if err != nil {
		t.Fatalf("Diagnose single: %v", err)
	}
	if single.StdDev != 0 || single.BestIndex != 0 {
		t.Fatalf("single diagnostics = %+v", single)
	}

	if _, err := Diagnose(nil); err == nil {
		t.Fatal("expected an error for an empty slice")
	}
}
