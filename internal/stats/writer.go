// Package stats renders run telemetry: per-generation CSV logs with an
// embedded end-of-run genome dump, fitness diagnostics, and the on-disk
// artifact layout of a run.
package stats

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"gephyra/internal/genotype"
	"gephyra/internal/model"
)

// DefaultFlushEvery is the number of generation lines buffered between
// flushes to the underlying writer.
const DefaultFlushEvery = 125

// WriterOptions configures one population's generation log.
type WriterOptions struct {
	// Population labels the terminator block (Weights<p>).
	Population int

	// Environments is the number of episode groups per line. Zero
	// selects 1.
	Environments int

	// Seed and Aware are recorded in the preamble comment.
	Seed  int64
	Aware bool

	// FlushEvery overrides DefaultFlushEvery when positive.
	FlushEvery int

	// CreatedAt stamps the preamble. Zero selects the current UTC time.
	CreatedAt time.Time
}

// GenerationWriter emits one population's evolution log: a preamble
// comment, a header, one CSV line per generation, and a terminator
// block carrying the best genome and the final seed. The genome block
// is written in the genotype codec format, so genotype.Parse reads it
// straight out of the finished file.
type GenerationWriter struct {
	w        *bufio.Writer
	opts     WriterOptions
	lines    int
	finished bool
}

// NewGenerationWriter wraps w and immediately writes the preamble and
// the column header.
func NewGenerationWriter(w io.Writer, opts WriterOptions) (*GenerationWriter, error) {
	if w == nil {
		return nil, fmt.Errorf("stats: writer is required")
	}
	if opts.Population < 0 {
		return nil, fmt.Errorf("stats: population index %d is negative", opts.Population)
	}
	if opts.Environments == 0 {
		opts.Environments = 1
	}
	if opts.Environments < 1 {
		return nil, fmt.Errorf("stats: environments must be positive, got %d", opts.Environments)
	}
	if opts.FlushEvery == 0 {
		opts.FlushEvery = DefaultFlushEvery
	}
	if opts.FlushEvery < 1 {
		return nil, fmt.Errorf("stats: flush interval must be positive, got %d", opts.FlushEvery)
	}
	if opts.CreatedAt.IsZero() {
		opts.CreatedAt = time.Now().UTC()
	}

	gw := &GenerationWriter{w: bufio.NewWriter(w), opts: opts}
	if err := gw.writeHeader(); err != nil {
		return nil, err
	}
	return gw, nil
}

func (gw *GenerationWriter) writeHeader() error {
	if _, err := fmt.Fprintf(gw.w, "# created %s seed %d aware %s\n",
		gw.opts.CreatedAt.UTC().Format(time.RFC3339), gw.opts.Seed, boolMark(gw.opts.Aware)); err != nil {
		return err
	}
	var sb strings.Builder
	sb.WriteString("gen")
	for i := 1; i <= gw.opts.Environments; i++ {
		fmt.Fprintf(&sb,
			",fitness%d,movesMade%d,isAlive%d,hasCarried%d,droppedInRiver%d,numStones%d,targetsFound%d,successful%d",
			i, i, i, i, i, i, i, i)
	}
	if gw.opts.Environments > 1 {
		sb.WriteString(",totalFitness")
	}
	sb.WriteByte('\n')
	if _, err := gw.w.WriteString(sb.String()); err != nil {
		return err
	}
	return gw.w.Flush()
}

// Write appends one generation line. The record must carry exactly one
// episode per configured environment.
func (gw *GenerationWriter) Write(record model.GenerationRecord) error {
	if gw.finished {
		return fmt.Errorf("stats: writer already finished")
	}
	if len(record.Episodes) != gw.opts.Environments {
		return fmt.Errorf("stats: record carries %d episodes, want %d",
			len(record.Episodes), gw.opts.Environments)
	}

	var sb strings.Builder
	sb.WriteString(strconv.Itoa(record.Generation))
	for _, ep := range record.Episodes {
		sb.WriteByte(',')
		sb.WriteString(formatFitness(ep.Fitness))
		sb.WriteByte(',')
		sb.WriteString(strconv.Itoa(ep.Moves))
		sb.WriteByte(',')
		sb.WriteString(boolMark(ep.Alive))
		sb.WriteByte(',')
		sb.WriteString(boolMark(ep.HasCarried))
		sb.WriteByte(',')
		sb.WriteString(boolMark(ep.DroppedInRiver))
		sb.WriteByte(',')
		sb.WriteString(strconv.Itoa(ep.StonesPlaced))
		sb.WriteByte(',')
		sb.WriteString(strconv.Itoa(ep.ResourcesFound))
		sb.WriteByte(',')
		sb.WriteString(boolMark(ep.AchievedGoal))
	}
	if gw.opts.Environments > 1 {
		sb.WriteByte(',')
		sb.WriteString(formatFitness(record.CumulativeFitness))
	}
	sb.WriteByte('\n')

	if _, err := gw.w.WriteString(sb.String()); err != nil {
		return err
	}
	gw.lines++
	if gw.lines%gw.opts.FlushEvery == 0 {
		return gw.w.Flush()
	}
	return nil
}

// Lines reports how many generation lines have been written.
func (gw *GenerationWriter) Lines() int { return gw.lines }

// Finish writes the terminator block and flushes everything. The seed
// argument is the stream's final seed, which differs from the preamble
// seed after a mid-run reseed.
func (gw *GenerationWriter) Finish(best model.Genome, seed int64) error {
	if gw.finished {
		return fmt.Errorf("stats: writer already finished")
	}
	gw.finished = true

	p := gw.opts.Population
	if _, err := fmt.Fprintf(gw.w, "//\nWeights%d------------------------\n", p); err != nil {
		return err
	}
	if err := genotype.Encode(gw.w, best); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(gw.w, "End of Weights%d------------------------\n//\nSeed: %d\n", p, seed); err != nil {
		return err
	}
	return gw.w.Flush()
}

// Flush pushes buffered lines without finishing the log.
func (gw *GenerationWriter) Flush() error {
	return gw.w.Flush()
}

func boolMark(b bool) string {
	if b {
		return "t"
	}
	return "f"
}

func formatFitness(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
