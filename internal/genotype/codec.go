package genotype

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gephyra/internal/model"
)

// ErrMalformedGenome reports a structural mismatch in a genome text file:
// wrong layer count, wrong matrix dimensions, or an unreadable value. The
// parse fails rather than truncating or padding.
var ErrMalformedGenome = errors.New("malformed genome file")

// Encode writes genomes in the layer-labelled text block format:
//
//	0 start
//	W0:
//	[w, w, ...]
//	...
//	N0: [0, 1, ...]
//	0 end
//
// Weight values round-trip through float64 text precision; flags are 0/1.
func Encode(w io.Writer, genomes ...model.Genome) error {
	bw := bufio.NewWriter(w)
	for idx, g := range genomes {
		if _, err := fmt.Fprintf(bw, "%d start\n", idx); err != nil {
			return err
		}
		for i, layer := range g.Weights {
			if _, err := fmt.Fprintf(bw, "W%d:\n", i); err != nil {
				return err
			}
			for _, row := range layer {
				if _, err := bw.WriteString(formatRow(row) + "\n"); err != nil {
					return err
				}
			}
		}
		for i, flags := range g.Modulation {
			if _, err := fmt.Fprintf(bw, "N%d: %s\n", i, formatFlags(flags)); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(bw, "%d end\n", idx); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// EncodeToString renders genomes with Encode into a string.
func EncodeToString(genomes ...model.Genome) string {
	var sb strings.Builder
	// strings.Builder writes cannot fail
	_ = Encode(&sb, genomes...)
	return sb.String()
}

// Parse reads every genome block from r, validating each against the
// schema. Lines outside "start"/"end" blocks are ignored, so stats files
// that append a genome dump after CSV rows parse directly. Inside a block
// the structure is strict: transition matrices W0..Wn in order with exact
// row and column counts, then one N line per hidden layer.
func Parse(r io.Reader, schema model.Schema) ([]model.Genome, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var genomes []model.Genome
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if !isBlockStart(line) {
			continue
		}
		g, err := parseBlock(sc, &lineNo, schema)
		if err != nil {
			return nil, err
		}
		genomes = append(genomes, g)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return genomes, nil
}

// ParseFile opens path and parses it with Parse.
func ParseFile(path string, schema model.Schema) ([]model.Genome, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f, schema)
}

func isBlockStart(line string) bool {
	fields := strings.Fields(line)
	return len(fields) == 2 && fields[1] == "start"
}

func isBlockEnd(line string) bool {
	fields := strings.Fields(line)
	return len(fields) == 2 && fields[1] == "end"
}

func parseBlock(sc *bufio.Scanner, lineNo *int, schema model.Schema) (model.Genome, error) {
	g := model.Genome{
		Weights:    make([][][]float64, schema.Transitions()),
		Modulation: make([][]bool, schema.HiddenLayers()),
	}
	nextLine := func() (string, error) {
		for sc.Scan() {
			*lineNo++
			line := strings.TrimSpace(sc.Text())
			if line == "" || strings.HasPrefix(line, "--") {
				continue
			}
			return line, nil
		}
		if err := sc.Err(); err != nil {
			return "", err
		}
		return "", fmt.Errorf("%w: line %d: block not terminated", ErrMalformedGenome, *lineNo)
	}

	for i := 0; i < schema.Transitions(); i++ {
		label, err := nextLine()
		if err != nil {
			return model.Genome{}, err
		}
		if label != fmt.Sprintf("W%d:", i) {
			return model.Genome{}, fmt.Errorf("%w: line %d: expected label W%d:, got %q", ErrMalformedGenome, *lineNo, i, label)
		}
		rows, cols := schema.WeightShape(i)
		layer := make([][]float64, rows)
		for r := 0; r < rows; r++ {
			line, err := nextLine()
			if err != nil {
				return model.Genome{}, err
			}
			row, err := parseRow(line, cols)
			if err != nil {
				return model.Genome{}, fmt.Errorf("%w: line %d: W%d row %d: %v", ErrMalformedGenome, *lineNo, i, r, err)
			}
			layer[r] = row
		}
		g.Weights[i] = layer
	}
	for i := 0; i < schema.HiddenLayers(); i++ {
		line, err := nextLine()
		if err != nil {
			return model.Genome{}, err
		}
		prefix := fmt.Sprintf("N%d:", i)
		if !strings.HasPrefix(line, prefix) {
			return model.Genome{}, fmt.Errorf("%w: line %d: expected label %s, got %q", ErrMalformedGenome, *lineNo, prefix, line)
		}
		flags, err := parseFlags(strings.TrimSpace(strings.TrimPrefix(line, prefix)), schema.LayerSizes[i+1])
		if err != nil {
			return model.Genome{}, fmt.Errorf("%w: line %d: N%d: %v", ErrMalformedGenome, *lineNo, i, err)
		}
		g.Modulation[i] = flags
	}
	terminator, err := nextLine()
	if err != nil {
		return model.Genome{}, err
	}
	if !isBlockEnd(terminator) {
		return model.Genome{}, fmt.Errorf("%w: line %d: expected block end, got %q", ErrMalformedGenome, *lineNo, terminator)
	}
	return g, nil
}

func parseRow(line string, cols int) ([]float64, error) {
	if !strings.HasPrefix(line, "[") || !strings.HasSuffix(line, "]") {
		return nil, fmt.Errorf("row is not bracketed: %q", line)
	}
	parts := strings.Split(strings.TrimSuffix(strings.TrimPrefix(line, "["), "]"), ",")
	if len(parts) != cols {
		return nil, fmt.Errorf("expected %d values, got %d", cols, len(parts))
	}
	row := make([]float64, cols)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("value %d: %v", i, err)
		}
		row[i] = v
	}
	return row, nil
}

func parseFlags(line string, size int) ([]bool, error) {
	if !strings.HasPrefix(line, "[") || !strings.HasSuffix(line, "]") {
		return nil, fmt.Errorf("flag vector is not bracketed: %q", line)
	}
	parts := strings.Split(strings.TrimSuffix(strings.TrimPrefix(line, "["), "]"), ",")
	if len(parts) != size {
		return nil, fmt.Errorf("expected %d flags, got %d", size, len(parts))
	}
	flags := make([]bool, size)
	for i, p := range parts {
		switch strings.TrimSpace(p) {
		case "0":
			flags[i] = false
		case "1":
			flags[i] = true
		default:
			return nil, fmt.Errorf("flag %d is not 0 or 1: %q", i, strings.TrimSpace(p))
		}
	}
	return flags, nil
}

func formatRow(row []float64) string {
	parts := make([]string, len(row))
	for i, v := range row {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func formatFlags(flags []bool) string {
	parts := make([]string, len(flags))
	for i, f := range flags {
		if f {
			parts[i] = "1"
		} else {
			parts[i] = "0"
		}
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
