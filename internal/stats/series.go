package stats

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"
)

// ReadGenerationSeries extracts the first fitness column from a
// generation log. The parse is deliberately lax: the preamble, the
// header, the terminator block and the embedded genome dump are all
// skipped, so the reader works on partial logs and on finished ones
// alike.
func ReadGenerationSeries(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readGenerationSeries(f)
}

func readGenerationSeries(r io.Reader) ([]float64, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	series := make([]float64, 0, 128)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) < 2 {
			continue
		}
		if _, err := strconv.Atoi(strings.TrimSpace(fields[0])); err != nil {
			// header, banner or genome text
			continue
		}
		fitness, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
		if err != nil {
			continue
		}
		series = append(series, fitness)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return series, nil
}
