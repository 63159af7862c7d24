// Package data loads raw tick files from disk and gates them for quality
// before they enter the pipeline. The on-disk format and loading shape
// follow the teacher's historical Store (internal/data/store.go): a
// directory-rooted reader that parses one file per pair/year. The
// quality gate is adapted from the teacher's DataQualityValidator
// (internal/data/quality.go), reduced from a 0-100 advisory score meant
// for a human dashboard to a hard accept/reject boundary, since an
// unusable pair/year here must fail the run with a typed error rather
// than surface a report nobody reads.
package data

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/quantlab/fxlab/internal/errs"
	"github.com/quantlab/fxlab/pkg/types"
)

// Loader reads tick files from a directory tree laid out as
// <dataDir>/<pair>/<year>.csv, one "timestampNS,bid,ask" row per tick.
type Loader struct {
	dataDir string
}

// NewLoader creates a Loader rooted at dataDir.
func NewLoader(dataDir string) *Loader {
	return &Loader{dataDir: dataDir}
}

// Path returns the tick file path for a pair/year.
func (l *Loader) Path(pair string, year int) string {
	return filepath.Join(l.dataDir, pair, fmt.Sprintf("%d.csv", year))
}

// Load parses the tick file for pair/year into a monotonically
// non-decreasing tick slice, or an *errs.InputError if the file is
// missing, empty, or malformed.
func (l *Loader) Load(pair string, year int) ([]types.Tick, error) {
	path := l.Path(pair, year)
	f, err := os.Open(path)
	if err != nil {
		return nil, &errs.InputError{Pair: pair, Year: year, Reason: fmt.Sprintf("open %s: %v", path, err)}
	}
	defer f.Close()

	var ticks []types.Tick
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.Split(line, ",")
		if len(parts) != 3 {
			return nil, &errs.InputError{Pair: pair, Year: year, Reason: fmt.Sprintf("line %d: expected 3 columns, got %d", lineNo, len(parts))}
		}
		ts, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return nil, &errs.InputError{Pair: pair, Year: year, Reason: fmt.Sprintf("line %d: bad timestamp: %v", lineNo, err)}
		}
		bid, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, &errs.InputError{Pair: pair, Year: year, Reason: fmt.Sprintf("line %d: bad bid: %v", lineNo, err)}
		}
		ask, err := strconv.ParseFloat(parts[2], 64)
		if err != nil {
			return nil, &errs.InputError{Pair: pair, Year: year, Reason: fmt.Sprintf("line %d: bad ask: %v", lineNo, err)}
		}
		ticks = append(ticks, types.Tick{TimestampNS: ts, Bid: bid, Ask: ask})
	}
	if err := scanner.Err(); err != nil {
		return nil, &errs.InputError{Pair: pair, Year: year, Reason: fmt.Sprintf("scan: %v", err)}
	}
	if len(ticks) == 0 {
		return nil, &errs.InputError{Pair: pair, Year: year, Reason: "file contains no ticks"}
	}
	return ticks, nil
}
