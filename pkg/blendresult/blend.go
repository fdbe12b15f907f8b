package blendresult

import (
	"errors"
	"fmt"
)

// ErrLengthMismatch is returned when contents and names are not parallel.
var ErrLengthMismatch = errors.New("contents and names differ in length")

// Row is one test across every blended document.
type Row struct {
	Key   string
	Cells []string
}

// Summary holds the per-document totals.
type Summary struct {
	Document string
	Total    int
	Passed   int
	Failed   int
	Skipped  int
}

// Matrix is the blended view: one column per document, one row per test.
type Matrix struct {
	Columns   []string
	Rows      []Row
	Summaries []Summary
}

// statusRank orders statuses so the worst one wins when a key repeats.
var statusRank = map[string]int{
	"":           0,
	StatusPass:   1,
	StatusNotRun: 2,
	StatusSkip:   3,
	StatusFail:   4,
}

// Blend parses contents[i] as the document named names[i] and merges the
// results. limit is the number of innermost suite levels kept in each row key.
func Blend(contents, names []string, limit int) (*Matrix, error) {
	if len(contents) != len(names) {
		return nil, fmt.Errorf("%w: %d contents, %d names", ErrLengthMismatch, len(contents), len(names))
	}

	if limit < 0 {
		return nil, fmt.Errorf("limit must not be negative: %d", limit)
	}

	m := &Matrix{
		Columns:   make([]string, len(names)),
		Rows:      []Row{},
		Summaries: make([]Summary, 0, len(names)),
	}
	copy(m.Columns, names)

	rowIndex := make(map[string]int)

	for col, content := range contents {
		run, err := Parse(names[col], content)
		if err != nil {
			return nil, err
		}

		for _, test := range run.Tests {
			key := testKey(test, limit)

			idx, ok := rowIndex[key]
			if !ok {
				idx = len(m.Rows)
				rowIndex[key] = idx
				m.Rows = append(m.Rows, Row{Key: key, Cells: make([]string, len(names))})
			}

			if statusRank[test.Status] >= statusRank[m.Rows[idx].Cells[col]] {
				m.Rows[idx].Cells[col] = test.Status
			}
		}

		passed, failed, skipped := run.Counts()
		m.Summaries = append(m.Summaries, Summary{
			Document: names[col],
			Total:    len(run.Tests),
			Passed:   passed,
			Failed:   failed,
			Skipped:  skipped,
		})
	}

	return m, nil
}
