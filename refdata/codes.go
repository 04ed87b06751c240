// Package refdata loads the external reference list governing the
// seven-percent geographic distribution rule. The list enumerates the
// 3-digit specialization code suffixes that are excluded from the rule;
// every other code is eligible.
package refdata

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
)

// codeColumn is the header naming the code column in the reference CSV.
const codeColumn = "الرمز"

// ExclusionList holds the code suffixes excluded from geographic
// distribution. It is read-only after Load.
type ExclusionList struct {
	codes map[string]struct{}
}

// Load reads the reference CSV. The file may carry a header row naming the
// code column, or be a bare list; any 3-digit cell is accepted either way.
func Load(path string) (*ExclusionList, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open reference list: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse reference list: %w", err)
	}

	list := &ExclusionList{codes: make(map[string]struct{})}

	// When a header names the code column, read only that column.
	// Otherwise fall back to scanning every cell for 3-digit values.
	codeIdx := -1
	if len(rows) > 0 {
		for i, cell := range rows[0] {
			if strings.Contains(cell, codeColumn) {
				codeIdx = i
				break
			}
		}
	}

	for i, row := range rows {
		if codeIdx >= 0 {
			if i == 0 {
				continue // header
			}
			if codeIdx < len(row) {
				list.add(row[codeIdx])
			}
			continue
		}
		for _, cell := range row {
			list.add(cell)
		}
	}

	log.Info().
		Str("path", path).
		Int("codes", len(list.codes)).
		Msg("Loaded seven-percent exclusion list")

	return list, nil
}

// add records a cell value if it is a 3-digit code.
func (l *ExclusionList) add(cell string) {
	code := strings.TrimSpace(cell)
	if len(code) != 3 {
		return
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return
		}
	}
	l.codes[code] = struct{}{}
}

// Eligible reports whether the specialization identified by code benefits
// from the seven-percent geographic distribution rule. The decision depends
// only on the code's last 3 digits and the loaded list.
func (l *ExclusionList) Eligible(code string) bool {
	suffix := code
	if len(code) > 3 {
		suffix = code[len(code)-3:]
	}
	_, excluded := l.codes[suffix]
	return !excluded
}

// Len returns the number of excluded code suffixes.
func (l *ExclusionList) Len() int {
	return len(l.codes)
}
