// Package seeds reads the list of specialization detail-page ids that a
// scrape run should cover.
package seeds

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
)

// Seed identifies one detail page to scrape. UniversityID is optional
// context carried from the listing the seed file was built from.
type Seed struct {
	InternalID   string
	UniversityID string
}

// Header names recognized for the id column.
var idHeaders = []string{"ramz_id", "full_ramz_id", "ramz_code", "id"}

// Load reads a seed CSV. The file may carry a header row (with an id column
// named ramz_id, full_ramz_id, ramz_code, or id, and an optional
// university_id column) or be a bare list with the id in the first column.
// Rows whose id is not a 6-digit value are skipped with a warning; duplicate
// ids are dropped, keeping the first occurrence.
func Load(path string) ([]Seed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open seed list: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse seed list: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("seed list %s is empty", path)
	}

	idIdx, univIdx, hasHeader := detectColumns(rows[0])

	var seeds []Seed
	seen := make(map[string]bool)
	skipped := 0

	for i, row := range rows {
		if hasHeader && i == 0 {
			continue
		}
		if idIdx >= len(row) {
			skipped++
			continue
		}
		id := strings.TrimSpace(row[idIdx])
		if !isInternalID(id) {
			skipped++
			log.Warn().Str("value", id).Int("row", i+1).Msg("Skipping seed row without a 6-digit id")
			continue
		}
		if seen[id] {
			continue
		}
		seen[id] = true

		seed := Seed{InternalID: id}
		if univIdx >= 0 && univIdx < len(row) {
			seed.UniversityID = strings.TrimSpace(row[univIdx])
		}
		seeds = append(seeds, seed)
	}

	if len(seeds) == 0 {
		return nil, fmt.Errorf("seed list %s contains no usable ids", path)
	}

	log.Info().
		Str("path", path).
		Int("seeds", len(seeds)).
		Int("skipped", skipped).
		Msg("Loaded seed list")

	return seeds, nil
}

// detectColumns inspects the first row for known headers. Without a header
// the id is taken from the first column.
func detectColumns(first []string) (idIdx, univIdx int, hasHeader bool) {
	idIdx, univIdx = 0, -1
	for i, cell := range first {
		name := strings.ToLower(strings.TrimSpace(cell))
		for _, h := range idHeaders {
			if name == h {
				idIdx = i
				hasHeader = true
			}
		}
		if name == "university_id" {
			univIdx = i
			hasHeader = true
		}
	}
	return idIdx, univIdx, hasHeader
}

// isInternalID reports whether s is a 6-digit detail-page id.
func isInternalID(s string) bool {
	if len(s) != 6 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
