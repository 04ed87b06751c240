// Package dataset persists assembled specialization records as JSON and
// CSV files sharing one schema.
package dataset

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/hbouazizi/tawjih/record"
)

// csvColumns is the fixed CSV header. historical_scores is embedded as a
// JSON object string so both formats stay interchangeable.
var csvColumns = []string{
	"ramz_code",
	"ramz_id",
	"ramz_link",
	"university_id",
	"university_name",
	"bac_type_id",
	"bac_type_name",
	"field_of_study",
	"seven_percent",
	"admission_criteria",
	"institution_name",
	"location_name",
	"specialization_detail",
	"historical_scores",
}

// WriteJSON writes the records as an indented JSON array. Records are
// sorted by internal id so output is deterministic across runs.
func WriteJSON(path string, records []record.Specialization) error {
	sorted := sortedCopy(records)
	data, err := json.MarshalIndent(sorted, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal records: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %v", path, err)
	}
	log.Info().Str("path", path).Int("records", len(sorted)).Msg("Wrote JSON dataset")
	return nil
}

// ReadJSON loads a JSON dataset written by WriteJSON.
func ReadJSON(path string) ([]record.Specialization, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %v", path, err)
	}
	var records []record.Specialization
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %v", path, err)
	}
	return records, nil
}

// WriteCSV writes the records with the fixed column set, header first.
func WriteCSV(path string, records []record.Specialization) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %v", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvColumns); err != nil {
		return fmt.Errorf("failed to write header: %v", err)
	}
	for _, rec := range sortedCopy(records) {
		row, err := csvRow(rec)
		if err != nil {
			return err
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write row for %s: %v", rec.InternalID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush %s: %v", path, err)
	}
	log.Info().Str("path", path).Int("records", len(records)).Msg("Wrote CSV dataset")
	return nil
}

// ReadCSV loads a CSV dataset written by WriteCSV.
func ReadCSV(path string) ([]record.Specialization, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %v", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %v", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s is empty", path)
	}
	if len(rows[0]) != len(csvColumns) {
		return nil, fmt.Errorf("%s has %d columns, want %d", path, len(rows[0]), len(csvColumns))
	}

	records := make([]record.Specialization, 0, len(rows)-1)
	for i, row := range rows[1:] {
		rec, err := fromCSVRow(row)
		if err != nil {
			return nil, fmt.Errorf("row %d of %s: %v", i+2, path, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// WriteAll writes both formats under dir using base as the filename stem
// and returns the two paths.
func WriteAll(dir, base string, records []record.Specialization) (jsonPath, csvPath string, err error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", "", fmt.Errorf("failed to create %s: %v", dir, err)
	}
	jsonPath = filepath.Join(dir, base+".json")
	csvPath = filepath.Join(dir, base+".csv")
	if err := WriteJSON(jsonPath, records); err != nil {
		return "", "", err
	}
	if err := WriteCSV(csvPath, records); err != nil {
		return "", "", err
	}
	return jsonPath, csvPath, nil
}

func csvRow(rec record.Specialization) ([]string, error) {
	scores, err := json.Marshal(rec.HistoricalScores)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal scores for %s: %v", rec.InternalID, err)
	}
	seven := "no"
	if rec.SevenPercent {
		seven = "yes"
	}
	return []string{
		rec.Code,
		rec.InternalID,
		rec.SourceURL,
		rec.UniversityID,
		rec.UniversityName,
		rec.BacTypeID,
		rec.BacTypeName,
		rec.FieldOfStudy,
		seven,
		rec.AdmissionCriteria,
		rec.InstitutionName,
		rec.LocationName,
		rec.SpecializationDetail,
		string(scores),
	}, nil
}

func fromCSVRow(row []string) (record.Specialization, error) {
	var rec record.Specialization
	if len(row) != len(csvColumns) {
		return rec, fmt.Errorf("got %d fields, want %d", len(row), len(csvColumns))
	}

	scores := make(map[string]float64)
	if err := json.Unmarshal([]byte(row[13]), &scores); err != nil {
		return rec, fmt.Errorf("bad historical_scores: %v", err)
	}
	series := make(map[int]float64, len(scores))
	for yearText, score := range scores {
		year, err := strconv.Atoi(yearText)
		if err != nil {
			return rec, fmt.Errorf("bad score year %q: %v", yearText, err)
		}
		series[year] = score
	}

	rec = record.Specialization{
		Code:                 row[0],
		InternalID:           row[1],
		SourceURL:            row[2],
		UniversityID:         row[3],
		UniversityName:       row[4],
		BacTypeID:            row[5],
		BacTypeName:          row[6],
		FieldOfStudy:         row[7],
		SevenPercent:         row[8] == "yes",
		AdmissionCriteria:    row[9],
		InstitutionName:      row[10],
		LocationName:         row[11],
		SpecializationDetail: row[12],
		HistoricalScores:     series,
	}
	return rec, nil
}

func sortedCopy(records []record.Specialization) []record.Specialization {
	sorted := make([]record.Specialization, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].InternalID < sorted[j].InternalID
	})
	return sorted
}
