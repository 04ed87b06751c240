package record

import (
	"errors"
	"fmt"
)

// Supported year range for historical admission scores. Every record carries
// an entry for each year in this range.
const (
	FirstScoreYear = 2011
	LastScoreYear  = 2024
)

// Valid admission scores fall within [MinScore, MaxScore]. MissingScore is
// the sentinel used for absent or invalid entries.
const (
	MinScore     = 0.0
	MaxScore     = 220.0
	MissingScore = 0.0
)

// ErrInvalidInternalID indicates an internal id that cannot identify a
// specialization.
var ErrInvalidInternalID = errors.New("invalid internal id")

// Specialization represents one university specialization offering as
// published in the orientation guide. Code is the dataset's unique key.
type Specialization struct {
	Code                 string          `json:"ramz_code"`
	InternalID           string          `json:"ramz_id"`
	SourceURL            string          `json:"ramz_link"`
	UniversityID         string          `json:"university_id"`
	UniversityName       string          `json:"university_name"`
	BacTypeID            string          `json:"bac_type_id"`
	BacTypeName          string          `json:"bac_type_name"`
	FieldOfStudy         string          `json:"field_of_study"`
	HistoricalScores     map[int]float64 `json:"historical_scores"`
	SevenPercent         bool            `json:"seven_percent"`
	AdmissionCriteria    string          `json:"admission_criteria"`
	InstitutionName      string          `json:"institution_name"`
	LocationName         string          `json:"location_name"`
	SpecializationDetail string          `json:"specialization_detail"`
}

// Years returns the supported score years in ascending order.
func Years() []int {
	years := make([]int, 0, LastScoreYear-FirstScoreYear+1)
	for y := FirstScoreYear; y <= LastScoreYear; y++ {
		years = append(years, y)
	}
	return years
}

// EmptyScoreSeries returns a complete score series with every supported year
// set to the missing-data sentinel.
func EmptyScoreSeries() map[int]float64 {
	scores := make(map[int]float64, LastScoreYear-FirstScoreYear+1)
	for y := FirstScoreYear; y <= LastScoreYear; y++ {
		scores[y] = MissingScore
	}
	return scores
}

// SplitInternalID splits a 6-digit internal id into its 5-digit
// specialization code and the leading bac-type digit. The site encodes
// detail-page ids as bac-type digit followed by the code.
func SplitInternalID(id string) (code, bacTypeID string, err error) {
	if len(id) != 6 {
		return "", "", fmt.Errorf("%w: %q is not 6 digits", ErrInvalidInternalID, id)
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return "", "", fmt.Errorf("%w: %q contains non-digit characters", ErrInvalidInternalID, id)
		}
	}
	return id[1:], id[:1], nil
}

// Validate checks the record's structural invariants: a non-empty code and a
// complete, in-range score series.
func (s *Specialization) Validate() error {
	if s.Code == "" {
		return errors.New("record has no code")
	}
	if len(s.HistoricalScores) != LastScoreYear-FirstScoreYear+1 {
		return fmt.Errorf("record %s: score series has %d years, want %d",
			s.Code, len(s.HistoricalScores), LastScoreYear-FirstScoreYear+1)
	}
	for year, score := range s.HistoricalScores {
		if year < FirstScoreYear || year > LastScoreYear {
			return fmt.Errorf("record %s: year %d outside supported range", s.Code, year)
		}
		if score < MinScore || score > MaxScore {
			return fmt.Errorf("record %s: score %v for year %d outside valid bound", s.Code, score, year)
		}
	}
	return nil
}
