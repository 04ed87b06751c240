package scrape

import (
	"fmt"

	"github.com/hbouazizi/tawjih/record"
	"github.com/hbouazizi/tawjih/refdata"
)

// AssembleInput carries everything a record is built from: the navigation
// identity, the extractor's raw fields, and the normalized score series.
type AssembleInput struct {
	InternalID   string
	UniversityID string
	SourceURL    string
	Fields       Fields
	Scores       map[int]float64
}

// Assemble merges extracted fields, the normalized score series, and the
// seven-percent reference lookup into one Specialization. It fails only
// when the identifying code cannot be derived from the internal id; every
// other field degrades to empty or sentinel, because a partial record is
// more useful than a dropped one.
func Assemble(in AssembleInput, ref *refdata.ExclusionList) (record.Specialization, error) {
	code, bacTypeID, err := record.SplitInternalID(in.InternalID)
	if err != nil {
		return record.Specialization{}, fmt.Errorf("%w: %v", ErrIncompleteRecord, err)
	}

	scores := in.Scores
	if scores == nil {
		scores = record.EmptyScoreSeries()
	}

	fields := in.Fields
	if fields == nil {
		fields = Fields{}
	}

	// The reference list is the only authority for this flag; the page's
	// own geographic-distribution fragment is unreliable and never read.
	eligible := true
	if ref != nil {
		eligible = ref.Eligible(code)
	}

	return record.Specialization{
		Code:                 code,
		InternalID:           in.InternalID,
		SourceURL:            in.SourceURL,
		UniversityID:         in.UniversityID,
		UniversityName:       fields[FieldUniversityName],
		BacTypeID:            bacTypeID,
		BacTypeName:          fields[FieldBacTypeName],
		FieldOfStudy:         fields[FieldFieldOfStudy],
		HistoricalScores:     scores,
		SevenPercent:         eligible,
		AdmissionCriteria:    fields[FieldAdmissionCriteria],
		InstitutionName:      fields[FieldInstitutionName],
		LocationName:         fields[FieldLocationName],
		SpecializationDetail: fields[FieldSpecializationDetail],
	}, nil
}
