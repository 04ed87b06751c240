package scrape

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Canonical field names produced by the extractor.
const (
	FieldUniversityName       = "university_name"
	FieldLocationName         = "location_name"
	FieldInstitutionName      = "institution_name"
	FieldFieldOfStudy         = "field_of_study"
	FieldSpecializationDetail = "specialization_detail"
	FieldAdmissionCriteria    = "admission_criteria"
	FieldBacTypeName          = "bac_type_name"
)

// fieldLabels maps the Arabic row label on a detail page to the canonical
// field it populates. Matching is substring-based because the site pads
// labels with colons and whitespace inconsistently.
var fieldLabels = []struct {
	label string
	field string
}{
	{"الجامعة", FieldUniversityName},
	{"الولاية", FieldLocationName},
	{"المؤسسة", FieldInstitutionName},
	{"مجال التكوين", FieldFieldOfStudy},
	{"التخصصات", FieldSpecializationDetail},
	{"المقياس", FieldAdmissionCriteria},
	{"نوع الباكالوريا", FieldBacTypeName},
}

// Fields holds raw extracted values keyed by canonical field name. Every
// known field is present; unlabeled fields hold the empty string.
type Fields map[string]string

// ExtractFields scans the two-column label/value table rows of a detail
// page. A missing label never errors -- the field stays empty. Only a page
// with no two-cell rows at all is rejected as malformed.
func ExtractFields(doc *goquery.Document) (Fields, error) {
	fields := make(Fields, len(fieldLabels))
	for _, m := range fieldLabels {
		fields[m.field] = ""
	}

	labeledRows := 0
	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}
		labeledRows++

		label := cleanText(cells.Eq(0).Text())
		for _, m := range fieldLabels {
			if !strings.Contains(label, m.label) {
				continue
			}
			// First match wins; later rows repeating a label are ignored.
			if fields[m.field] == "" {
				fields[m.field] = cellValue(cells.Eq(1))
			}
			break
		}
	})

	if labeledRows == 0 {
		return nil, ErrMalformedDocument
	}
	return fields, nil
}

// cellValue reads a value cell, preferring its bold fragments. The site
// wraps the actual value in <b> and pads the rest of the cell with layout
// text.
func cellValue(cell *goquery.Selection) string {
	var parts []string
	cell.Find("b").Each(func(_ int, b *goquery.Selection) {
		if text := cleanText(b.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	if len(parts) > 0 {
		return strings.Join(parts, " ")
	}
	return cleanText(cell.Text())
}

// cleanText collapses runs of whitespace to single spaces.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
