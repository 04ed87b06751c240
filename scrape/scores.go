package scrape

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/hbouazizi/tawjih/record"
)

// yearScorePattern matches loosely delimited year/score pairs in free text,
// e.g. "2024: 137.4415" or "2024/137.4415".
var yearScorePattern = regexp.MustCompile(`(20\d{2})[^0-9]+(\d+(?:\.\d+)?)`)

// Chart scripts on detail pages carry parallel labels/data arrays.
var (
	chartLabelsPattern = regexp.MustCompile(`labels\s*[:=]\s*\[([^\]]*)\]`)
	chartDataPattern   = regexp.MustCompile(`data\s*[:=]\s*\[([^\]]*)\]`)
)

// ParseScores normalizes a raw score fragment into a complete year-to-score
// series over the supported range. The primary format is the scores
// endpoint's slash-delimited "year/score/year/score/" text; free-text pairs
// are handled as a fallback. Unparsable, out-of-bound, and absent entries
// all map to the missing-data sentinel so every record has an identical
// shape.
func ParseScores(raw string) map[int]float64 {
	scores := record.EmptyScoreSeries()
	pairs := slashPairs(raw)
	if len(pairs) == 0 {
		pairs = textPairs(raw)
	}
	for _, p := range pairs {
		applyPair(scores, p[0], p[1])
	}
	return scores
}

// ScriptScores scavenges the score series from a detail page's inline
// script bodies. Used when the scores endpoint yields nothing; the chart on
// the page embeds the same series as parallel labels/data arrays.
func ScriptScores(doc *goquery.Document) map[int]float64 {
	scores := record.EmptyScoreSeries()
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		for _, p := range chartPairs(s.Text()) {
			applyPair(scores, p[0], p[1])
		}
	})
	return scores
}

// chartPairs zips a script's labels array with its data array. Returns nil
// when either array is missing or their lengths disagree.
func chartPairs(script string) [][2]string {
	labelsMatch := chartLabelsPattern.FindStringSubmatch(script)
	dataMatch := chartDataPattern.FindStringSubmatch(script)
	if labelsMatch == nil || dataMatch == nil {
		return nil
	}

	labels := splitArray(labelsMatch[1])
	values := splitArray(dataMatch[1])
	if len(labels) == 0 || len(labels) != len(values) {
		return nil
	}

	pairs := make([][2]string, 0, len(labels))
	for i, label := range labels {
		pairs = append(pairs, [2]string{label, values[i]})
	}
	return pairs
}

// splitArray splits a comma-separated script array body, stripping quotes.
func splitArray(body string) []string {
	if strings.TrimSpace(body) == "" {
		return nil
	}
	parts := strings.Split(body, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.Trim(strings.TrimSpace(p), `"'`))
	}
	return out
}

// HasScores reports whether a series carries any non-sentinel value.
func HasScores(scores map[int]float64) bool {
	for _, v := range scores {
		if v != record.MissingScore {
			return true
		}
	}
	return false
}

// slashPairs splits the "2011/0/2012/0/.../2024/137.4415/" endpoint format.
// Returns nil unless at least one plausible year leads a pair.
func slashPairs(raw string) [][2]string {
	parts := strings.Split(strings.Trim(strings.TrimSpace(raw), "/"), "/")
	if len(parts) < 2 {
		return nil
	}
	var pairs [][2]string
	for i := 0; i+1 < len(parts); i += 2 {
		year := strings.TrimSpace(parts[i])
		if len(year) != 4 {
			continue
		}
		pairs = append(pairs, [2]string{year, strings.TrimSpace(parts[i+1])})
	}
	return pairs
}

// textPairs extracts loosely delimited pairs from free text.
func textPairs(raw string) [][2]string {
	var pairs [][2]string
	for _, m := range yearScorePattern.FindAllStringSubmatch(raw, -1) {
		pairs = append(pairs, [2]string{m[1], m[2]})
	}
	return pairs
}

// applyPair records one year/value pair, sentineling invalid values. Years
// outside the supported range are data errors and are dropped entirely.
func applyPair(scores map[int]float64, yearText, valueText string) {
	year, err := strconv.Atoi(yearText)
	if err != nil || year < record.FirstScoreYear || year > record.LastScoreYear {
		return
	}
	value, err := strconv.ParseFloat(valueText, 64)
	if err != nil || value < record.MinScore || value > record.MaxScore {
		scores[year] = record.MissingScore
		return
	}
	scores[year] = value
}
