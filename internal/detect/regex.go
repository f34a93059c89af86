package detect

import (
	"context"
	"regexp"
	"sort"

	"github.com/rehydra/rehydra/internal/models"
)

const regexModelVersion = "regex-v1"

// regexRule pairs a PII type with its pattern. Rules run in order; when two
// rules match overlapping ranges the earlier rule keeps the span.
type regexRule struct {
	typ models.PIIType
	re  *regexp.Regexp
	// verify optionally rejects a raw regex hit (e.g. Luhn for card numbers).
	verify func(s string) bool
}

// RegexDetector finds structured PII (emails, phone numbers, card numbers,
// and the like) with patterns. It never finds names or addresses; that is the
// NER sidecar's job.
type RegexDetector struct {
	rules []regexRule
}

// NewRegexDetector builds a detector with the built-in rule set.
func NewRegexDetector() *RegexDetector {
	return &RegexDetector{
		rules: []regexRule{
			{
				typ: models.PIITypeEmail,
				re:  regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`),
			},
			{
				typ: models.PIITypeURL,
				re:  regexp.MustCompile(`https?://[^\s"'<>]+`),
			},
			{
				typ: models.PIITypeIBAN,
				re:  regexp.MustCompile(`\b[A-Z]{2}\d{2}[A-Z0-9]{11,30}\b`),
			},
			{
				typ:    models.PIITypeCreditCard,
				re:     regexp.MustCompile(`\b(?:\d[ \-]?){13,16}\b`),
				verify: luhnValid,
			},
			{
				typ: models.PIITypeSSN,
				re:  regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
			},
			{
				typ: models.PIITypeIPAddress,
				re:  regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
			},
			{
				typ: models.PIITypePhone,
				re:  regexp.MustCompile(`\+?\d[\d\s\-()]{7,}\d`),
			},
		},
	}
}

// Detect runs every rule over text and returns non-overlapping spans sorted
// ascending by start offset.
func (d *RegexDetector) Detect(_ context.Context, text, _ string) (*Result, error) {
	var spans []models.SpanMatch
	for _, rule := range d.rules {
		for _, loc := range rule.re.FindAllStringIndex(text, -1) {
			matched := text[loc[0]:loc[1]]
			if rule.verify != nil && !rule.verify(matched) {
				continue
			}
			if overlaps(spans, loc[0], loc[1]) {
				continue
			}
			spans = append(spans, models.SpanMatch{
				Type:       rule.typ,
				Start:      loc[0],
				End:        loc[1],
				Text:       matched,
				Confidence: 1.0,
				Source:     "regex",
			})
		}
	}
	sort.Slice(spans, func(a, b int) bool { return spans[a].Start < spans[b].Start })
	return &Result{Spans: spans, ModelVersion: regexModelVersion}, nil
}

func overlaps(spans []models.SpanMatch, start, end int) bool {
	for i := range spans {
		if start < spans[i].End && spans[i].Start < end {
			return true
		}
	}
	return false
}

// luhnValid checks a card-number candidate's Luhn checksum, ignoring spaces
// and dashes.
func luhnValid(s string) bool {
	sum := 0
	double := false
	digits := 0
	for i := len(s) - 1; i >= 0; i-- {
		c := s[i]
		if c == ' ' || c == '-' {
			continue
		}
		if c < '0' || c > '9' {
			return false
		}
		d := int(c - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
		digits++
	}
	return digits >= 13 && sum%10 == 0
}
