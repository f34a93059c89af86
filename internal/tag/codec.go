// Package tag implements the placeholder tag codec: canonical encoding,
// strict parsing, and fuzzy extraction of tags mangled by intermediate text
// transformations such as machine translation.
package tag

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rehydra/rehydra/internal/models"
)

// Parsed is a decoded placeholder tag.
type Parsed struct {
	Type     models.PIIType
	ID       int
	Semantic *models.Semantic
}

// Encode builds the canonical placeholder string for an entity. Attribute
// order is fixed (type, gender, scope, id); gender and scope are included
// only when present and not "unknown".
func Encode(t models.PIIType, id int, sem *models.Semantic) string {
	var b strings.Builder
	b.WriteString(`<PII type="`)
	b.WriteString(string(t))
	b.WriteByte('"')
	if sem != nil {
		if sem.Gender != "" && sem.Gender != models.GenderUnknown {
			b.WriteString(` gender="`)
			b.WriteString(sem.Gender)
			b.WriteByte('"')
		}
		if sem.Scope != "" && sem.Scope != models.ScopeUnknown {
			b.WriteString(` scope="`)
			b.WriteString(sem.Scope)
			b.WriteByte('"')
		}
	}
	fmt.Fprintf(&b, ` id="%d"/>`, id)
	return b.String()
}

// strictRe matches only the canonical form: fixed attribute order, standard
// ASCII double quotes, single spaces, "/>" closing.
var strictRe = regexp.MustCompile(
	`^<PII type="([A-Z_]+)"` +
		`(?: gender="(male|female|neutral|unknown)")?` +
		`(?: scope="(city|country|region|unknown)")?` +
		` id="([0-9]+)"/>$`)

// ParseStrict decodes a tag in canonical form. It returns nil on any
// deviation from the canonical syntax and on unknown type tokens; it never
// returns an error.
func ParseStrict(s string) *Parsed {
	m := strictRe.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	t, ok := models.ParsePIIType(m[1])
	if !ok {
		return nil
	}
	id, err := strconv.Atoi(m[4])
	if err != nil {
		return nil
	}
	return &Parsed{
		Type:     t,
		ID:       id,
		Semantic: normalizeSemantic(m[2], m[3]),
	}
}

// normalizeSemantic lowers attribute values and drops "unknown"; returns nil
// when nothing emittable remains.
func normalizeSemantic(gender, scope string) *models.Semantic {
	sem := &models.Semantic{
		Gender: strings.ToLower(gender),
		Scope:  strings.ToLower(scope),
	}
	if sem.Gender == models.GenderUnknown {
		sem.Gender = ""
	}
	if sem.Scope == models.ScopeUnknown {
		sem.Scope = ""
	}
	if sem.Gender == "" && sem.Scope == "" {
		return nil
	}
	return sem
}
