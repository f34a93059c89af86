package tag

import (
	"regexp"
	"sort"
	"strconv"

	"github.com/rehydra/rehydra/internal/models"
)

// Match is one fuzzy extraction hit.
type Match struct {
	Type     models.PIIType
	ID       int
	Position int
	Text     string
	Semantic *models.Semantic
}

// Translation engines rewrite quotes, pad or strip whitespace, change case,
// and occasionally reorder attributes. The fuzzy matcher is built from
// character classes covering the observed mangling:
//
//   - quotes: straight double/single, backtick, curly double/single, low-9
//     double/single, guillemets, single guillemets, chosen independently
//     per attribute side, so mismatched pairs like „PERSON" still match
//   - whitespace: ASCII plus no-break space, ogham space, the U+2000 block,
//     narrow no-break, medium mathematical, and ideographic space
const (
	quoteClass = "[\"'`“”„‚‘’«»‹›]"
	wsClass    = `[\s\x{00A0}\x{1680}\x{2000}-\x{200B}\x{202F}\x{205F}\x{3000}]`
)

// attr builds the pattern for one attribute with tolerant whitespace around
// "=" and independently chosen quote characters on each side.
func attr(name, group, valuePat string) string {
	return name + wsClass + `*=` + wsClass + `*` +
		quoteClass + `(?P<` + group + `>` + valuePat + `)` + quoteClass
}

const (
	typeValue  = `[A-Za-z_]+`
	wordValue  = `[A-Za-z]+`
	idValue    = `[0-9]+`
	tagOpen    = `(?i)<` + wsClass + `*PII` + wsClass + `+`
	tagClose   = wsClass + `*/?` + wsClass + `*>`
	attrBreak  = wsClass + `+`
)

// fuzzyPattern is one row of the declarative pattern table: an attribute
// order over the shared quote and whitespace classes. New mangling shapes are
// added as rows, not as changes to the matching loop.
type fuzzyPattern struct {
	name string
	re   *regexp.Regexp
}

var fuzzyPatterns = []fuzzyPattern{
	// Canonical order: type, optional gender, optional scope, id.
	{
		name: "type-first",
		re: regexp.MustCompile(tagOpen +
			attr("type", "t", typeValue) +
			`(?:` + attrBreak + attr("gender", "g", wordValue) + `)?` +
			`(?:` + attrBreak + attr("scope", "s", wordValue) + `)?` +
			attrBreak + attr("id", "i", idValue) +
			tagClose),
	},
	// Reordered by translation: id before type.
	{
		name: "id-first",
		re: regexp.MustCompile(tagOpen +
			attr("id", "i", idValue) +
			attrBreak + attr("type", "t", typeValue) +
			tagClose),
	},
}

// ExtractFuzzy recovers placeholder tags from text that may have passed
// through a mangling transformation. Every pattern runs over the whole text;
// matches starting at the same offset are de-duplicated with the first
// pattern winning. Unknown type tokens are silently discarded. Results are
// sorted ascending by position.
func ExtractFuzzy(text string) []Match {
	var out []Match
	claimed := make(map[int]struct{})

	for _, p := range fuzzyPatterns {
		tIdx := p.re.SubexpIndex("t")
		gIdx := p.re.SubexpIndex("g")
		sIdx := p.re.SubexpIndex("s")
		iIdx := p.re.SubexpIndex("i")

		for _, m := range p.re.FindAllStringSubmatchIndex(text, -1) {
			start := m[0]
			if _, taken := claimed[start]; taken {
				continue
			}
			typ, ok := models.ParsePIIType(group(text, m, tIdx))
			if !ok {
				continue
			}
			id, err := strconv.Atoi(group(text, m, iIdx))
			if err != nil {
				continue
			}
			claimed[start] = struct{}{}
			out = append(out, Match{
				Type:     typ,
				ID:       id,
				Position: start,
				Text:     text[m[0]:m[1]],
				Semantic: normalizeSemantic(group(text, m, gIdx), group(text, m, sIdx)),
			})
		}
	}

	sort.Slice(out, func(a, b int) bool { return out[a].Position < out[b].Position })
	return out
}

// group extracts a named submatch by index, tolerating absent optional groups.
func group(text string, m []int, idx int) string {
	if idx < 0 || m[2*idx] < 0 {
		return ""
	}
	return text[m[2*idx]:m[2*idx+1]]
}
