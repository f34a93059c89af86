// Package engine performs offset-safe span replacement and rehydration.
// It consumes detector span matches, assigns entity IDs, substitutes
// placeholder tags, and reverses the substitution given a raw PII map.
package engine

import (
	"sort"

	"github.com/rehydra/rehydra/internal/models"
	"github.com/rehydra/rehydra/internal/tag"
)

// TagOptions configures one tagging call.
type TagOptions struct {
	Policy models.TagPolicy

	// Existing carries the raw map from prior calls in the same session so
	// that ID assignment continues numbering (and, under the reuse policy,
	// reuses IDs for values already mapped). May be nil.
	Existing models.RawMap
}

// Tag replaces every span in text with its encoded placeholder tag and
// returns the anonymized text, the entities with their assigned IDs, and the
// raw map for the new entities. Zero spans returns the input unchanged and an
// empty map. Spans must be mutually non-overlapping.
func Tag(text string, spans []models.SpanMatch, opts TagOptions) models.DetectionResult {
	if len(spans) == 0 {
		return models.DetectionResult{AnonymizedText: text, RawMap: models.RawMap{}}
	}

	entities := make([]models.DetectedEntity, len(spans))
	for i, sp := range spans {
		entities[i] = models.DetectedEntity{SpanMatch: sp}
	}
	sort.Slice(entities, func(a, b int) bool { return entities[a].Start < entities[b].Start })

	rawMap := assignIDs(entities, opts)

	// Replace from the highest offset down so earlier, unprocessed offsets
	// are never invalidated by a replacement changing the string length.
	sort.Slice(entities, func(a, b int) bool { return entities[a].Start > entities[b].Start })
	out := text
	for i := range entities {
		e := &entities[i]
		out = out[:e.Start] + tag.Encode(e.Type, e.ID, e.Semantic) + out[e.End:]
	}

	sort.Slice(entities, func(a, b int) bool { return entities[a].Start < entities[b].Start })
	return models.DetectionResult{
		AnonymizedText: out,
		Entities:       entities,
		RawMap:         rawMap,
	}
}

// assignIDs gives every entity an ID from a single counter shared across all
// PII types and builds the raw map for the new entities. Entities must be
// sorted ascending by start offset so IDs increase left to right.
func assignIDs(entities []models.DetectedEntity, opts TagOptions) models.RawMap {
	next := opts.Existing.MaxID() + 1
	rawMap := models.RawMap{}

	// Values already mapped, keyed by type+text, for the reuse policy.
	type seenKey struct {
		typ  models.PIIType
		text string
	}
	seen := make(map[seenKey]int)
	if opts.Policy.ReuseIDsForRepeatedPII {
		// Continue reuse across calls: values already in the session's map
		// keep their IDs. If the same value was mapped more than once, the
		// lowest ID wins so the choice is deterministic.
		for key, value := range opts.Existing {
			typ, id, ok := models.SplitMapKey(key)
			if !ok {
				continue
			}
			k := seenKey{typ, value}
			if prev, dup := seen[k]; !dup || id < prev {
				seen[k] = id
			}
		}
	}

	for i := range entities {
		e := &entities[i]
		if opts.Policy.ReuseIDsForRepeatedPII {
			k := seenKey{e.Type, e.Text}
			if id, ok := seen[k]; ok {
				e.ID = id
				rawMap[e.Key()] = e.Text
				continue
			}
			e.ID = next
			next++
			seen[k] = e.ID
			rawMap[e.Key()] = e.Text
			continue
		}
		e.ID = next
		next++
		rawMap[e.Key()] = e.Text
	}
	return rawMap
}

// Rehydrate restores the original values into previously anonymized text.
// Tags are located with the fuzzy extractor by default, or the strict parser
// when strict is true. The restore is best effort: tags whose key is absent
// from the map are left untouched.
func Rehydrate(text string, rawMap models.RawMap, strict bool) string {
	matches := extract(text, strict)
	// Highest offset first, same reasoning as Tag. The replaced span uses
	// the matched text's length rather than the canonical tag's length so a
	// mangled tag of different length is excised exactly.
	sort.Slice(matches, func(a, b int) bool { return matches[a].Position > matches[b].Position })

	out := text
	for _, m := range matches {
		original, ok := rawMap[models.MapKey(m.Type, m.ID)]
		if !ok {
			continue
		}
		out = out[:m.Position] + original + out[m.Position+len(m.Text):]
	}
	return out
}

func extract(text string, strict bool) []tag.Match {
	if !strict {
		return tag.ExtractFuzzy(text)
	}
	// Strict extraction parses each fuzzy candidate canonically so that only
	// untouched tags are restored.
	var out []tag.Match
	for _, m := range tag.ExtractFuzzy(text) {
		if p := tag.ParseStrict(m.Text); p != nil {
			out = append(out, m)
		}
	}
	return out
}
