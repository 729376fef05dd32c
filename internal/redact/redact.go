package redact

import (
	"fmt"
	"regexp"
	"strings"
)

// PiiEntity is one redacted span recovered from a prediction: the
// original token text and the stable placeholder label that replaced it
// in the redacted output.
type PiiEntity struct {
	Token string `json:"token"`
	Label string `json:"label"`
}

// maxOverlap returns the length of the longest matching run found at any
// alignment of a against b. Two entity mentions that share a long common
// substring (e.g. "John Smith" and "Mr. John Smith") are treated as the
// same underlying entity rather than minted as separate placeholders.
func maxOverlap(a, b string) int {
	best := 0
	for i := 0; i < len(a); i++ {
		for j := 0; j < len(b); j++ {
			n := 0
			for i+n < len(a) && j+n < len(b) && a[i+n] == b[j+n] {
				n++
			}
			if n > best {
				best = n
			}
		}
	}
	return best
}

// MergeTags collapses a run of adjacent tokens carrying exactly the same
// tag into a single span, joined with spaces. Tags are compared as whole
// strings, so "B-NAME" followed by "I-NAME" starts a new span.
func MergeTags(tokens []string, tags []string) ([]string, []string) {
	if len(tags) < 1 {
		return tokens, tags
	}

	var mergedTokens, mergedTags []string
	currSpan := []string{}
	currTag := tags[0]

	for i, token := range tokens {
		tag := tags[i]
		if tag == currTag {
			currSpan = append(currSpan, token)
		} else {
			mergedTokens = append(mergedTokens, strings.Join(currSpan, " "))
			mergedTags = append(mergedTags, currTag)
			currSpan = []string{token}
			currTag = tag
		}
	}
	mergedTokens = append(mergedTokens, strings.Join(currSpan, " "))
	mergedTags = append(mergedTags, currTag)

	return mergedTokens, mergedTags
}

// LabelMap assigns and remembers stable placeholder labels ("[NAME#0]")
// for entity mentions within a single redaction pass, so that repeated
// mentions of the same entity (exact match, or a near-duplicate sharing
// more than 5 overlapping characters) always map to the same label. It
// is scoped to one request — a fresh LabelMap is used per call to
// Guardrail.RedactPII.
type LabelMap struct {
	tagToEntities map[string]map[string]string
	nextLabel     int
}

func NewLabelMap() *LabelMap {
	return &LabelMap{tagToEntities: make(map[string]map[string]string)}
}

// GetLabel returns the placeholder label for entity under tag, reusing an
// existing label for an exact or near-duplicate (overlap > 5) mention,
// otherwise minting and recording a new one.
func (m *LabelMap) GetLabel(tag, entity string) string {
	entities := m.tagToEntities[tag]
	if entities == nil {
		entities = make(map[string]string)
		m.tagToEntities[tag] = entities
	}

	for label, existing := range entities {
		if entity == existing || maxOverlap(entity, existing) > 5 {
			return label
		}
	}

	label := fmt.Sprintf("[%s#%d]", tag, m.nextLabel)
	m.nextLabel++
	entities[label] = entity
	return label
}

// Entities flattens the label map into the list of (token, label) pairs
// the caller must hand back unchanged on a later unredact call.
func (m *LabelMap) Entities() []PiiEntity {
	var out []PiiEntity
	for _, labels := range m.tagToEntities {
		for label, token := range labels {
			out = append(out, PiiEntity{Token: token, Label: label})
		}
	}
	return out
}

var placeholderRe = regexp.MustCompile(`\[([A-Z_]+)#(\d+)\]`)

// Unredact restores a redacted string's placeholders using the supplied
// entity list, which must be the list previously returned by the
// LabelMap that produced redactedText. Any placeholder with no matching
// entry (e.g. the caller lost it between requests) is rendered as
// "[UNKNOWN ENTITY]" rather than left as an opaque label.
func Unredact(redactedText string, entities []PiiEntity) string {
	entityMap := make(map[string]string, len(entities))
	for _, e := range entities {
		entityMap[e.Label] = e.Token
	}

	return placeholderRe.ReplaceAllStringFunc(redactedText, func(match string) string {
		if token, ok := entityMap[match]; ok {
			return token
		}
		return "[UNKNOWN ENTITY]"
	})
}
