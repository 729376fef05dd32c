package syntheticdata

import (
	"context"
	"regexp"
	"strings"
)

// placeholderRe matches a {TAG} placeholder inside a sentence template.
var placeholderRe = regexp.MustCompile(`\{([A-Z_]+)\}`)

// Template is a sentence shell with tag placeholders, e.g.
// "Please call {NAME} at {PHONE} regarding the {COMPANY} account."
type Template string

// Tags returns the distinct placeholder tags referenced by the template.
func (t Template) Tags() []string {
	matches := placeholderRe.FindAllStringSubmatch(string(t), -1)
	seen := make(map[string]bool, len(matches))
	var out []string
	for _, m := range matches {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}

// Fill substitutes every placeholder in t with a value from the
// Generators table, falling back to completer for any tag Generators
// does not cover. Returns the filled sentence and the label spans
// (tag, value) used, so callers can build token-classification training
// rows alongside the plain text.
func (t Template) Fill(ctx context.Context, completer Completer) (string, map[string]string, error) {
	values := make(map[string]string)

	var fillErr error
	filled := placeholderRe.ReplaceAllStringFunc(string(t), func(match string) string {
		if fillErr != nil {
			return match
		}
		tag := placeholderRe.FindStringSubmatch(match)[1]
		if v, ok := values[tag]; ok {
			return v
		}
		if v, ok := Generate(tag); ok {
			values[tag] = v
			return v
		}
		v, err := completer.Complete(ctx, tag)
		if err != nil {
			fillErr = err
			return match
		}
		values[tag] = v
		return v
	})
	if fillErr != nil {
		return "", nil, fillErr
	}
	return filled, values, nil
}

// joinSentences is a small helper used when assembling multi-sentence
// synthetic passages from several filled templates.
func joinSentences(sentences []string) string {
	return strings.Join(sentences, " ")
}
