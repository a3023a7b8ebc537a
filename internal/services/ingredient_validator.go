package services

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultBlockedTerms are non-food words in the languages the app ships with.
var DefaultBlockedTerms = []string{
	"glue", "cola", "soap", "sabão", "sabonete", "detergent", "detergente",
	"bleach", "água sanitária", "poison", "veneno", "plastic", "plástico",
	"gasoline", "gasolina", "cement", "cimento", "paint", "tinta",
	"shampoo", "xampu", "battery", "bateria", "rat poison", "chumbinho",
}

type blockedTerm struct {
	term    string
	pattern *regexp.Regexp
}

// IngredientValidator rejects empty, oversized and non-food ingredient lists.
type IngredientValidator struct {
	maxLength int
	blocked   []blockedTerm
}

func NewIngredientValidator(maxLength int, terms []string) *IngredientValidator {
	if len(terms) == 0 {
		terms = DefaultBlockedTerms
	}
	v := &IngredientValidator{maxLength: maxLength}
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		v.blocked = append(v.blocked, blockedTerm{term: t, pattern: wholeWordPattern(t)})
	}
	return v
}

// wholeWordPattern matches term only when it is not surrounded by letters or digits, so "cola" does not
// match "chocolate". \b is ASCII-only in RE2, which would break on accented words.
func wholeWordPattern(term string) *regexp.Regexp {
	words := strings.Fields(term)
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}])` + strings.Join(words, `\s+`) + `(?:$|[^\p{L}\p{N}])`)
}

// Validate returns a *ValidationError describing the first problem found.
func (v *IngredientValidator) Validate(ingredients string) error {
	if strings.TrimSpace(ingredients) == "" {
		return &ValidationError{Message: "Please tell us at least one ingredient."}
	}
	if v.maxLength > 0 && utf8.RuneCountInString(ingredients) > v.maxLength {
		return &ValidationError{Message: fmt.Sprintf("The ingredient list is too long. Use at most %d characters.", v.maxLength)}
	}

	tokens := 0
	for _, token := range strings.Split(ingredients, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		tokens++
		for _, b := range v.blocked {
			if b.pattern.MatchString(token) {
				return &ValidationError{
					Message: "Those ingredients don't look like food. Please use only edible ingredients.",
					Blocked: true,
					Term:    b.term,
				}
			}
		}
	}
	if tokens == 0 {
		return &ValidationError{Message: "Please tell us at least one ingredient."}
	}
	return nil
}
