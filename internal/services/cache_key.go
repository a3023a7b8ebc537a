package services

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

const cacheKeyLength = 32

// NormalizeIngredients lower-cases, trims, drops empty tokens and sorts the comma separated list.
func NormalizeIngredients(ingredients string) []string {
	parts := strings.Split(strings.ToLower(ingredients), ",")
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tokens = append(tokens, p)
		}
	}
	sort.Strings(tokens)
	return tokens
}

// GenerateCacheKey content-addresses a request so that the same ingredient set yields the same key
// regardless of order, casing or spacing.
func GenerateCacheKey(ingredients, theme, language string) string {
	normalized := strings.Join(NormalizeIngredients(ingredients), ",")
	sum := sha256.Sum256([]byte(normalized + "-" + theme + "-" + language))
	return hex.EncodeToString(sum[:])[:cacheKeyLength]
}
