// Package enrich derives tags and aliases for an item from its name and
// description. The tokenizer is deterministic on purpose: accents stripped,
// lowercase, alphanumeric runs of three or more characters, stopwords
// removed.
package enrich

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// stopwords filtered out of generated tags. The mixed Spanish/English list
// is kept verbatim from the deployed dataset so regenerated tags stay
// stable.
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true,
	"con": true, "sin": true, "para": true,
	"una": true, "unos": true, "unas": true,
	"este": true, "esta": true,
	"that": true, "from": true, "with": true,
	"garaje": true,
}

var tokenRe = regexp.MustCompile(`[a-z0-9]{3,}`)

// Normalize lowercases and strips combining marks ("Taladró" -> "taladro").
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		for _, d := range decompose(r) {
			if !unicode.Is(unicode.Mn, d) {
				b.WriteRune(unicode.ToLower(d))
			}
		}
	}
	return b.String()
}

// decompose splits the latin-1 accented range into base rune + combining
// mark equivalents; other runes pass through unchanged.
func decompose(r rune) []rune {
	if r < utf8.RuneSelf {
		return []rune{r}
	}
	if base, ok := latinBase[unicode.ToLower(r)]; ok {
		return []rune{base}
	}
	return []rune{r}
}

var latinBase = map[rune]rune{
	'á': 'a', 'à': 'a', 'ä': 'a', 'â': 'a', 'ã': 'a',
	'é': 'e', 'è': 'e', 'ë': 'e', 'ê': 'e',
	'í': 'i', 'ì': 'i', 'ï': 'i', 'î': 'i',
	'ó': 'o', 'ò': 'o', 'ö': 'o', 'ô': 'o', 'õ': 'o',
	'ú': 'u', 'ù': 'u', 'ü': 'u', 'û': 'u',
	'ñ': 'n', 'ç': 'c',
}

// Tokenize returns the normalized, stopword-free tokens of raw.
func Tokenize(raw string) []string {
	var out []string
	for _, tok := range tokenRe.FindAllString(Normalize(raw), -1) {
		if !stopwords[tok] {
			out = append(out, tok)
		}
	}
	return out
}

// TagsAndAliases generates up to 10 tags (unique tokens of name +
// description, first 8 collected) and up to 5 aliases built from the
// name's leading tokens. The full normalized name is excluded from
// aliases; it already matches via the name rules.
func TagsAndAliases(name string, description string) (tags, aliases []string) {
	source := strings.TrimSpace(name + " " + description)

	for _, tok := range Tokenize(source) {
		if !contains(tags, tok) {
			tags = append(tags, tok)
		}
		if len(tags) >= 8 {
			break
		}
	}

	normalizedName := Normalize(name)
	nameTokens := Tokenize(name)
	var raw []string
	if len(nameTokens) > 0 {
		raw = append(raw, strings.Join(nameTokens[:min(2, len(nameTokens))], "-"))
	}
	if len(nameTokens) >= 2 {
		raw = append(raw, strings.Join(nameTokens[:2], " "))
	}
	if normalizedName != "" && !contains(raw, normalizedName) {
		raw = append(raw, normalizedName)
	}
	for _, alias := range raw {
		if alias != "" && alias != normalizedName {
			aliases = append(aliases, alias)
		}
		if len(aliases) >= 5 {
			break
		}
	}

	if len(tags) > 10 {
		tags = tags[:10]
	}
	return tags, aliases
}

func contains(s []string, v string) bool {
	for _, e := range s {
		if e == v {
			return true
		}
	}
	return false
}
