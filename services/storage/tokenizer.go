package storage

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Tokenize normalizes a query or chunk into language-agnostic search
// tokens: lowercase, NFC then NFD with combining marks removed, split on
// non-alphanumeric runes, keeping tokens longer than two characters.
func Tokenize(text string) []string {
	lower := strings.ToLower(text)
	decomposed := norm.NFD.String(norm.NFC.String(lower))

	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}

	fields := strings.FieldsFunc(b.String(), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := fields[:0]
	for _, f := range fields {
		if utf8.RuneCountInString(f) > 2 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// normalizeOCR folds the OCR confusions this corpus actually hits:
// dotless i (U+0131) reads as 'i', and a digit '1' adjacent to letters is
// almost always a mis-scanned 'i' or 'l'.
func normalizeOCR(token string) string {
	runes := []rune(strings.ReplaceAll(token, "ı", "i"))
	for i, r := range runes {
		if r != '1' {
			continue
		}
		prevLetter := i > 0 && unicode.IsLetter(runes[i-1])
		nextLetter := i+1 < len(runes) && unicode.IsLetter(runes[i+1])
		if prevLetter || nextLetter {
			runes[i] = 'i'
		}
	}
	return string(runes)
}

// TokensMatch reports whether two tokens are equal under OCR folding.
func TokensMatch(a, b string) bool {
	if a == b {
		return true
	}
	return normalizeOCR(a) == normalizeOCR(b)
}

// rareTokenLength marks tokens long enough to be treated as rare
// keywords worth a scoring bonus.
const rareTokenLength = 8

// LexicalScore counts how many query tokens appear in the content, with a
// half-point bonus per matched rare keyword. Zero means no overlap.
func LexicalScore(contentTokens []string, queryTokens []string) float64 {
	if len(contentTokens) == 0 || len(queryTokens) == 0 {
		return 0
	}

	seen := make(map[string]struct{}, len(contentTokens))
	for _, t := range contentTokens {
		seen[normalizeOCR(t)] = struct{}{}
	}

	score := 0.0
	for _, q := range queryTokens {
		if _, ok := seen[normalizeOCR(q)]; !ok {
			continue
		}
		score++
		if utf8.RuneCountInString(q) >= rareTokenLength {
			score += 0.5
		}
	}
	return score
}
