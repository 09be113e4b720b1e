// Package textnorm folds and tokenizes free text so that place names and query
// phrases compare equal regardless of case, accents or punctuation.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Symbol tokens emitted by Tokenize besides words and numbers.
const (
	Dash = "-"
	Gt   = ">"
	Lt   = "<"
)

// Fold lower-cases s and strips combining marks ("Ynys Môn" -> "ynys mon").
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// Tokenize splits folded text into words, numbers and the symbols '-', '<', '>'.
// Apostrophes inside a word are dropped ("king's" -> "kings"). A dash is only kept
// when it follows a number or a unit directly after a number, so "8-10" and
// "100kw-500kw" yield range tokens while "stoke-on-trent" yields plain words.
func Tokenize(s string) []string {
	s = Fold(s)
	var tokens []string
	var cur strings.Builder
	curKind := 0 // 0 none, 1 word, 2 number

	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
		curKind = 0
	}

	rs := []rune(s)
	for i, r := range rs {
		switch {
		case unicode.IsLetter(r):
			if curKind == 2 {
				flush()
			}
			curKind = 1
			cur.WriteRune(r)
		case unicode.IsDigit(r):
			if curKind == 1 {
				flush()
			}
			curKind = 2
			cur.WriteRune(r)
		case r == '.' && curKind == 2 && i+1 < len(rs) && unicode.IsDigit(rs[i+1]):
			cur.WriteRune(r)
		case r == ',' && curKind == 2 && i+3 < len(rs) && isDigits(rs[i+1:i+4]) && (i+4 == len(rs) || !unicode.IsDigit(rs[i+4])):
			// thousands separator: "1,500kw"
		case (r == '\'' || r == '’') && curKind == 1:
		case r == '-' || r == '–' || r == '—':
			flush()
			if dashAllowed(tokens) {
				tokens = append(tokens, Dash)
			}
		case r == '>' || r == '<':
			flush()
			tokens = append(tokens, string(r))
		default:
			flush()
		}
	}
	flush()
	return tokens
}

// Key returns the canonical lookup form of a name: its word and number tokens joined by spaces.
func Key(s string) string {
	tokens := Tokenize(s)
	words := tokens[:0]
	for _, t := range tokens {
		if IsSymbol(t) {
			continue
		}
		words = append(words, t)
	}
	return strings.Join(words, " ")
}

// IsSymbol reports whether tok is one of the symbol tokens.
func IsSymbol(tok string) bool {
	return tok == Dash || tok == Gt || tok == Lt
}

// IsNumber reports whether tok is a numeric token.
func IsNumber(tok string) bool {
	if tok == "" {
		return false
	}
	for _, r := range tok {
		if !unicode.IsDigit(r) && r != '.' {
			return false
		}
	}
	return unicode.IsDigit(rune(tok[0]))
}

func dashAllowed(tokens []string) bool {
	n := len(tokens)
	if n == 0 {
		return false
	}
	if IsNumber(tokens[n-1]) {
		return true
	}
	return n >= 2 && IsNumber(tokens[n-2]) && isUnit(tokens[n-1])
}

func isUnit(tok string) bool {
	switch tok {
	case "kw", "mw", "kwp", "mwp", "years", "year", "yrs", "yr":
		return true
	}
	return false
}

func isDigits(rs []rune) bool {
	for _, r := range rs {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
