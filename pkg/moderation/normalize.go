// Package moderation decides whether user-submitted text is published
// immediately, held for manual review, or rejected. Detection is
// deterministic: adversarial normalization followed by exact and fuzzy
// matching against a static denylist.
package moderation

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// homoglyphs maps accented and lookalike letters to their plain-ASCII
// base. ñ maps to itself: it is a letter of the target alphabet, not an
// obfuscation of n.
var homoglyphs = map[string]string{
	"á": "a", "à": "a", "ä": "a", "â": "a", "ã": "a", "å": "a", "ā": "a",
	"é": "e", "è": "e", "ë": "e", "ê": "e", "ē": "e",
	"í": "i", "ì": "i", "î": "i", "ï": "i", "ī": "i",
	"ó": "o", "ò": "o", "ô": "o", "ö": "o", "õ": "o", "ø": "o", "ō": "o",
	"ú": "u", "ù": "u", "û": "u", "ü": "u", "ū": "u",
	"ñ": "ñ", "ç": "c", "ß": "ss", "æ": "ae", "œ": "oe",
	"ḧ": "h", "ő": "o", "ẅ": "w",
}

// leetMap maps digits and symbols commonly used as letter substitutes.
var leetMap = map[rune]rune{
	'0': 'o', '1': 'i', '2': 'r', '3': 'e', '4': 'a', '5': 's', '6': 'g',
	'7': 't', '8': 'b', '9': 'g',
	'@': 'a', '$': 's', '+': 't', '!': 'i', '|': 'i', '¡': 'i',
}

var (
	zeroWidthReplacer  = strings.NewReplacer("\u200b", "", "\u200c", "", "\u200d", "", "\ufeff", "")
	homoglyphReplacer  = newHomoglyphReplacer()
	bracketReplacer    = strings.NewReplacer("[", "", "]", "", "(", "", ")", "", "{", "", "}", "")
	separatorReplacer  = strings.NewReplacer(".", "", "-", "", "_", "", ",", "", "/", "", "\\", "", ":", "", ";", "", "'", "", "\"", "", "`", "", "·", "", "•", "", "*", "", "~", "", "°", "", "^", "")
	whitespaceRegexp   = regexp.MustCompile(`\s+`)
	combiningMarkChain = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
)

func newHomoglyphReplacer() *strings.Replacer {
	pairs := make([]string, 0, len(homoglyphs)*2)
	for from, to := range homoglyphs {
		pairs = append(pairs, from, to)
	}
	return strings.NewReplacer(pairs...)
}

// Normalize canonicalizes text into the matching alphabet [a-z0-9ñ],
// stripping the obfuscation tricks the pipeline is designed to defeat:
// zero-width characters, homoglyphs and accents, bracket hiding,
// spacing, separator noise, leetspeak and character stretching.
// It is pure and total; empty input yields an empty string.
//
// The stage order matters: each stage assumes the canonical form of the
// previous one (brackets are dropped before spaces so "w[o]rd" survives
// intact, leet substitution runs after separators so "t.0.n.t.0"
// collapses first).
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	t := strings.ToLower(text)
	t = zeroWidthReplacer.Replace(t)
	t = homoglyphReplacer.Replace(t)
	t = stripCombiningMarks(t)
	t = bracketReplacer.Replace(t)
	t = whitespaceRegexp.ReplaceAllString(t, " ")
	t = strings.ReplaceAll(t, " ", "")
	t = separatorReplacer.Replace(t)
	t = desleet(t)
	t = restrictAlphabet(t)
	t = collapseRepeats(t)

	return t
}

// stripCombiningMarks applies compatibility decomposition and removes
// combining diacritical marks, catching accents the homoglyph table
// does not list. ñ is shielded behind a private-use rune so the
// decomposition does not reduce it to a bare n.
func stripCombiningMarks(s string) string {
	const shield = "\ue000"
	s = strings.ReplaceAll(s, "ñ", shield)
	out, _, err := transform.String(combiningMarkChain, s)
	if err != nil {
		out = s
	}
	return strings.ReplaceAll(out, shield, "ñ")
}

func desleet(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if sub, ok := leetMap[r]; ok {
			b.WriteRune(sub)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func restrictAlphabet(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == 'ñ' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// collapseRepeats reduces any run of 3 or more identical runes to
// exactly 2, so "soooooo" collapses to "soo" while linguistically valid
// doubled letters survive.
func collapseRepeats(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	run := 0
	for i, r := range s {
		if i > 0 && r == prev {
			run++
		} else {
			run = 1
		}
		if run <= 2 {
			b.WriteRune(r)
		}
		prev = r
	}
	return b.String()
}
