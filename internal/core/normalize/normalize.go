// Package normalize canonicalizes venue names deterministically.
// The pipeline runs UTF-8 repair, NFKC, case folding, removal of
// zero-width and combining marks, fullwidth-to-ASCII width folding, and
// finally whitespace collapse with trimming
package normalize

import (
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// Normalizer is safe for concurrent use; each call checks a transformer
// chain out of the pool
type Normalizer struct{}

var chainPool = sync.Pool{
	New: func() any {
		// chain order matches the package doc
		return transform.Chain(
			norm.NFKC,
			cases.Fold(),                       // unicode case folding
			runes.Remove(runes.In(unicode.Mn)), // strip combining marks
			runes.Remove(runes.In(unicode.Cf)), // strip format chars ZWJ ZWNJ FEFF etc
			width.Fold,                         // map fullwidth forms to ASCII
		)
	},
}

// New constructs a Normalizer
func New() *Normalizer { return &Normalizer{} }

// Normalize runs the full pipeline over s
func (n *Normalizer) Normalize(s string) string {
	if s == "" {
		return ""
	}

	s = Sanitize(s)
	s = strings.ToValidUTF8(s, "")

	tr := chainPool.Get().(transform.Transformer)
	ns, _, _ := transform.String(tr, s)
	tr.Reset()
	chainPool.Put(tr)

	return collapseSpaces(ns)
}

var std = New()

// Key returns the canonical catalog key for a venue name so the same venue
// matches across providers and renames: normalized text with punctuation
// dropped, a leading article removed and single spaces between words.
// "Café MOGADOR" and "The Cafe Mogador" both key to "cafe mogador"
func Key(name string) string {
	s := std.Normalize(name)
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	inGap := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if inGap && b.Len() > 0 {
				b.WriteByte(' ')
			}
			inGap = false
			b.WriteRune(r)
			continue
		}
		inGap = true
	}
	out := b.String()
	for _, article := range []string{"the ", "le ", "la ", "el "} {
		if rest, ok := strings.CutPrefix(out, article); ok && rest != "" {
			out = rest
			break
		}
	}
	return out
}

// collapseSpaces folds whitespace runs to a single space. A run that
// includes a newline folds to a single newline instead, and the edges
// are trimmed
func collapseSpaces(s string) string {
	if s == "" {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	inWS := false
	sawNL := false
	flush := func() {
		if !inWS {
			return
		}
		if sawNL {
			b.WriteByte('\n')
		} else {
			b.WriteByte(' ')
		}
		inWS = false
		sawNL = false
	}
	for _, r := range s {
		if unicode.IsSpace(r) {
			inWS = true
			if r == '\n' || r == '\r' {
				sawNL = true
			}
			continue
		}
		flush()
		b.WriteRune(r)
	}
	flush()
	out := b.String()
	// Trim both spaces and newlines on edges
	out = strings.Trim(out, " \n\t\r")
	return out
}
