// Package chunk splits raw document text into overlapping windows for
// embedding and retrieval.
//
// The splitter works on runes, not bytes, so multi-byte text is never cut
// inside a code point. Windows overlap by a configurable number of runes and
// prefer natural boundaries (paragraph, sentence, word) over hard cuts, which
// keeps embedded spans semantically whole and improves retrieval quality.
package chunk

import (
	"errors"
	"fmt"
	"iter"
	"unicode"
)

// Default chunking parameters, used when a Config field is zero.
const (
	DefaultSize    = 1000
	DefaultOverlap = 200
)

var (
	// ErrInvalidSize indicates a non-positive chunk size.
	ErrInvalidSize = errors.New("chunk size must be positive")

	// ErrInvalidOverlap indicates an overlap outside [0, size).
	ErrInvalidOverlap = errors.New("chunk overlap must be in [0, size)")
)

// Config holds chunking parameters.
type Config struct {
	// Size is the maximum window length in runes.
	Size int

	// Overlap is how many runes consecutive windows share.
	Overlap int
}

// Validate checks the chunking preconditions.
func (c Config) Validate() error {
	if c.Size <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidSize, c.Size)
	}
	if c.Overlap < 0 || c.Overlap >= c.Size {
		return fmt.Errorf("%w: got overlap=%d size=%d", ErrInvalidOverlap, c.Overlap, c.Size)
	}
	return nil
}

// withDefaults fills zero fields with package defaults.
func (c Config) withDefaults() Config {
	if c.Size == 0 {
		c.Size = DefaultSize
	}
	if c.Overlap == 0 && c.Size > DefaultOverlap {
		c.Overlap = DefaultOverlap
	}
	return c
}

// Split returns a lazy sequence of overlapping windows over text.
//
// Each window holds at most size runes; each window after the first starts
// size-overlap runes after the previous window's start. The final window may
// be shorter. When a window would end mid-word, the cut point backs up to the
// nearest natural boundary within a small lookback window: paragraph break
// first, then sentence end, then whitespace. A hard cut happens only when no
// boundary exists in the lookback range.
//
// The sequence is restartable: ranging over it twice yields the same windows.
// Callers must validate size and overlap via Config.Validate; Split panics on
// invalid parameters since they indicate a programming error, not input data.
func Split(text string, size, overlap int) iter.Seq[string] {
	cfg := Config{Size: size, Overlap: overlap}
	if err := cfg.Validate(); err != nil {
		panic(err)
	}

	return func(yield func(string) bool) {
		runes := []rune(text)
		n := len(runes)
		if n == 0 {
			return
		}

		lookback := boundaryLookback(size)

		for start := 0; start < n; {
			end := start + size
			if end >= n {
				if !yield(string(runes[start:n])) {
					return
				}
				return
			}

			// Back up to a natural boundary when one exists close enough.
			if cut := boundaryBefore(runes, end, lookback); cut > start {
				end = cut
			}

			if !yield(string(runes[start:end])) {
				return
			}

			// Advance relative to the actual window end so boundary-shortened
			// windows never leave a gap in coverage.
			next := end - overlap
			if next <= start {
				next = start + 1
			}
			start = next
		}
	}
}

// boundaryLookback bounds how far boundaryBefore searches backwards.
// A fifth of the window, capped at 64 runes, keeps windows near their
// nominal size while still avoiding mid-word cuts in normal prose.
func boundaryLookback(size int) int {
	lb := size / 5
	if lb > 64 {
		lb = 64
	}
	if lb < 1 {
		lb = 1
	}
	return lb
}

// boundaryBefore returns the best cut position at or before end, searching at
// most lookback runes backwards. Returns 0 if no boundary was found.
//
// Preference order: paragraph break ("\n\n"), sentence end (. ! ? followed by
// space), any whitespace. The returned position is one past the boundary rune
// so the boundary stays with the leading window.
func boundaryBefore(runes []rune, end, lookback int) int {
	limit := end - lookback
	if limit < 0 {
		limit = 0
	}

	sentence := 0
	space := 0
	for i := end - 1; i >= limit; i-- {
		r := runes[i]
		if r == '\n' && i > 0 && runes[i-1] == '\n' {
			return i + 1 // paragraph break wins immediately
		}
		if sentence == 0 && isSentenceEnd(r) && i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
			sentence = i + 1
		}
		if space == 0 && unicode.IsSpace(r) {
			space = i + 1
		}
	}

	if sentence > 0 {
		return sentence
	}
	return space
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?':
		return true
	}
	return false
}
