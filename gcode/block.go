package gcode

import (
	"strconv"
	"strings"
)

// Block is one parsed program line: the set of words present on that
// line plus its source index. Malformed lines still produce a Block —
// an empty one — so a channel's program counter always lines up with
// source order (spec §4.D: "parse errors are non-fatal").
type Block struct {
	Words   map[byte]float64
	Line    int
	Comment string
}

func newBlock(line int) Block {
	return Block{Words: make(map[byte]float64), Line: line}
}

// Has reports whether letter was present on this line.
func (b Block) Has(letter byte) bool {
	_, ok := b.Words[letter]
	return ok
}

// Get returns the value for letter, or def if it was not present.
func (b Block) Get(letter byte, def float64) float64 {
	if v, ok := b.Words[letter]; ok {
		return v
	}
	return def
}

// Empty reports whether the block carries no words at all (a comment-
// only or malformed line).
func (b Block) Empty() bool {
	return len(b.Words) == 0
}

// letterOrder fixes a deterministic word order for Reprint; it is not
// meaningful to a G-code consumer (word order within a block almost
// never matters) but makes round-tripping deterministic.
var letterOrder = []byte{'N', 'G', 'M', 'T', 'X', 'Y', 'Z', 'A', 'B', 'C', 'I', 'J', 'K', 'R', 'F', 'S', 'H', 'D', 'P', 'L'}

// Reprint renders the block back to G-code text. It is not a minimal
// or modally-aware re-emission (it always dumps every word present) —
// the round-trip invariant only requires semantic equivalence, not a
// byte-identical or minimal string.
func (b Block) Reprint() string {
	var sb strings.Builder
	for _, letter := range letterOrder {
		if v, ok := b.Words[letter]; ok {
			sb.WriteByte(letter)
			sb.WriteString(formatValue(v))
		}
	}
	for letter, v := range b.Words {
		if !containsLetter(letterOrder, letter) {
			sb.WriteByte(letter)
			sb.WriteString(formatValue(v))
		}
	}
	return sb.String()
}

func containsLetter(set []byte, letter byte) bool {
	for _, l := range set {
		if l == letter {
			return true
		}
	}
	return false
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
