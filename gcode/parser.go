// Package gcode implements the line-oriented G/M-code lexer and
// parser: comment stripping, case folding, and a tolerant
// letter-plus-signed-number scanner that emits one Block per source
// line regardless of whether that line parsed cleanly.
package gcode

import "strings"

// Parse tokenizes text into one Block per line, in source order. It
// never returns an error: a line that fails to scan simply yields a
// Block with fewer (or no) words — the spec treats parse failures as
// recoverable, not fatal (§4.D, §7 ParseError).
func Parse(text string) []Block {
	lines := strings.Split(text, "\n")
	blocks := make([]Block, 0, len(lines))

	for i, raw := range lines {
		line := strings.TrimRight(raw, "\r")
		block := newBlock(i)

		comment := ""
		if idx := strings.IndexByte(line, ';'); idx >= 0 {
			comment = line[idx:]
			line = line[:idx]
		}
		line, parenComment := stripParenComments(line)
		if comment == "" {
			comment = parenComment
		}
		block.Comment = comment

		parseWords(line, &block)
		blocks = append(blocks, block)
	}

	return blocks
}

// stripParenComments removes every "(...)" span from line, returning
// the cleaned line and the text of the first comment found (or the
// remainder of the line, for an unterminated "(").
func stripParenComments(line string) (cleaned string, comment string) {
	for {
		start := strings.IndexByte(line, '(')
		if start < 0 {
			return line, comment
		}
		rest := line[start:]
		end := strings.IndexByte(rest, ')')
		if end < 0 {
			if comment == "" {
				comment = rest
			}
			return line[:start], comment
		}
		end += start
		if comment == "" {
			comment = line[start : end+1]
		}
		line = line[:start] + " " + line[end+1:]
	}
}

// parseWords scans line for letter+number words and stores them on
// block. A bare letter with no valid following number is skipped
// rather than treated as fatal.
func parseWords(line string, block *Block) {
	i := 0
	for i < len(line) {
		for i < len(line) && (line[i] == ' ' || line[i] == '\t') {
			i++
		}
		if i >= len(line) {
			return
		}

		if !isLetter(line[i]) {
			i++
			continue
		}

		letter := toUpper(line[i])
		i++

		value, newPos, ok := parseFloat(line, i)
		if !ok {
			continue
		}
		block.Words[letter] = value
		i = newPos
	}
}

// parseFloat parses a signed decimal number from s starting at pos.
// It returns the value, the position just past the number, and
// whether a valid number was found at all.
func parseFloat(s string, pos int) (float64, int, bool) {
	if pos >= len(s) {
		return 0, pos, false
	}

	negative := false
	start := pos
	if s[pos] == '-' {
		negative = true
		pos++
	} else if s[pos] == '+' {
		pos++
	}

	digitsStart := pos
	intPart := 0.0
	for pos < len(s) && s[pos] >= '0' && s[pos] <= '9' {
		intPart = intPart*10 + float64(s[pos]-'0')
		pos++
	}

	fracPart := 0.0
	fracDigits := 0
	if pos < len(s) && s[pos] == '.' {
		pos++
		fracStart := pos
		for pos < len(s) && s[pos] >= '0' && s[pos] <= '9' {
			fracPart = fracPart*10.0 + float64(s[pos]-'0')
			pos++
		}
		fracDigits = pos - fracStart
	}

	if pos == digitsStart && fracDigits == 0 {
		return 0, start, false
	}

	value := intPart
	if fracDigits > 0 {
		divisor := 1.0
		for i := 0; i < fracDigits; i++ {
			divisor *= 10.0
		}
		value += fracPart / divisor
	}
	if negative {
		value = -value
	}

	return value, pos, true
}

func isLetter(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

func toUpper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - ('a' - 'A')
	}
	return c
}
