package gcode

import "testing"

func TestParseBasicBlock(t *testing.T) {
	tests := []struct {
		input  string
		words  map[byte]float64
	}{
		{"G0 X10 Y20", map[byte]float64{'G': 0, 'X': 10, 'Y': 20}},
		{"G1 X100.5 Y200.25 F3000", map[byte]float64{'G': 1, 'X': 100.5, 'Y': 200.25, 'F': 3000}},
		{"G28", map[byte]float64{'G': 28}},
		{"M104 S200", map[byte]float64{'M': 104, 'S': 200}},
		{"G92 X0 Y0 Z0", map[byte]float64{'G': 92, 'X': 0, 'Y': 0, 'Z': 0}},
		{"G02X10Y0I5J0F600", map[byte]float64{'G': 2, 'X': 10, 'Y': 0, 'I': 5, 'J': 0, 'F': 600}},
	}

	for _, test := range tests {
		blocks := Parse(test.input)
		if len(blocks) != 1 {
			t.Fatalf("expected exactly 1 block for %q, got %d", test.input, len(blocks))
		}
		block := blocks[0]
		for letter, value := range test.words {
			if !block.Has(letter) {
				t.Errorf("%q: missing word %c", test.input, letter)
				continue
			}
			if got := block.Get(letter, 0); got != value {
				t.Errorf("%q: expected %c=%g, got %c=%g", test.input, letter, value, letter, got)
			}
		}
	}
}

func TestParseNegativeNumbers(t *testing.T) {
	blocks := Parse("G1 X-10.5 Y-20")
	block := blocks[0]
	if block.Get('X', 0) != -10.5 {
		t.Errorf("expected X=-10.5, got %g", block.Get('X', 0))
	}
	if block.Get('Y', 0) != -20 {
		t.Errorf("expected Y=-20, got %g", block.Get('Y', 0))
	}
}

func TestParseLowercase(t *testing.T) {
	blocks := Parse("g1 x10 y20")
	block := blocks[0]
	if !block.Has('G') || block.Get('G', -1) != 1 {
		t.Errorf("expected lowercase g1 to parse as G1")
	}
	if block.Get('X', 0) != 10 {
		t.Errorf("expected X=10, got %g", block.Get('X', 0))
	}
}

func TestParseComments(t *testing.T) {
	tests := []string{
		"; This is a comment",
		"G0 X10 ; Move to X10",
		"(This is a comment)",
		"G1 (mid-line comment) X5",
	}

	for _, input := range tests {
		blocks := Parse(input)
		if len(blocks) != 1 {
			t.Fatalf("expected 1 block for %q, got %d", input, len(blocks))
		}
	}

	withComment := Parse("G0 X10 ; move")
	if withComment[0].Comment == "" {
		t.Errorf("expected comment to be recorded")
	}
	if withComment[0].Get('X', 0) != 10 {
		t.Errorf("expected X10 to still parse alongside a trailing comment")
	}

	midLine := Parse("G1 (mid-line comment) X5")
	if !midLine[0].Has('G') || !midLine[0].Has('X') {
		t.Errorf("expected both G and X words to survive a mid-line comment")
	}
}

func TestParseEmptyLineYieldsEmptyBlock(t *testing.T) {
	blocks := Parse("")
	if len(blocks) != 1 {
		t.Fatalf("expected 1 block for an empty program, got %d", len(blocks))
	}
	if !blocks[0].Empty() {
		t.Errorf("expected empty block for empty input")
	}
}

func TestParseMalformedLineIsNonFatal(t *testing.T) {
	blocks := Parse("G X Y10")
	block := blocks[0]
	if block.Has('G') {
		t.Errorf("expected bare 'G' with no number to be skipped")
	}
	if !block.Has('Y') || block.Get('Y', 0) != 10 {
		t.Errorf("expected valid word Y10 to still parse despite a malformed G word")
	}
}

func TestParsePreservesLineOrderAndIndex(t *testing.T) {
	blocks := Parse("G21\nG90\nG01 X10 F600")
	if len(blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %d", len(blocks))
	}
	for i, b := range blocks {
		if b.Line != i {
			t.Errorf("expected block %d to record source line %d, got %d", i, i, b.Line)
		}
	}
}

func TestRoundTripReprint(t *testing.T) {
	inputs := []string{
		"G1 X100.5 Y-200.25 F3000",
		"G02 X10 Y0 I5 J0 F600",
		"M06 T3",
	}

	for _, input := range inputs {
		original := Parse(input)[0]
		reprinted := original.Reprint()
		roundTripped := Parse(reprinted)[0]

		if len(roundTripped.Words) != len(original.Words) {
			t.Fatalf("%q: reprint %q lost or gained words: %v vs %v", input, reprinted, original.Words, roundTripped.Words)
		}
		for letter, value := range original.Words {
			got, ok := roundTripped.Words[letter]
			if !ok {
				t.Fatalf("%q: reprint %q dropped word %c", input, reprinted, letter)
			}
			diff := got - value
			if diff < 0 {
				diff = -diff
			}
			if diff > 1e-9 {
				t.Errorf("%q: word %c changed value by reprint: %g vs %g", input, letter, value, got)
			}
		}
	}
}
