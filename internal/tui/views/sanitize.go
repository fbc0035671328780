package views

import (
	"strings"
	"unicode"
)

// emojiModifiers are runes tcell cannot draw as part of a cluster: skin tones,
// joiners and variation selectors. Dropping them leaves the base glyph.
var emojiModifiers = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x200d, Hi: 0x200d, Stride: 1},
		{Lo: 0xfe00, Hi: 0xfe0f, Stride: 1},
	},
	R32: []unicode.Range32{
		{Lo: 0x1f3fb, Hi: 0x1f3ff, Stride: 1},
		{Lo: 0xe0100, Hi: 0xe01ef, Stride: 1},
	},
}

// plainText makes a chat body safe to print in a cell grid. Newlines survive;
// tabs become spaces and other control runes are dropped.
func plainText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n':
			return r
		case r == '\t':
			return ' '
		case unicode.IsControl(r), unicode.Is(emojiModifiers, r):
			return -1
		}
		return r
	}, s)
}

// oneLine is plainText for table cells and headers.
func oneLine(s string) string {
	return strings.Join(strings.Fields(plainText(s)), " ")
}
