package dataset

// Class identifiers for the 20-class labeling scheme.
//
// Machine-printed digits occupy 1..9 and handwritten digits 11..19. Class 0
// marks an empty cell and class 10 a non-digit character ("out" class).
// Earlier label files used the opposite assignment for 0 and 10; RemapLegacy
// converts those.
const (
	ClassEmpty = 0
	ClassOut   = 10

	// NumClasses is the size of the one-hot label space.
	NumClasses = 20

	// HandwrittenOffset shifts a digit value into the handwritten class
	// range.
	HandwrittenOffset = 10
)

// IsDigitChar reports whether the codepoint is one of the characters
// '1'..'9'. Zero is deliberately excluded: sudoku cells never contain a
// printed zero, so '0' counts as an out-of-vocabulary character.
func IsDigitChar(codepoint int) bool {
	return codepoint >= '1' && codepoint <= '9'
}

// LabelForChar maps a character codepoint to its class. Digit characters
// map to their value plus offset, everything else to ClassOut. Pass
// HandwrittenOffset to label handwritten sources.
func LabelForChar(codepoint, offset int) int {
	if IsDigitChar(codepoint) {
		return codepoint - '0' + offset
	}
	return ClassOut
}

// RemapLegacy rewrites labels recorded under the legacy scheme, which used
// 0 for the out class and 10 for empty cells, into the current scheme. The
// two values swap; all other labels are shared between the schemes.
func RemapLegacy(labels []int) {
	for i, l := range labels {
		switch l {
		case 0:
			labels[i] = 10
		case 10:
			labels[i] = 0
		}
	}
}
