package instcat

import (
	"fmt"
	"strconv"
	"strings"
)

// Fixed token positions of an instance-catalog object line.
const (
	colID       = 1  // integer unique id
	colMagNorm  = 4  // magnitude normalization
	colSize     = 13 // size parameter (half-light radius)
	colExtModel = 17 // internal extinction model name, or "none"
	colAv       = 18 // internal A_v
	colRv       = 19 // internal R_v
)

// hostIDShift collapses per-component sub-ids into the shared host
// galaxy id: identity key = unique id >> hostIDShift.
const hostIDShift = 10

// ObjectLine is a tokenized catalog line.
type ObjectLine struct {
	Tokens []string
}

// ParseLine tokenizes an object line.
func ParseLine(line string) ObjectLine {
	return ObjectLine{Tokens: strings.Fields(line)}
}

// HostID returns the derived identity key shared across the line's
// galaxy components.
func (l *ObjectLine) HostID() (int64, error) {
	if len(l.Tokens) <= colID {
		return 0, fmt.Errorf("object line has %d tokens, no id column", len(l.Tokens))
	}
	id, err := strconv.ParseInt(l.Tokens[colID], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("object id %q: %w", l.Tokens[colID], err)
	}
	return id >> hostIDShift, nil
}

// MagNorm returns the magnitude normalization column.
func (l *ObjectLine) MagNorm() (float64, error) {
	return l.floatAt(colMagNorm, "magnorm")
}

// SetMagNorm rewrites the magnitude normalization column.
func (l *ObjectLine) SetMagNorm(v float64) {
	l.Tokens[colMagNorm] = formatFloat(v)
}

// Size returns the size-parameter column.
func (l *ObjectLine) Size() (float64, error) {
	return l.floatAt(colSize, "size")
}

func (l *ObjectLine) floatAt(col int, name string) (float64, error) {
	if len(l.Tokens) <= col {
		return 0, fmt.Errorf("object line has %d tokens, no %s column", len(l.Tokens), name)
	}
	v, err := strconv.ParseFloat(l.Tokens[col], 64)
	if err != nil {
		return 0, fmt.Errorf("%s %q: %w", name, l.Tokens[col], err)
	}
	return v, nil
}

// String joins the tokens back into a catalog line.
func (l *ObjectLine) String() string {
	return strings.Join(l.Tokens, " ")
}

// formatFloat renders a value the way the catalogs store floats: nine
// decimal places with trailing zeros trimmed.
func formatFloat(v float64) string {
	return strings.TrimRight(fmt.Sprintf("%.9f", v), "0")
}
