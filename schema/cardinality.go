package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// Unbounded is the Max of a cardinality without an upper limit ("*").
const Unbounded = -1

// Cardinality is the [Min, Max] occurrence range of a field.
// Max is either a non-negative bound or Unbounded.
type Cardinality struct {
	Min int
	Max int
}

// Common cardinalities.
var (
	Optional   = Cardinality{Min: 0, Max: 1}
	Mandatory  = Cardinality{Min: 1, Max: 1}
	Repeated   = Cardinality{Min: 0, Max: Unbounded}
	AtLeastOne = Cardinality{Min: 1, Max: Unbounded}
)

// ParseCardinality parses the "min..max" notation, e.g. "0..1" or "1..*".
func ParseCardinality(s string) (Cardinality, error) {
	lo, hi, ok := strings.Cut(strings.TrimSpace(s), "..")
	if !ok {
		return Cardinality{}, fmt.Errorf("cardinality %q: expected min..max", s)
	}
	minVal, err := strconv.Atoi(lo)
	if err != nil || minVal < 0 {
		return Cardinality{}, fmt.Errorf("cardinality %q: invalid min", s)
	}
	c := Cardinality{Min: minVal, Max: Unbounded}
	if hi != "*" {
		maxVal, err := strconv.Atoi(hi)
		if err != nil || maxVal < 0 {
			return Cardinality{}, fmt.Errorf("cardinality %q: invalid max", s)
		}
		c.Max = maxVal
	}
	return c, nil
}

// MustParseCardinality is like ParseCardinality but panics on error.
func MustParseCardinality(s string) Cardinality {
	c, err := ParseCardinality(s)
	if err != nil {
		panic(err)
	}
	return c
}

// String returns the "min..max" notation.
func (c Cardinality) String() string {
	return strconv.Itoa(c.Min) + ".." + c.MaxString()
}

// MaxString returns Max as it appears in FHIR definitions ("*" when unbounded).
func (c Cardinality) MaxString() string {
	if c.Max == Unbounded {
		return "*"
	}
	return strconv.Itoa(c.Max)
}

// IsList reports whether the field serializes as an array.
func (c Cardinality) IsList() bool {
	return c.Max == Unbounded || c.Max > 1
}

// Required reports whether at least one value must be present.
func (c Cardinality) Required() bool {
	return c.Min >= 1
}

// Allows reports whether n occurrences satisfy the range.
func (c Cardinality) Allows(n int) bool {
	if n < c.Min {
		return false
	}
	return c.Max == Unbounded || n <= c.Max
}

// Exceeded reports whether n occurrences are above Max.
func (c Cardinality) Exceeded(n int) bool {
	return c.Max != Unbounded && n > c.Max
}

// Valid reports whether 0 <= Min <= Max (or Max is unbounded).
func (c Cardinality) Valid() bool {
	if c.Min < 0 {
		return false
	}
	return c.Max == Unbounded || c.Max >= c.Min
}
