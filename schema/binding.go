package schema

import "sort"

// Strength is the binding strength of a coded field.
type Strength string

// Binding strengths. Only Required is enforced by the codec.
const (
	StrengthRequired   Strength = "required"
	StrengthExtensible Strength = "extensible"
	StrengthPreferred  Strength = "preferred"
	StrengthExample    Strength = "example"
)

// Valid reports whether s is a known strength.
func (s Strength) Valid() bool {
	switch s {
	case StrengthRequired, StrengthExtensible, StrengthPreferred, StrengthExample:
		return true
	}
	return false
}

// Enforced reports whether codes outside the value set are errors.
func (s Strength) Enforced() bool {
	return s == StrengthRequired
}

// Binding ties a coded field to a value set and, optionally, the codes of
// that value set known at schema time.
type Binding struct {
	Strength    Strength
	ValueSet    string
	Description string

	// Codes maps a code system URI to its legal codes.
	Codes map[string][]string

	index map[string]map[string]struct{}
}

// NewBinding creates a Binding with a prepared code index.
func NewBinding(strength Strength, valueSet string, codes map[string][]string) *Binding {
	b := &Binding{Strength: strength, ValueSet: valueSet, Codes: codes}
	b.index = make(map[string]map[string]struct{}, len(codes))
	for system, list := range codes {
		set := make(map[string]struct{}, len(list))
		for _, code := range list {
			set[code] = struct{}{}
		}
		b.index[system] = set
	}
	return b
}

// HasCodes reports whether the binding enumerates its codes.
func (b *Binding) HasCodes() bool {
	return b != nil && len(b.Codes) > 0
}

// Systems returns the bound code system URIs in sorted order.
func (b *Binding) Systems() []string {
	systems := make([]string, 0, len(b.Codes))
	for system := range b.Codes {
		systems = append(systems, system)
	}
	sort.Strings(systems)
	return systems
}

// Contains reports whether code is legal. An empty system matches the code
// in any bound code system, as for plain `code` fields.
func (b *Binding) Contains(system, code string) bool {
	if b == nil {
		return false
	}
	if system == "" {
		for s := range b.Codes {
			if b.contains(s, code) {
				return true
			}
		}
		return false
	}
	return b.contains(system, code)
}

func (b *Binding) contains(system, code string) bool {
	if b.index != nil {
		_, ok := b.index[system][code]
		return ok
	}
	for _, c := range b.Codes[system] {
		if c == code {
			return true
		}
	}
	return false
}
