// Package reference parses FHIR reference literals into typed targets.
// References are never resolved here; a Target only says where a record
// lives.
package reference

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Kind classifies a reference literal.
type Kind int

// Reference kinds.
const (
	KindRelative Kind = iota + 1 // Patient/123
	KindAbsolute                 // http://server/fhir/Patient/123 or any absolute URI
	KindFragment                 // #contained-id
	KindUUID                     // urn:uuid:...
	KindOID                      // urn:oid:...
)

func (k Kind) String() string {
	switch k {
	case KindRelative:
		return "relative"
	case KindAbsolute:
		return "absolute"
	case KindFragment:
		return "fragment"
	case KindUUID:
		return "uuid"
	case KindOID:
		return "oid"
	default:
		return "unknown"
	}
}

var (
	// Patient/123, Patient/123/_history/2
	relativeRefPattern = regexp.MustCompile(`^([A-Z][A-Za-z]+)/([A-Za-z0-9\-.]{1,64})(?:/_history/([A-Za-z0-9\-.]{1,64}))?$`)

	// http://example.org/fhir/Patient/123
	absoluteRefPattern = regexp.MustCompile(`^(https?://\S+?)/([A-Z][A-Za-z]+)/([A-Za-z0-9\-.]{1,64})(?:/_history/([A-Za-z0-9\-.]{1,64}))?$`)

	// Any other absolute URI, e.g. a canonical URL.
	absoluteURIPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.\-]*:\S+$`)

	fragmentRefPattern = regexp.MustCompile(`^#[A-Za-z0-9\-.]{1,64}$`)
	oidRefPattern      = regexp.MustCompile(`^urn:oid:[0-2](\.(0|[1-9][0-9]*))+$`)
)

// Target is a type-tagged pointer to an independent record.
type Target struct {
	Kind    Kind
	Type    string // resource type, when the literal names one
	ID      string // logical id, or the anchor for fragments
	Version string // _history version, if any
	Base    string // service base of absolute references
	Literal string
}

// New creates a relative reference to typeName/id.
func New(typeName, id string) Target {
	return Target{
		Kind:    KindRelative,
		Type:    typeName,
		ID:      id,
		Literal: typeName + "/" + id,
	}
}

// Anchor creates a reference to a contained record.
func Anchor(id string) Target {
	return Target{Kind: KindFragment, ID: id, Literal: "#" + id}
}

// FormatError reports a literal matching no reference form.
type FormatError struct {
	Literal string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid reference format: %q", e.Literal)
}

// Parse classifies literal and extracts its type, id and version.
func Parse(literal string) (Target, error) {
	t := Target{Literal: literal}

	switch {
	case literal == "":
		return t, &FormatError{Literal: literal}

	case strings.HasPrefix(literal, "#"):
		if !fragmentRefPattern.MatchString(literal) && literal != "#" {
			return t, &FormatError{Literal: literal}
		}
		t.Kind = KindFragment
		t.ID = literal[1:]
		return t, nil

	case strings.HasPrefix(literal, "urn:uuid:"):
		id, err := uuid.Parse(strings.TrimPrefix(literal, "urn:uuid:"))
		if err != nil {
			return t, &FormatError{Literal: literal}
		}
		t.Kind = KindUUID
		t.ID = id.String()
		return t, nil

	case strings.HasPrefix(literal, "urn:oid:"):
		if !oidRefPattern.MatchString(literal) {
			return t, &FormatError{Literal: literal}
		}
		t.Kind = KindOID
		t.ID = strings.TrimPrefix(literal, "urn:oid:")
		return t, nil
	}

	if m := relativeRefPattern.FindStringSubmatch(literal); m != nil {
		t.Kind = KindRelative
		t.Type, t.ID, t.Version = m[1], m[2], m[3]
		return t, nil
	}
	if m := absoluteRefPattern.FindStringSubmatch(literal); m != nil {
		t.Kind = KindAbsolute
		t.Base, t.Type, t.ID, t.Version = m[1], m[2], m[3], m[4]
		return t, nil
	}
	if absoluteURIPattern.MatchString(literal) {
		t.Kind = KindAbsolute
		return t, nil
	}
	return t, &FormatError{Literal: literal}
}

// String returns the literal form.
func (t Target) String() string {
	return t.Literal
}

// IsLocal reports whether the target lives in the same document.
func (t Target) IsLocal() bool {
	return t.Kind == KindFragment
}

// NewUUID returns a fresh urn:uuid target, for records that are not yet
// assigned a server id.
func NewUUID() Target {
	id := uuid.New().String()
	return Target{Kind: KindUUID, ID: id, Literal: "urn:uuid:" + id}
}
