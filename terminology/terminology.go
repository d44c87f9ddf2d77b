package terminology

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned when a provider does not know the requested
// ValueSet or CodeSystem.
var ErrNotFound = errors.New("terminology: not found")

// Result is the outcome of a code validation.
type Result struct {
	Valid   bool   `json:"valid"`
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
	Message string `json:"message,omitempty"`
}

// Concept is one code of an expansion.
type Concept struct {
	System  string `json:"system"`
	Code    string `json:"code"`
	Display string `json:"display,omitempty"`
}

// Expansion is the flat code list of a ValueSet.
type Expansion struct {
	URL      string    `json:"url"`
	Total    int       `json:"total"`
	Contains []Concept `json:"contains"`
}

// Provider is a terminology service. Implementations return an error
// wrapping ErrNotFound when they do not know the ValueSet or CodeSystem.
type Provider interface {
	ValidateCode(ctx context.Context, system, code, valueSet string) (*Result, error)
	Expand(ctx context.Context, valueSet string) (*Expansion, error)
}

// Chain asks each provider in turn until one knows the ValueSet.
type Chain struct {
	providers []Provider
}

// NewChain creates a chain of providers.
func NewChain(providers ...Provider) *Chain {
	return &Chain{providers: providers}
}

// Add appends a provider to the chain.
func (c *Chain) Add(p Provider) {
	c.providers = append(c.providers, p)
}

// ValidateCode tries each provider until one answers.
func (c *Chain) ValidateCode(ctx context.Context, system, code, valueSet string) (*Result, error) {
	for _, p := range c.providers {
		res, err := p.ValidateCode(ctx, system, code, valueSet)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, ErrNotFound
}

// Expand tries each provider until one answers.
func (c *Chain) Expand(ctx context.Context, valueSet string) (*Expansion, error) {
	for _, p := range c.providers {
		exp, err := p.Expand(ctx, valueSet)
		if err == nil {
			return exp, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, ErrNotFound
}

// Canonical removes the version suffix from a canonical URL
// ("http://hl7.org/fhir/ValueSet/fm-status|4.0.1").
func Canonical(url string) string {
	if idx := strings.LastIndex(url, "|"); idx != -1 {
		return url[:idx]
	}
	return url
}
