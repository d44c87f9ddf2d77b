// Package codec decodes FHIR JSON and XML documents into records and
// encodes records back, driven entirely by the schemas of a registry.
//
// A Codec is immutable after construction apart from its hooks (logger,
// metrics, code validator), which should be set before first use. Decode
// and Encode are synchronous and safe for concurrent use.
package codec

import (
	"errors"

	"github.com/buger/jsonparser"
	"github.com/rs/zerolog"

	fhirschema "github.com/gofhir/fhirschema"
	"github.com/gofhir/fhirschema/invariant"
	"github.com/gofhir/fhirschema/issue"
	"github.com/gofhir/fhirschema/registry"
)

// CodeValidator answers binding lookups for value sets whose codes are not
// enumerated in the schema. *terminology.Store implements it.
type CodeValidator interface {
	CheckCode(valueSet, system, code string) (valid, known bool)
}

// Codec converts between wire formats and records.
type Codec struct {
	reg        *registry.Registry
	opts       *fhirschema.Options
	logger     zerolog.Logger
	metrics    *fhirschema.Metrics
	codes      CodeValidator
	invariants *invariant.Evaluator
}

// New creates a codec over reg.
func New(reg *registry.Registry, opts ...fhirschema.Option) *Codec {
	o := fhirschema.Apply(opts...)
	return &Codec{
		reg:        reg,
		opts:       o,
		logger:     zerolog.Nop(),
		metrics:    fhirschema.NewMetrics(),
		invariants: invariant.New(o.ExpressionCacheSize),
	}
}

// NewDefault creates a codec over the built-in R4 registry.
func NewDefault(opts ...fhirschema.Option) (*Codec, error) {
	reg, err := registry.Default()
	if err != nil {
		return nil, err
	}
	return New(reg, opts...), nil
}

// SetLogger sets the logger used for debug output.
func (c *Codec) SetLogger(l zerolog.Logger) {
	c.logger = l
}

// SetMetrics replaces the metrics collector, e.g. to share one between codecs.
func (c *Codec) SetMetrics(m *fhirschema.Metrics) {
	if m != nil {
		c.metrics = m
	}
}

// SetCodeValidator plugs in lookups for bindings without enumerated codes.
func (c *Codec) SetCodeValidator(v CodeValidator) {
	c.codes = v
}

// Metrics returns the metrics collector.
func (c *Codec) Metrics() *fhirschema.Metrics {
	return c.metrics
}

// Registry returns the registry the codec decodes against.
func (c *Codec) Registry() *registry.Registry {
	return c.reg
}

// Options returns the effective options.
func (c *Codec) Options() fhirschema.Options {
	return *c.opts
}

// PeekResourceType reads the top-level resourceType of a JSON document
// without decoding it.
func PeekResourceType(data []byte) (string, error) {
	rt, err := jsonparser.GetString(data, "resourceType")
	if err != nil {
		id := issue.DiagStructureNoResourceType
		if !errors.Is(err, jsonparser.KeyPathNotFoundError) {
			id = issue.DiagStructureInvalidJSON
		}
		return "", &fhirschema.DecodeError{MessageID: id, Err: err}
	}
	if rt == "" {
		return "", &fhirschema.DecodeError{
			MessageID: issue.DiagStructureNoResourceType,
			Err:       errMissingResourceType,
		}
	}
	return rt, nil
}
