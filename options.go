package fhirschema

// Option configures a Codec.
type Option func(*Options)

// Options holds all configuration for a Codec.
type Options struct {
	// StrictReferences enforces reference literal syntax and the target
	// type allow-list of each reference field.
	StrictReferences bool

	// ValidateInvariants evaluates the FHIRPath invariants declared on
	// resource schemas after a successful structural decode.
	ValidateInvariants bool

	// PreserveUnknown keeps unrecognized members as extension data on
	// records whose schema has an extension slot.
	PreserveUnknown bool

	// AdvisoryIssues records warnings for extensible bindings and
	// information for unvalidated codes and unknown members.
	AdvisoryIssues bool

	// TrackPositions attaches line and column to validation errors.
	TrackPositions bool

	// MaxErrors stops collecting errors after this many (0 = unlimited).
	MaxErrors int

	// ExpressionCacheSize bounds the compiled FHIRPath expression cache.
	ExpressionCacheSize int
}

// DefaultOptions returns the default configuration.
func DefaultOptions() *Options {
	return &Options{
		PreserveUnknown:     true,
		AdvisoryIssues:      true,
		MaxErrors:           0, // unlimited
		ExpressionCacheSize: 256,
	}
}

// Apply applies opts on top of the defaults.
func Apply(opts ...Option) *Options {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithStrictReferences enables reference format and target type checking.
func WithStrictReferences(enable bool) Option {
	return func(o *Options) {
		o.StrictReferences = enable
	}
}

// WithInvariants enables FHIRPath invariant evaluation.
func WithInvariants(enable bool) Option {
	return func(o *Options) {
		o.ValidateInvariants = enable
	}
}

// WithPreserveUnknown controls whether unknown members are kept.
func WithPreserveUnknown(enable bool) Option {
	return func(o *Options) {
		o.PreserveUnknown = enable
	}
}

// WithAdvisoryIssues controls whether advisory issues are recorded.
func WithAdvisoryIssues(enable bool) Option {
	return func(o *Options) {
		o.AdvisoryIssues = enable
	}
}

// WithPositionTracking enables line/column tracking for issues.
func WithPositionTracking(enable bool) Option {
	return func(o *Options) {
		o.TrackPositions = enable
	}
}

// WithMaxErrors sets the maximum number of errors before stopping.
// Set to 0 for unlimited.
func WithMaxErrors(maxErrors int) Option {
	return func(o *Options) {
		if maxErrors >= 0 {
			o.MaxErrors = maxErrors
		}
	}
}

// WithExpressionCache sets the compiled expression cache size.
func WithExpressionCache(size int) Option {
	return func(o *Options) {
		if size > 0 {
			o.ExpressionCacheSize = size
		}
	}
}

// --- Presets ---

// StrictOptions returns options that check everything the codec can check.
func StrictOptions() []Option {
	return []Option{
		WithStrictReferences(true),
		WithInvariants(true),
		WithPositionTracking(true),
	}
}

// LenientOptions returns options for high-throughput decoding where only
// hard errors matter.
func LenientOptions() []Option {
	return []Option{
		WithAdvisoryIssues(false),
		WithMaxErrors(1),
	}
}
