package fhirschema

import "runtime"

// Option configures a Validator at construction time.
type Option func(*Options)

// Options holds engine-wide configuration: how compilation and the runtime
// behave, as opposed to ValidateOptions, which configures one Validate call.
type Options struct {
	// EnableTerminology turns on required-binding and ValueSet-filter
	// enforcement. When false, binding refinements are skipped entirely.
	EnableTerminology bool

	// WorkerCount bounds the runtime's concurrent subtree fan-out.
	// Defaults to runtime.NumCPU().
	WorkerCount int

	// MaxIssues stops collecting further issues once reached; 0 means
	// unlimited.
	MaxIssues int

	// EnablePooling reuses ValidationResult values via sync.Pool. Callers
	// must call ValidationResult.Release() when set.
	EnablePooling bool

	// StructureDefCacheSize / ValueSetCacheSize are stored but not
	// consulted: the registry and hierarchy maps keep no LRU cache and are
	// unbounded.
	StructureDefCacheSize int
	ValueSetCacheSize     int

	// TrackPositions is stored but not consulted: issues carry no source
	// line/column.
	TrackPositions bool

	// PackageCacheDir overrides where LoadPackages looks for and extracts
	// FHIR NPM-style packages. Empty defers to FHIR_CACHE_DIR or
	// $HOME/.fhir/packages.
	PackageCacheDir string
}

// DefaultOptions returns the default engine configuration.
func DefaultOptions() *Options {
	return &Options{
		EnableTerminology:     true,
		WorkerCount:           runtime.NumCPU(),
		MaxIssues:             0,
		EnablePooling:         true,
		StructureDefCacheSize: 1000,
		ValueSetCacheSize:     500,
		TrackPositions:        false,
	}
}

// WithTerminology toggles required-binding/ValueSet enforcement.
func WithTerminology(enable bool) Option {
	return func(o *Options) { o.EnableTerminology = enable }
}

// WithWorkerCount bounds concurrent subtree validation.
func WithWorkerCount(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.WorkerCount = n
		}
	}
}

// WithMaxIssues caps the number of issues a single Validate call collects.
func WithMaxIssues(n int) Option {
	return func(o *Options) { o.MaxIssues = n }
}

// WithPooling toggles sync.Pool reuse of ValidationResult values.
func WithPooling(enable bool) Option {
	return func(o *Options) { o.EnablePooling = enable }
}

// WithCacheSizes sets StructureDefCacheSize and ValueSetCacheSize;
// non-positive values are ignored. Neither value is consulted by the engine.
func WithCacheSizes(structureDefs, valueSets int) Option {
	return func(o *Options) {
		if structureDefs > 0 {
			o.StructureDefCacheSize = structureDefs
		}
		if valueSets > 0 {
			o.ValueSetCacheSize = valueSets
		}
	}
}

// WithPositionTracking sets TrackPositions, which the engine does not
// consult.
func WithPositionTracking(enable bool) Option {
	return func(o *Options) { o.TrackPositions = enable }
}

// WithPackageCacheDir overrides the FHIR package cache directory.
func WithPackageCacheDir(dir string) Option {
	return func(o *Options) { o.PackageCacheDir = dir }
}

// ValidateOptions configures a single Validate call.
type ValidateOptions struct {
	// Profiles is the caller-supplied profile list, unioned with any
	// document-declared profiles unless IgnoreSelfDeclaredProfiles is set.
	Profiles []string

	// IgnoreSelfDeclaredProfiles excludes document.meta.profile from the
	// effective profile list.
	IgnoreSelfDeclaredProfiles bool

	// IgnoreUnknownSchemas suppresses the "Could not find schema for <url>"
	// issue that would otherwise be raised for an unrecognized profile.
	IgnoreUnknownSchemas bool

	// RunID correlates this call's ValidationResult with the caller's own
	// run identifier (e.g. a CLI invocation or a request ID). Left empty,
	// the result carries no RunID.
	RunID string
}
