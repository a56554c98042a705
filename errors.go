package fhirschema

import "fmt"

// CompileErrorKind enumerates the compile-time error kinds. Compile
// errors never propagate out of the facade; they degrade the
// affected validator to Any and accumulate in the compiler log.
type CompileErrorKind string

// Compile error kinds.
const (
	CompileMalformedDefinition  CompileErrorKind = "malformed-definition"
	CompileOrphanElement        CompileErrorKind = "orphan-element"
	CompileUnsupportedKind      CompileErrorKind = "unsupported-kind"
	CompileUnresolvedDependency CompileErrorKind = "unresolved-dependency"
	CompileCyclicDependency     CompileErrorKind = "cyclic-dependency"
)

// CompileError describes a problem encountered while compiling one
// resource. URL identifies the resource being compiled when the error
// was raised (empty for graph-level errors such as a reported cycle).
type CompileError struct {
	Kind    CompileErrorKind
	URL     string
	Message string
}

func (e *CompileError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("compile: %s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("compile: %s: %s: %s", e.Kind, e.URL, e.Message)
}

// NewCompileError constructs a CompileError.
func NewCompileError(kind CompileErrorKind, url, message string) *CompileError {
	return &CompileError{Kind: kind, URL: url, Message: message}
}

// LoaderErrorKind enumerates the package/file acquisition error kinds.
// Unlike CompileError, a LoaderError can propagate out of the facade's
// LoadPackages/LoadFiles calls.
type LoaderErrorKind string

// Loader error kinds.
const (
	LoaderPackageNotFound LoaderErrorKind = "package-not-found"
	LoaderDownloadFailed  LoaderErrorKind = "download-failed"
	LoaderCacheCorrupt    LoaderErrorKind = "cache-corrupt"
	LoaderJSONParseError  LoaderErrorKind = "json-parse-error"
)

// LoaderError wraps an underlying error with a loader-specific kind.
type LoaderError struct {
	Kind   LoaderErrorKind
	Detail string
	Err    error
}

func (e *LoaderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("loader: %s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("loader: %s: %s", e.Kind, e.Detail)
}

// Unwrap exposes the wrapped error for errors.Is/As.
func (e *LoaderError) Unwrap() error { return e.Err }

// NewLoaderError constructs a LoaderError.
func NewLoaderError(kind LoaderErrorKind, detail string, err error) *LoaderError {
	return &LoaderError{Kind: kind, Detail: detail, Err: err}
}
