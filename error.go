package compose

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

var (
	// ErrCompositionCycle is reported when parts depend on each other through a cycle that has no
	// deferred edge on it.
	ErrCompositionCycle = errors.New("composition cycle")
	// ErrCardinalityViolation is reported when the number of exports matching an import does not
	// agree with the import's cardinality.
	ErrCardinalityViolation = errors.New("cardinality violation")
	// ErrBoundaryNotAvailable is reported when a shared part's boundary is not open on the scope chain.
	ErrBoundaryNotAvailable = errors.New("boundary not available")
	// ErrCatalogConflict is reported when catalogs cannot be built or combined without breaking a
	// uniqueness requirement.
	ErrCatalogConflict = errors.New("catalog conflict")
	// ErrActivationFailed is reported when a part's recipe returned an error or panicked.
	ErrActivationFailed = errors.New("activation failed")
	// ErrDisposalFailed is reported when one or more activations failed to dispose.
	ErrDisposalFailed = errors.New("disposal failed")

	ErrInvalidPart = errors.New("invalid part")
	ErrScopeClosed = errors.New("scope closed")
	ErrNoScope     = errors.New("no composition scope available")
)

// CompositionError describes a failure to compose or activate a part. Kind is one of the Err*
// sentinels so callers can use errors.Is; SourceError, if present, is the underlying cause.
type CompositionError struct {
	Kind        error
	Message     string
	Contract    Contract
	Part        PartID
	Path        []PartID
	Status      string
	SourceError error
}

func (e *CompositionError) Error() string {
	b := strings.Builder{}
	b.WriteString(e.Kind.Error())
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Contract.Type != nil || e.Contract.Name != "" {
		b.WriteString(" [")
		b.WriteString(e.Contract.String())
		b.WriteString("]")
	}
	if e.Part != "" {
		fmt.Fprintf(&b, " (part %q)", e.Part)
	}
	if len(e.Path) > 0 {
		b.WriteString(" path: ")
		b.WriteString(formatPath(e.Path))
	}
	if e.SourceError != nil {
		fmt.Fprintf(&b, " (%v)", e.SourceError)
	}
	return b.String()
}

func (e *CompositionError) Unwrap() []error {
	if e.SourceError == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.SourceError}
}

// DisposalError collects every failure that happened while a scope was swept. The sweep always
// runs to completion before this is returned.
type DisposalError struct {
	Scope    string
	Boundary Boundary
	Err      error
}

func (e *DisposalError) Error() string {
	errs := multierr.Errors(e.Err)
	return fmt.Sprintf("%v: %d failure(s) closing scope %s (%s): %v", ErrDisposalFailed, len(errs), e.Scope, e.Boundary, e.Err)
}

// Errors returns the individual disposal failures in the order they happened.
func (e *DisposalError) Errors() []error {
	return multierr.Errors(e.Err)
}

func (e *DisposalError) Unwrap() []error {
	return append([]error{ErrDisposalFailed}, multierr.Errors(e.Err)...)
}

func formatPath(path []PartID) string {
	parts := make([]string, len(path))
	for i, p := range path {
		parts[i] = string(p)
	}
	return strings.Join(parts, " -> ")
}
