/*
errors.go - Centralized error taxonomy for every stage

PURPOSE:
  All error types in one place for consistency and discoverability.
  Stages wrap these errors with per-unit context (table, file, identity)
  and report them in their summaries instead of aborting the batch.

ERROR CATEGORIES:
  1. Transport errors    - Remote fetch/write failures (non-fatal, per item)
  2. Parse errors        - Unparseable values (resolved via documented fallback)
  3. Ambiguous identity  - Partial/none matches (never auto-resolved)
  4. File I/O errors     - Read/write failures during rewrite (isolated per file)
  5. Verification        - Residual deprecated references (terminal for rewrite)

USAGE:
  if errors.Is(err, generic.ErrTransport) {
      // record and continue with the next table
  }

SEE ALSO:
  - snapshot/manager.go: TransportError per table
  - codemod/engine.go: FileIOError per file
  - analyzer/verify.go: VerificationFailure
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrTransport is returned when the record store cannot be reached or
	// rejects a read/write. Recorded per item; never aborts a stage.
	ErrTransport = errors.New("transport failure")

	// ErrParse is returned when a numeric or duration value cannot be parsed.
	// Callers substitute the documented fallback and attach a warning.
	ErrParse = errors.New("unparseable value")

	// ErrAmbiguousIdentity is returned when a legacy name only partially
	// matches (or does not match) a canonical account.
	ErrAmbiguousIdentity = errors.New("ambiguous identity")

	// ErrFileIO is returned when a file in the tree cannot be read or written.
	ErrFileIO = errors.New("file i/o failure")

	// ErrVerification is returned when deprecated references remain after a rewrite.
	ErrVerification = errors.New("verification failed")

	// ErrNotFound is returned when a referenced record, backup or ledger entry doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidRule is returned when a rewrite rule cannot be compiled.
	ErrInvalidRule = errors.New("invalid rewrite rule")

	// ErrConfig is returned when configuration is missing or malformed.
	ErrConfig = errors.New("invalid configuration")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// TransportError describes a failed round trip to the record store.
type TransportError struct {
	Table string
	Op    string // "select", "upsert"
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Table, e.Err)
}

func (e *TransportError) Unwrap() []error { return []error{ErrTransport, e.Err} }

// ParseError describes a value that fell back to its documented default.
type ParseError struct {
	Field string
	Raw   string
	Cause string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse %s %q: %s", e.Field, e.Raw, e.Cause)
}

func (e *ParseError) Unwrap() error { return ErrParse }

// AmbiguousIdentityError is surfaced when a write would need an identity
// that has not been confirmed by a human.
type AmbiguousIdentityError struct {
	LegacyName string
	Confidence string
}

func (e *AmbiguousIdentityError) Error() string {
	return fmt.Sprintf("identity %q has %s confidence and needs manual review", e.LegacyName, e.Confidence)
}

func (e *AmbiguousIdentityError) Unwrap() error { return ErrAmbiguousIdentity }

// FileIOError describes a read or write failure on one file.
type FileIOError struct {
	Path string
	Op   string // "read", "write", "backup"
	Err  error
}

func (e *FileIOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileIOError) Unwrap() []error { return []error{ErrFileIO, e.Err} }

// VerificationFailure reports how many deprecated references survived.
type VerificationFailure struct {
	Residual int
	Files    int
}

func (e *VerificationFailure) Error() string {
	return fmt.Sprintf("%d residual reference(s) in %d file(s)", e.Residual, e.Files)
}

func (e *VerificationFailure) Unwrap() error { return ErrVerification }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsFatal returns true if the error must stop the current stage.
// Only verification failures are terminal; everything else is per-unit.
func IsFatal(err error) bool {
	return errors.Is(err, ErrVerification) || errors.Is(err, ErrConfig)
}

// NeedsHuman returns true if the error can only be resolved by a reviewer.
func NeedsHuman(err error) bool {
	return errors.Is(err, ErrAmbiguousIdentity) || errors.Is(err, ErrVerification)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
