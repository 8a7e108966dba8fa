// Package validation provides the SensorInfo schema registry, typed loaders and
// schema validation results.
package validation

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSchemaNotFound is returned when a schema identifier is not registered.
var ErrSchemaNotFound = errors.New("schema not found")

// ErrorRecord describes one constraint violation found in a document.
type ErrorRecord struct {
	// InstancePath is the RFC 6901 JSON pointer of the offending value ("" is the document root).
	InstancePath string `json:"instancePath" yaml:"instancePath"`

	// Keyword is the JSON Schema keyword that failed, e.g. "required" or "minItems".
	Keyword string `json:"keyword" yaml:"keyword"`

	// Type is the validator's native error type, e.g. "invalid_type".
	Type string `json:"type" yaml:"type"`

	// Message is a human-readable description of the violation.
	Message string `json:"message" yaml:"message"`

	// Details holds validator-supplied parameters such as the expected type.
	Details map[string]interface{} `json:"details,omitempty" yaml:"details,omitempty"`
}

// String formats the record as "<pointer>: <message> (<keyword>)".
func (e ErrorRecord) String() string {
	pointer := e.InstancePath
	if pointer == "" {
		pointer = "/"
	}
	return fmt.Sprintf("%s: %s (%s)", pointer, e.Message, e.Keyword)
}

// ValidationResult contains the outcome of validating one document.
type ValidationResult struct {
	Valid  bool          `json:"valid" yaml:"valid"`
	Errors []ErrorRecord `json:"errors" yaml:"errors"`
}

// NewValidationResult creates a new passing result.
func NewValidationResult() *ValidationResult {
	return &ValidationResult{
		Valid:  true,
		Errors: []ErrorRecord{},
	}
}

// AddError appends a record and marks the result as invalid.
func (r *ValidationResult) AddError(record ErrorRecord) {
	r.Valid = false
	r.Errors = append(r.Errors, record)
}

// HasErrors returns true if there are any error records.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// ErrorsAt returns the records whose instance path equals pointer.
func (r *ValidationResult) ErrorsAt(pointer string) []ErrorRecord {
	var out []ErrorRecord
	for _, e := range r.Errors {
		if e.InstancePath == pointer {
			out = append(out, e)
		}
	}
	return out
}

// String returns a human-readable summary of the result.
func (r *ValidationResult) String() string {
	if r.Valid {
		return "Validation passed"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Validation failed with %d error(s):\n", len(r.Errors)))
	for _, e := range r.Errors {
		sb.WriteString("  [ERROR] ")
		sb.WriteString(e.String())
		sb.WriteString("\n")
	}
	return sb.String()
}

// ConfigurationError reports a broken schema set: a malformed or missing schema
// document, a dangling $ref, or an unknown root schema identifier.
type ConfigurationError struct {
	Schema string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Schema == "" {
		return fmt.Sprintf("schema configuration: %v", e.Err)
	}
	return fmt.Sprintf("schema configuration %s: %v", e.Schema, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// Load operations reported by LoadError.
const (
	OpRead  = "read"
	OpParse = "parse"
)

// LoadError reports an input document that could not be read or decoded.
type LoadError struct {
	Path string
	Op   string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
