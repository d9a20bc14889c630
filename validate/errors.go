package validate

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// FieldError scopes a validation failure to the offending input path, so the
// caller can assemble a per-field error report.
type FieldError struct {
	Path    string
	Message string
}

func (e *FieldError) Error() string {
	return e.Path + ": " + e.Message
}

func fieldErrorf(path, format string, args ...any) *FieldError {
	return &FieldError{Path: path, Message: fmt.Sprintf(format, args...)}
}

// AsMap flattens a validation error (possibly a multierror of FieldErrors)
// into a path-keyed message map suitable for a JSON error body. Errors with
// no field path land under "detail".
func AsMap(err error) map[string]string {
	out := map[string]string{}

	var merr *multierror.Error
	if errors.As(err, &merr) {
		for _, e := range merr.Errors {
			addToMap(out, e)
		}
		return out
	}

	addToMap(out, err)
	return out
}

func addToMap(out map[string]string, err error) {
	var fe *FieldError
	if errors.As(err, &fe) {
		out[fe.Path] = fe.Message
		return
	}
	out["detail"] = err.Error()
}
