package routes

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/hashicorp/go-multierror"

	"github.com/mbolis/formpipe/httpx"
	"github.com/mbolis/formpipe/tracker"
	"github.com/mbolis/formpipe/validate"
)

// writeError maps domain errors to HTTP error responses:
// validation errors become a 400 with a per-field message map, authorization
// failures a 403, duplicate answers a 409 pointing at the update URL.
// Anything unrecognized is a 500.
func writeError(w http.ResponseWriter, r *http.Request, code string, err error) {
	var authErr *validate.AuthorizationError
	var conflict *tracker.ConflictError
	var sequence *tracker.SequenceError
	var fieldErr *validate.FieldError
	var merr *multierror.Error

	switch {
	case errors.As(err, &authErr):
		httpx.JSONError(w, r, http.StatusForbidden, code, map[string]string{
			authErr.Path: authErr.Message,
		})

	case errors.As(err, &conflict):
		httpx.JSONError(w, r, http.StatusConflict, code, map[string]string{
			"message": "you answered this form before, you can update your response",
			"url":     fmt.Sprintf("/api/responses/%d", conflict.ResponseID),
		})

	case errors.As(err, &sequence):
		httpx.JSONError(w, r, http.StatusBadRequest, code, map[string]string{
			"message": fmt.Sprintf("you should answer the form with id %d first", sequence.PreviousFormID),
		})

	case errors.Is(err, tracker.ErrExpired):
		httpx.JSONError(w, r, http.StatusBadRequest, code, map[string]string{
			"message": "Response time has expired.",
		})

	case errors.Is(err, tracker.ErrNotOwner):
		httpx.JSONError(w, r, http.StatusForbidden, code, map[string]string{
			"permission-denied": "you are not allowed to change this response",
		})

	case errors.Is(err, tracker.ErrFrozen):
		httpx.JSONError(w, r, http.StatusBadRequest, code, map[string]string{
			"update-error": "this pipeline is set as unchangeable and responses can not be updated",
		})

	case errors.As(err, &fieldErr), errors.As(err, &merr):
		httpx.JSONError(w, r, http.StatusBadRequest, code, validate.AsMap(err))

	default:
		httpx.LogInternalError(w, code, err)
	}
}
