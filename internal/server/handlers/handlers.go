// Package handlers implements the clipcast HTTP API.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const maxPageSize = 500

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// page reads limit and offset query parameters.
func page(r *http.Request) (limit, offset int, err error) {
	q := r.URL.Query()

	if v := q.Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 0 {
			return 0, 0, errors.New("limit must be a non-negative integer")
		}
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	if v := q.Get("offset"); v != "" {
		offset, err = strconv.Atoi(v)
		if err != nil || offset < 0 {
			return 0, 0, errors.New("offset must be a non-negative integer")
		}
	}

	return limit, offset, nil
}

// validationFailed writes a 400 carrying per-field errors when err has them.
func validationFailed(w http.ResponseWriter, err error) {
	var fields validation.Errors
	if errors.As(err, &fields) {
		ErrorWithDetails(w, http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed", fields)
		return
	}
	BadRequest(w, err.Error())
}
