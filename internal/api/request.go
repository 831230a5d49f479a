package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// MaxBodySize caps request bodies at 1 MB. Alert payloads are small;
// anything larger is a misbehaving client.
const MaxBodySize = 1 << 20

// DecodeJSON decodes the request body into dst, rejecting unknown fields
// and oversized bodies. Errors are phrased for API clients, not Go
// programmers.
func DecodeJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return errors.New("request body is empty")
	}
	r.Body = http.MaxBytesReader(nil, r.Body, MaxBodySize)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err == nil {
		return nil
	}
	return translateDecodeError(err)
}

func translateDecodeError(err error) error {
	if errors.Is(err, io.EOF) {
		return errors.New("request body is empty")
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return fmt.Errorf("body contains malformed JSON (at offset %d)", syntaxErr.Offset)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return fmt.Errorf("field %q has the wrong type (expected %s)", typeErr.Field, typeErr.Type)
	}

	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return fmt.Errorf("request body exceeds the %d byte limit", MaxBodySize)
	}

	// The unknown-field case has no typed error to match on.
	if field, ok := strings.CutPrefix(err.Error(), "json: unknown field "); ok {
		return fmt.Errorf("unknown field %s", field)
	}

	return errors.New("invalid JSON in request body")
}
