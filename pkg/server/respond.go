package server

import (
	"encoding/json"
	"net/http"

	"github.com/catalystpanel/catalyst/pkg/errdefs"
)

// envelope is the uniform response shape
type envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(errdefs.HTTPStatus(err))
	_ = json.NewEncoder(w).Encode(envelope{
		Success: false,
		Error:   &errorBody{Kind: string(errdefs.KindOf(err)), Message: err.Error()},
	})
}

// decode parses the request body into v, rejecting unknown garbage late:
// malformed JSON surfaces as a validation error.
func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errdefs.Wrap(errdefs.KindValidation, "parse request body", err)
	}
	return nil
}
