package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/leapstack-labs/leaplineage/internal/catalog"
	"github.com/leapstack-labs/leaplineage/internal/explorer"
	graphtypes "github.com/leapstack-labs/leaplineage/internal/ui/features/graph/types"
)

// maxBodySize bounds request bodies (8MB).
const maxBodySize = 8 << 20

var validate = validator.New()

// decode reads and validates a JSON request body.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return badRequest(fmt.Errorf("invalid JSON body: %w", err))
	}
	if err := validate.Struct(v); err != nil {
		var invalid validator.ValidationErrors
		if errors.As(err, &invalid) {
			msgs := make([]string, 0, len(invalid))
			for _, fe := range invalid {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return badRequest(errors.New(strings.Join(msgs, "; ")))
		}
		return badRequest(err)
	}
	return nil
}

type requestError struct{ err error }

func (e requestError) Error() string { return e.err.Error() }
func (e requestError) Unwrap() error { return e.err }

func badRequest(err error) error {
	return requestError{err: err}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status code and writes it as JSON.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusOf(err), graphtypes.ErrorResponse{Error: err.Error()})
}

func statusOf(err error) int {
	var reqErr requestError
	var apiErr *catalog.APIError
	switch {
	case errors.As(err, &reqErr):
		return http.StatusBadRequest
	case errors.Is(err, explorer.ErrNodeNotFound), errors.Is(err, explorer.ErrUnknownSession):
		return http.StatusNotFound
	case errors.Is(err, explorer.ErrNoGraph):
		return http.StatusConflict
	case errors.Is(err, catalog.ErrTokenExpired):
		return http.StatusUnauthorized
	case errors.As(err, &apiErr):
		if apiErr.Status == http.StatusNotFound {
			return http.StatusNotFound
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
