package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"tunitrip/internal/catalog"
	"tunitrip/internal/db"
	"tunitrip/internal/trips"

	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Message: msg})
}

// writeStoreError maps domain errors to statuses. Unexpected errors are
// logged and reported as a generic 500 with fallback as message.
func writeStoreError(w http.ResponseWriter, err error, fallback string) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		log.Printf("%s: %v", fallback, err)
		writeError(w, status, fallback)
		return
	}
	writeError(w, status, err.Error())
}

func errorStatus(err error) int {
	var verrs validator.ValidationErrors
	switch {
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, db.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, db.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, db.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, trips.ErrUnknownKind), errors.Is(err, trips.ErrArrivalBeforeDeparture), errors.As(err, &verrs):
		return http.StatusBadRequest
	case errors.Is(err, catalog.ErrNotLoaded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("request body is empty")
		}
		return fmt.Errorf("invalid request body: %v", err)
	}
	return nil
}
