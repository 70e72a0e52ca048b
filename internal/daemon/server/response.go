package server

import (
	"encoding/json"
	"net/http"

	"github.com/grovetools/buildhub/errors"
)

// Response is the envelope of every API reply. Exactly one field is set.
type Response struct {
	Data  interface{}   `json:"data,omitempty"`
	Error *errors.Error `json:"error,omitempty"`
}

// NewResponse wraps a result. Errors without a code become INTERNAL_ERROR.
func NewResponse(data interface{}, err error) Response {
	if err == nil {
		return Response{Data: data}
	}
	bhErr := errors.As(err)
	if bhErr == nil {
		bhErr = errors.Wrap(err, errors.ErrCodeInternal, err.Error())
	}
	return Response{Error: bhErr}
}

// StatusFor maps an error code to its HTTP status.
func StatusFor(code errors.ErrorCode) int {
	switch code {
	case "":
		return http.StatusOK
	case errors.ErrCodeState:
		return http.StatusNotFound
	case errors.ErrCodeInvalidInput, errors.ErrCodeConfigInvalid:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeResponse(w http.ResponseWriter, data interface{}, err error) {
	resp := NewResponse(data, err)
	status := http.StatusOK
	if resp.Error != nil {
		status = StatusFor(resp.Error.Code)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
