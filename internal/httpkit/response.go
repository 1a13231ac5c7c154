// Package httpkit writes the ops server's JSON bodies. Failures always use
// the error envelope, whose code is the worker error code unless the
// handler names a more specific one.
package httpkit

import (
	"encoding/json"
	"net/http"

	apperrors "docconv/internal/pkg/errors"
)

type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

var statusByCode = map[apperrors.Code]int{
	apperrors.CodeDecode:        http.StatusBadRequest,
	apperrors.CodeNotFound:      http.StatusNotFound,
	apperrors.CodeUnsupported:   http.StatusUnprocessableEntity,
	apperrors.CodeRenderFailure: http.StatusUnprocessableEntity,
	apperrors.CodeTimeout:       http.StatusGatewayTimeout,
	apperrors.CodeUnavailable:   http.StatusServiceUnavailable,
	apperrors.CodeCanceled:      http.StatusServiceUnavailable,
}

// StatusFor maps a worker error code to an HTTP status. Unknown codes are
// 500.
func StatusFor(code apperrors.Code) int {
	if s, ok := statusByCode[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteErr writes an envelope with an explicit status and code.
func WriteErr(w http.ResponseWriter, status int, code, msg string, details map[string]any) {
	WriteJSON(w, status, ErrorEnvelope{Error: ErrorBody{Code: code, Message: msg, Details: details}})
}

// WriteError derives status, code and details from err. Only the outermost
// message is exposed; causes stay in the logs.
func WriteError(w http.ResponseWriter, err error) {
	code := apperrors.GetCode(err)
	msg := "internal server error"
	var e *apperrors.Error
	if apperrors.As(err, &e) && e.Message != "" {
		msg = e.Message
	}
	WriteErr(w, StatusFor(code), string(code), msg, apperrors.GetFields(err))
}
