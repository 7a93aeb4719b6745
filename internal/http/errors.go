package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/cloudyy74/diconnect-pairup/internal/models"
	"github.com/cloudyy74/diconnect-pairup/internal/service"
)

type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (re ResponseError) Error() string {
	return re.Message
}

func newResponseError(code string, msg string) ResponseError {
	return ResponseError{
		Code:    code,
		Message: msg,
	}
}

func newInternalError(msg string, args ...any) ResponseError {
	return newResponseError(ErrCodeInternal, fmt.Sprintf(msg, args...))
}

func (rtr *router) handleError(w http.ResponseWriter, err error) {
	respErr := rtr.mapError(err)
	status := statusForCode(respErr.Code)
	if status == http.StatusInternalServerError {
		rtr.log.Error("request failed", "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(&models.ErrorResponse{
		Error: models.Error{
			Code:    respErr.Code,
			Message: respErr.Message,
		},
	})
}

func (rtr *router) mapError(err error) ResponseError {
	var respErr ResponseError
	if errors.As(err, &respErr) {
		return respErr
	}

	switch {
	case errors.Is(err, service.ErrValidation):
		return newResponseError(ErrCodeValidation, err.Error())
	case errors.Is(err, service.ErrGroupExists):
		return newResponseError(ErrCodeGroupExists, "resource group already exists")
	case errors.Is(err, service.ErrMappingNotFound), errors.Is(err, service.ErrGroupNotFound),
		errors.Is(err, service.ErrInstanceNotFound):
		return newResponseError(ErrCodeNotFound, "resource not found")
	case errors.Is(err, service.ErrMatchingRunning):
		return newResponseError(ErrCodeMatchingRunning, "matching run already in progress")
	default:
		return newInternalError("internal error")
	}
}

func statusForCode(code string) int {
	switch code {
	case ErrCodeBadRequest, ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeGroupExists, ErrCodeMatchingRunning:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
