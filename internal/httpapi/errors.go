package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/slok/infraware/internal/model"
)

// Error codes returned on the error responses.
const (
	CodeValidation         = "validation_error"
	CodeNotFound           = "not_found"
	CodePreconditionFailed = "precondition_failed"
	CodeConflict           = "conflict"
	CodeLedgerUnavailable  = "ledger_unavailable"
	CodeStoreFailure       = "store_failure"
	CodeEngineFailure      = "engine_failure"
	CodeMethodNotAllowed   = "method_not_allowed"
	CodeInternal           = "internal"
)

type errorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// errorKinds is ordered, the first matching kind wins.
var errorKinds = []struct {
	err     error
	status  int
	code    string
	message string
	// exposed errors return their message, the rest a generic one.
	exposed bool
}{
	{err: model.ErrNotValid, status: http.StatusBadRequest, code: CodeValidation, exposed: true},
	{err: model.ErrNotFound, status: http.StatusNotFound, code: CodeNotFound, exposed: true},
	{err: model.ErrPreconditionFailed, status: http.StatusConflict, code: CodePreconditionFailed, exposed: true},
	{err: model.ErrAlreadyExists, status: http.StatusConflict, code: CodeConflict, exposed: true},
	{err: model.ErrLedgerUnavailable, status: http.StatusServiceUnavailable, code: CodeLedgerUnavailable, message: "job ledger is unavailable"},
	{err: model.ErrStoreFailure, status: http.StatusBadGateway, code: CodeStoreFailure, message: "artifact store failure"},
	{err: model.ErrEngineFailure, status: http.StatusBadGateway, code: CodeEngineFailure, message: "generation engine failure"},
}

func (h handler) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, resp := h.mapError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Errorf("%s %s failed: %s", c.Request().Method, c.Request().URL.Path, err)
	}

	if err := c.JSON(status, resp); err != nil {
		h.logger.Errorf("Could not write error response: %s", err)
	}
}

func (h handler) mapError(err error) (int, errorResponse) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := fmt.Sprint(he.Message)
		switch he.Code {
		case http.StatusBadRequest:
			return he.Code, errorResponse{Code: CodeValidation, Error: msg}
		case http.StatusNotFound:
			return he.Code, errorResponse{Code: CodeNotFound, Error: msg}
		case http.StatusMethodNotAllowed:
			return he.Code, errorResponse{Code: CodeMethodNotAllowed, Error: msg}
		}
		return http.StatusInternalServerError, errorResponse{Code: CodeInternal, Error: "internal error"}
	}

	for _, k := range errorKinds {
		if !errors.Is(err, k.err) {
			continue
		}
		msg := k.message
		if k.exposed {
			msg = err.Error()
		}
		return k.status, errorResponse{Code: k.code, Error: msg}
	}

	return http.StatusInternalServerError, errorResponse{Code: CodeInternal, Error: "internal error"}
}
