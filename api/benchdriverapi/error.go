package benchdriverapi

import (
	"encoding/json"
	"net/http"
)

// StatusError carries the HTTP status a worker answers with. Display, when
// set, replaces Err in the response body.
type StatusError struct {
	Code    int
	Err     error
	Display error
}

func newStatusError(code int, err error) *StatusError {
	return &StatusError{Code: code, Err: err}
}

func ErrorBadRequest(err error) *StatusError { return newStatusError(http.StatusBadRequest, err) }
func ErrorBusy(err error) *StatusError       { return newStatusError(http.StatusConflict, err) }
func ErrorNotFound(err error) *StatusError   { return newStatusError(http.StatusNotFound, err) }

func (e *StatusError) Error() string   { return e.Err.Error() }
func (e *StatusError) Unwrap() error   { return e.Err }
func (e *StatusError) StatusCode() int { return e.Code }

func (e *StatusError) DisplayError() error {
	if e.Display != nil {
		return e.Display
	}
	return e.Err
}

func (e *StatusError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Error string `json:"error"`
	}{e.DisplayError().Error()})
}
