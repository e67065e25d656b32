package server

import (
	"errors"
	"net/http"
)

// statusCodeOf maps errors carrying an HTTP status to that status. Anything
// else is an internal error.
func statusCodeOf(err error) int {
	var se interface{ StatusCode() int }
	if errors.As(err, &se) {
		return se.StatusCode()
	}
	return http.StatusInternalServerError
}

func displayErrorOf(err error) error {
	var se interface{ DisplayError() error }
	if errors.As(err, &se) {
		return se.DisplayError()
	}
	return err
}
