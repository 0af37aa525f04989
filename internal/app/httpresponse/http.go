// Package httpresponse writes the error bodies the callback servers answer the
// verifier with.
package httpresponse

import (
	"fmt"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

// CallbackError is the JSON body of a callback the provider could not serve.
type CallbackError struct {
	Message string `json:"error"`
}

func (e *CallbackError) Error() string {
	return e.Message
}

// Reject logs why a callback failed and answers it with status.
func Reject(c echo.Context, status int, format string, a ...interface{}) error {
	e := &CallbackError{Message: fmt.Sprintf(format, a...)}
	log.WithFields(log.Fields{
		"path":   c.Request().URL.Path,
		"status": status,
	}).Error(e.Message)
	return c.JSON(status, e)
}
