package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sony/gobreaker"

	"github.com/makemykankotri/kankotri/internal/services"
	"github.com/makemykankotri/kankotri/pkg/editor"
	"github.com/makemykankotri/kankotri/pkg/feature"
	"github.com/makemykankotri/kankotri/pkg/generator"
	"github.com/makemykankotri/kankotri/pkg/plugin"
	"github.com/makemykankotri/kankotri/pkg/render"
	"github.com/makemykankotri/kankotri/pkg/repository"
	"github.com/makemykankotri/kankotri/pkg/storage"
	"github.com/makemykankotri/kankotri/pkg/validation"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error   string      `json:"error"`
	Details interface{} `json:"details,omitempty"`
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	var (
		schemaErr *validation.Error
		formErr   *render.ValidationError
		inputErr  *services.InputError
	)
	switch {
	case errors.As(err, &schemaErr), errors.As(err, &inputErr):
		return http.StatusBadRequest
	case errors.As(err, &formErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, services.ErrSessionNotFound),
		errors.Is(err, editor.ErrElementNotFound),
		errors.Is(err, feature.ErrUnknownFlag),
		errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrDuplicateSlug),
		errors.Is(err, editor.ErrNothingToUndo),
		errors.Is(err, editor.ErrNothingToRedo),
		errors.Is(err, plugin.ErrDependencyNotFound),
		errors.Is(err, plugin.ErrHasDependents):
		return http.StatusConflict
	case errors.Is(err, editor.ErrInvalidElement),
		errors.Is(err, editor.ErrInvalidDimensions),
		errors.Is(err, generator.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, services.ErrPluginDisabled):
		return http.StatusForbidden
	case errors.Is(err, services.ErrShareCodeExhaust),
		errors.Is(err, gobreaker.ErrOpenState),
		errors.Is(err, gobreaker.ErrTooManyRequests):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// details returns the structured part of an error, if it has one
func details(err error) interface{} {
	var (
		schemaErr *validation.Error
		formErr   *render.ValidationError
		inputErr  *services.InputError
	)
	switch {
	case errors.As(err, &schemaErr):
		return schemaErr.Errors
	case errors.As(err, &formErr):
		return formErr.Fields
	case errors.As(err, &inputErr) && inputErr.Field != "":
		return map[string]string{inputErr.Field: inputErr.Message}
	}
	return nil
}

// respondError writes err with its mapped status. Internal errors are logged
// and their message is hidden in production.
func (s *Server) respondError(c *gin.Context, err error) {
	status := statusFor(err)
	resp := ErrorResponse{Error: err.Error(), Details: details(err)}

	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", map[string]interface{}{
			"method": c.Request.Method,
			"path":   c.FullPath(),
			"error":  err.Error(),
		})
		if s.production {
			resp.Error = "internal server error"
		}
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, resp)
}

func (s *Server) badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}
