// Copyright (C) 2025 Saathi Labs (dev@saathilabs.in)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package apierr defines the status-coded error type shared by all
// HTTP and websocket handlers, and the Gin middleware that renders it
// as the uniform response envelope:
//
//	{"success": false, "message": "..."}
//
// Handlers attach errors with c.Error(...) and abort; the middleware
// picks the last attached error and writes the envelope. Errors that
// are not *Error render as a generic 500 so internals never leak.
package apierr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error is a domain error carrying the HTTP status it should render as.
type Error struct {
	Status  int
	Message string
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap exposes the wrapped cause for errors.Is / errors.As.
func (e *Error) Unwrap() error { return e.cause }

// WithCause attaches an underlying error. The cause is logged, never
// rendered to the client.
func (e *Error) WithCause(err error) *Error {
	return &Error{Status: e.Status, Message: e.Message, cause: err}
}

// New creates an Error with an explicit status.
func New(status int, message string) *Error {
	return &Error{Status: status, Message: message}
}

// =============================================================================
// Taxonomy constructors
// =============================================================================

// BadRequest is a 400 validation or malformed-input error.
func BadRequest(message string) *Error {
	return New(http.StatusBadRequest, message)
}

// Unauthorized is a 401 missing or invalid credential error.
func Unauthorized(message string) *Error {
	return New(http.StatusUnauthorized, message)
}

// Forbidden is a 403 consent or permission error.
func Forbidden(message string) *Error {
	return New(http.StatusForbidden, message)
}

// NotFound is a 404 error. Also used when a valid token's subject does
// not exist in the resolved tenant's store, so a token replayed against
// another tenant is rejected without revealing why.
func NotFound(message string) *Error {
	return New(http.StatusNotFound, message)
}

// Conflict is a 409 duplicate-resource error.
func Conflict(message string) *Error {
	return New(http.StatusConflict, message)
}

// TooManyRequests is a 429, used when the model provider rate limits us.
func TooManyRequests(message string) *Error {
	return New(http.StatusTooManyRequests, message)
}

// Upstream is a 502 for failures of external services.
func Upstream(message string) *Error {
	return New(http.StatusBadGateway, message)
}

// Internal is a 500. The message should be safe to show to clients.
func Internal(message string) *Error {
	return New(http.StatusInternalServerError, message)
}

// =============================================================================
// Rendering
// =============================================================================

// Envelope is the uniform error response body.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Middleware renders attached errors as the envelope. It must be
// registered before any route group. Handlers that already wrote a
// response are left alone.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		last := c.Errors.Last().Err
		status, message := http.StatusInternalServerError, "internal server error"

		var apiErr *Error
		if errors.As(last, &apiErr) {
			status, message = apiErr.Status, apiErr.Message
		}

		c.JSON(status, Envelope{Success: false, Message: message})
	}
}

// Abort attaches err to the context and aborts the handler chain.
// Non-*Error values render as a generic 500.
func Abort(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}
