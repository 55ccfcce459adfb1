// Package http provides HTTP server and handler implementations.
//
// This file implements the Builder Pattern for constructing JSON API
// responses. It provides a type-safe, fluent API for building status codes,
// headers and bodies with consistent error formatting.

package http

import (
	"encoding/json"
	"net/http"
)

// ResponseBuilder provides a fluent API for building JSON responses.
// It encapsulates the construction of status codes, headers and bodies.
type ResponseBuilder struct {
	statusCode int
	headers    map[string]string
	body       []byte
	marshalErr error
}

// NewResponse creates a new response builder with default 200 status.
func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

// JSON sets the response body to the JSON encoding of v.
func (b *ResponseBuilder) JSON(v interface{}) *ResponseBuilder {
	data, err := json.Marshal(v)
	if err != nil {
		b.marshalErr = err
		return b
	}
	b.headers["Content-Type"] = "application/json"
	b.body = data
	return b
}

// Body sets the response body as raw bytes.
func (b *ResponseBuilder) Body(content []byte) *ResponseBuilder {
	b.body = content
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	// A marshal failure degrades to a plain 500 instead of a half-written body
	if b.marshalErr != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"response encoding failed"}`))
		return
	}

	for name, value := range b.headers {
		w.Header().Set(name, value)
	}

	w.WriteHeader(b.statusCode)
	if len(b.body) > 0 {
		_, _ = w.Write(b.body)
	}
}

// errorBody is the uniform error payload every error helper produces.
type errorBody struct {
	Error string `json:"error"`
}

// ErrorResponse creates a standard error response with a JSON body.
func ErrorResponse(statusCode int, message string) *ResponseBuilder {
	return NewResponse().Status(statusCode).JSON(errorBody{Error: message})
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

// UnprocessableEntityError creates a 422 Unprocessable Entity error response.
func UnprocessableEntityError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusUnprocessableEntity, message)
}

// InternalServerError creates a 500 Internal Server Error response.
func InternalServerError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}

// NotFoundError creates a 404 Not Found error response.
func NotFoundError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

// ConflictError creates a 409 Conflict error response.
func ConflictError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusConflict, message)
}

// BadGatewayError creates a 502 Bad Gateway error response, used when a
// backing data source cannot be reached or returns corrupt data.
func BadGatewayError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusBadGateway, message)
}

// NotImplementedError creates a 501 Not Implemented error response.
func NotImplementedError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusNotImplemented, message)
}

// MethodNotAllowedError creates a 405 Method Not Allowed error response.
func MethodNotAllowedError(allowedMethods string) *ResponseBuilder {
	return NewResponse().
		Status(http.StatusMethodNotAllowed).
		Header("Allow", allowedMethods).
		JSON(errorBody{Error: "method not allowed"})
}
