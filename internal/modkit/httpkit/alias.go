// Package httpkit gives modules their handler and routing surface.
// Modules depend on this package instead of importing
// internal/platform/net/http directly
package httpkit

import (
	"encoding/json"
	"net/http"

	phttp "dropwatch/internal/platform/net/http"
)

type (
	// Envelope re-exports the transport envelope
	Envelope = phttp.Envelope

	// Page re-exports the pagination metadata
	Page = phttp.Page

	// Response re-exports the return-style response value
	Response = phttp.Response

	// Handler re-exports the platform handler
	Handler = phttp.Handler

	// Router re-exports the platform router seam
	Router = phttp.Router
)

// OK builds a 200 response
func OK(data any) Response { return phttp.OK(data) }

// Created builds a 201 response
func Created(data any) Response { return phttp.Created(data) }

// NoContent builds a 204 response
func NoContent() Response { return phttp.NoContent() }

// Data is OK under another name
func Data(v any) Response { return phttp.Data(v) }

// Error builds a response whose status comes from the error code
func Error(err error) Response { return phttp.Error(err) }

// List builds a 200 response with items and pagination
func List(items any, total, page, size int, cursor string) Response {
	return phttp.List(items, total, page, size, cursor)
}

// JSON adapts a handler that takes a decoded JSON body.
// Unknown fields in the body are rejected
func JSON[T any](fn func(*http.Request, T) (any, error)) Handler {
	return Handle(func(r *http.Request) Response {
		var in T
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&in); err != nil {
			return phttp.Error(err)
		}
		out, err := fn(r, in)
		if err != nil {
			return phttp.Error(err)
		}
		if resp, ok := out.(phttp.Response); ok {
			return resp
		}
		return phttp.OK(out)
	})
}

// Call adapts a handler with no request body
func Call(fn func(*http.Request) (any, error)) Handler {
	return phttp.Handle(func(r *http.Request) phttp.Response {
		out, err := fn(r)
		if err != nil {
			return phttp.Error(err)
		}
		if resp, ok := out.(phttp.Response); ok {
			return resp
		}
		return phttp.OK(out)
	})
}

// Handle adapts a Response-returning function directly
func Handle(fn func(*http.Request) Response) Handler {
	return phttp.Handle(fn)
}
