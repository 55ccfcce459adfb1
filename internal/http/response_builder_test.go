package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestResponseBuilder_Basic(t *testing.T) {
	w := httptest.NewRecorder()

	NewResponse().
		Status(http.StatusOK).
		Body([]byte("test")).
		Write(w)

	if w.Code != http.StatusOK {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusOK)
	}
	if w.Body.String() != "test" {
		t.Errorf("Body = %q, want %q", w.Body.String(), "test")
	}
}

func TestResponseBuilder_JSON(t *testing.T) {
	w := httptest.NewRecorder()

	NewResponse().
		Status(http.StatusCreated).
		JSON(map[string]int{"id": 7}).
		Write(w)

	if w.Code != http.StatusCreated {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusCreated)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if w.Body.String() != `{"id":7}` {
		t.Errorf("Body = %q", w.Body.String())
	}
}

func TestResponseBuilder_Header(t *testing.T) {
	w := httptest.NewRecorder()

	NewResponse().
		Header("Retry-After", "60").
		Write(w)

	if got := w.Header().Get("Retry-After"); got != "60" {
		t.Errorf("Retry-After = %q, want 60", got)
	}
}

func TestResponseBuilder_MarshalFailure(t *testing.T) {
	w := httptest.NewRecorder()

	// Channels cannot be marshalled, the builder must degrade to a plain 500
	NewResponse().JSON(make(chan int)).Write(w)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Status code = %d, want 500", w.Code)
	}
	if !strings.Contains(w.Body.String(), "response encoding failed") {
		t.Errorf("Body = %q", w.Body.String())
	}
}

func TestErrorResponses(t *testing.T) {
	cases := []struct {
		name       string
		builder    *ResponseBuilder
		wantStatus int
	}{
		{"bad request", BadRequestError("bad"), http.StatusBadRequest},
		{"unprocessable", UnprocessableEntityError("bad"), http.StatusUnprocessableEntity},
		{"internal", InternalServerError("bad"), http.StatusInternalServerError},
		{"not found", NotFoundError("bad"), http.StatusNotFound},
		{"conflict", ConflictError("bad"), http.StatusConflict},
		{"bad gateway", BadGatewayError("bad"), http.StatusBadGateway},
		{"not implemented", NotImplementedError("bad"), http.StatusNotImplemented},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c.builder.Write(w)

			if w.Code != c.wantStatus {
				t.Errorf("Status code = %d, want %d", w.Code, c.wantStatus)
			}
			if w.Body.String() != `{"error":"bad"}` {
				t.Errorf("Body = %q", w.Body.String())
			}
		})
	}
}

func TestMethodNotAllowedError(t *testing.T) {
	w := httptest.NewRecorder()

	MethodNotAllowedError("GET, POST").Write(w)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Status code = %d, want 405", w.Code)
	}
	if allow := w.Header().Get("Allow"); allow != "GET, POST" {
		t.Errorf("Allow = %q, want %q", allow, "GET, POST")
	}
}
