package http

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestParseFilterCriteria(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		wantIDs     []int64
		wantNil     bool
		wantErr     bool
	}{
		{
			name:        "JSON id list",
			contentType: "application/json",
			body:        `{"homeowner_ids":[1,2,3]}`,
			wantIDs:     []int64{1, 2, 3},
		},
		{
			name:        "JSON empty list stays a list",
			contentType: "application/json",
			body:        `{"homeowner_ids":[]}`,
			wantIDs:     []int64{},
		},
		{
			name:        "JSON absent field stays nil",
			contentType: "application/json",
			body:        `{}`,
			wantNil:     true,
		},
		{
			name:        "JSON null stays nil",
			contentType: "application/json",
			body:        `{"homeowner_ids":null}`,
			wantNil:     true,
		},
		{
			name:        "malformed JSON errors",
			contentType: "application/json",
			body:        `{"homeowner_ids":[1,`,
			wantErr:     true,
		},
		{
			name:        "form id list",
			contentType: "application/x-www-form-urlencoded",
			body:        "homeowner_ids=4,5",
			wantIDs:     []int64{4, 5},
		},
		{
			name:        "form list tolerates spaces",
			contentType: "application/x-www-form-urlencoded",
			body:        "homeowner_ids=" + url.QueryEscape("1, 2 ,3"),
			wantIDs:     []int64{1, 2, 3},
		},
		{
			name:        "form empty value is an empty list",
			contentType: "application/x-www-form-urlencoded",
			body:        "homeowner_ids=",
			wantIDs:     []int64{},
		},
		{
			name:        "form absent field stays nil",
			contentType: "application/x-www-form-urlencoded",
			body:        "other=x",
			wantNil:     true,
		},
		{
			name:        "form non-numeric id errors",
			contentType: "application/x-www-form-urlencoded",
			body:        "homeowner_ids=1,abc",
			wantErr:     true,
		},
		{
			name:    "empty body stays nil",
			body:    "",
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}

			filter, err := ParseFilterCriteria(req)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected an error, got %+v", filter)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if tt.wantNil {
				if filter.HomeownerIDs != nil {
					t.Fatalf("ids = %v, want nil", filter.HomeownerIDs)
				}
				return
			}
			if filter.HomeownerIDs == nil {
				t.Fatalf("ids are nil, want %v", tt.wantIDs)
			}
			if len(filter.HomeownerIDs) != len(tt.wantIDs) {
				t.Fatalf("ids = %v, want %v", filter.HomeownerIDs, tt.wantIDs)
			}
			for i, id := range tt.wantIDs {
				if filter.HomeownerIDs[i] != id {
					t.Fatalf("ids = %v, want %v", filter.HomeownerIDs, tt.wantIDs)
				}
			}
		})
	}
}

func TestParseLimitParam(t *testing.T) {
	cases := []struct {
		raw  string
		want int
	}{
		{"", 30},
		{"5", 5},
		{"0", 30},
		{"-3", 30},
		{"abc", 30},
		{"1000", 365},
	}

	for i, c := range cases {
		query := url.Values{}
		if c.raw != "" {
			query.Set("limit", c.raw)
		}
		if got := ParseLimitParam(query, 30, 365); got != c.want {
			t.Errorf("case %d: limit %q = %d, want %d", i, c.raw, got, c.want)
		}
	}
}

func TestDecodeJSONBody(t *testing.T) {
	t.Run("decodes a document", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"id":7}`))

		var dst struct {
			ID int64 `json:"id"`
		}
		if err := DecodeJSONBody(req, &dst); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if dst.ID != 7 {
			t.Fatalf("id = %d, want 7", dst.ID)
		}
	})

	t.Run("rejects an empty body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))

		var dst struct{}
		if err := DecodeJSONBody(req, &dst); err == nil {
			t.Fatal("expected an error for an empty body")
		}
	})
}

func TestRequireMethod(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	if resp := RequireMethod(req, http.MethodGet, http.MethodPost); resp != nil {
		t.Fatal("matching method should pass")
	}

	resp := RequirePOST(req)
	if resp == nil {
		t.Fatal("GET should fail a POST-only check")
	}

	rr := httptest.NewRecorder()
	resp.Write(rr)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rr.Code)
	}
	if allow := rr.Header().Get("Allow"); allow != "POST" {
		t.Fatalf("Allow = %q, want POST", allow)
	}
}
