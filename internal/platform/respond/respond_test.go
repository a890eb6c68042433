package respond

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/fxamacker/cbor/v2"
	"github.com/go-chi/chi/v5"
)

// testProblem captures the $schema field that huma.ErrorModel omits.
type testProblem struct {
	Schema string `json:"$schema,omitempty"`
	Title  string `json:"title,omitempty"`
	Status int    `json:"status,omitempty"`
	Detail string `json:"detail,omitempty"`
}

func profileRouter() *chi.Mux {
	router := chi.NewRouter()
	router.NotFound(NotFoundHandler())
	router.MethodNotAllowed(MethodNotAllowedHandler())
	router.Use(Recoverer())
	ok := func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }
	router.Get("/profile", ok)
	router.Patch("/profile", ok)
	router.Delete("/profile/session", ok)
	router.Get("/panic", func(http.ResponseWriter, *http.Request) { panic("boom") })
	router.Get("/panic-error", func(http.ResponseWriter, *http.Request) { panic(errors.New("store exploded")) })
	return router
}

func TestProblemResponses(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		wantTitle  string
		wantDetail string
		wantAllow  string
	}{
		{"unknown route", http.MethodGet, "/profile/missing", http.StatusNotFound, "Not Found", "resource not found", ""},
		{"root", http.MethodGet, "/", http.StatusNotFound, "Not Found", "resource not found", ""},
		{
			"unsupported method", http.MethodPut, "/profile",
			http.StatusMethodNotAllowed, "Method Not Allowed", "method PUT not allowed", "GET, PATCH",
		},
		{
			"single method route", http.MethodPost, "/profile/session",
			http.StatusMethodNotAllowed, "Method Not Allowed", "method POST not allowed", "DELETE",
		},
		{"panic string", http.MethodGet, "/panic", http.StatusInternalServerError, "Internal Server Error", "internal server error", ""},
		{"panic error", http.MethodGet, "/panic-error", http.StatusInternalServerError, "Internal Server Error", "internal server error", ""},
	}

	router := profileRouter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, req)

			if resp.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, resp.Code)
			}
			if ct := resp.Header().Get("Content-Type"); ct != "application/problem+json" {
				t.Fatalf("expected application/problem+json, got %q", ct)
			}
			if allow := resp.Header().Get("Allow"); allow != tt.wantAllow {
				t.Fatalf("expected Allow %q, got %q", tt.wantAllow, allow)
			}
			link := resp.Header().Get("Link")
			if !strings.Contains(link, "/schemas/ErrorModel.json") || !strings.Contains(link, "describedBy") {
				t.Fatalf("expected Link header with schema, got %q", link)
			}

			var problem testProblem
			if err := json.Unmarshal(resp.Body.Bytes(), &problem); err != nil {
				t.Fatalf("failed to unmarshal problem: %v", err)
			}
			if problem.Status != tt.wantStatus || problem.Title != tt.wantTitle || problem.Detail != tt.wantDetail {
				t.Fatalf("unexpected problem: %+v", problem)
			}
			if problem.Schema != "http://example.com/schemas/ErrorModel.json" {
				t.Fatalf("unexpected $schema %q", problem.Schema)
			}
		})
	}
}

func TestProblemResponsesUseCBORWhenAccepted(t *testing.T) {
	router := profileRouter()
	for _, tc := range []struct {
		method string
		path   string
		status int
	}{
		{http.MethodGet, "/profile/missing", http.StatusNotFound},
		{http.MethodPut, "/profile", http.StatusMethodNotAllowed},
		{http.MethodGet, "/panic", http.StatusInternalServerError},
	} {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		req.Header.Set("Accept", "application/cbor")
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)

		if resp.Code != tc.status {
			t.Fatalf("%s %s: expected %d, got %d", tc.method, tc.path, tc.status, resp.Code)
		}
		if ct := resp.Header().Get("Content-Type"); ct != "application/problem+cbor" {
			t.Fatalf("%s %s: expected application/problem+cbor, got %q", tc.method, tc.path, ct)
		}
		var problem testProblem
		if err := cbor.Unmarshal(resp.Body.Bytes(), &problem); err != nil {
			t.Fatalf("%s %s: failed to decode CBOR problem: %v", tc.method, tc.path, err)
		}
		if problem.Status != tc.status {
			t.Fatalf("%s %s: expected status %d in body, got %d", tc.method, tc.path, tc.status, problem.Status)
		}
	}
}

func TestProblemSetsVary(t *testing.T) {
	router := profileRouter()
	req := httptest.NewRequest(http.MethodGet, "/missing", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	vary := strings.Join(resp.Header().Values("Vary"), ",")
	if !strings.Contains(vary, "Origin") || !strings.Contains(vary, "Accept") {
		t.Fatalf("expected Vary to list Origin and Accept, got %q", vary)
	}
}

func TestRecovererRePanicsOnErrAbortHandler(t *testing.T) {
	router := chi.NewRouter()
	router.Use(Recoverer())
	router.Get("/profile/picture", func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	})

	defer func() {
		rec := recover()
		err, ok := rec.(error)
		if !ok || !errors.Is(err, http.ErrAbortHandler) {
			t.Fatalf("expected http.ErrAbortHandler to be re-panicked, got %v", rec)
		}
	}()

	req := httptest.NewRequest(http.MethodGet, "/profile/picture", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)

	t.Fatal("expected panic to propagate, but handler returned normally")
}

func TestRecovererLeavesStartedStreamAlone(t *testing.T) {
	router := chi.NewRouter()
	router.Use(Recoverer())
	router.Get("/profile/picture", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("event: progress\ndata: {\"progress\":10}\n\n"))
		w.(http.Flusher).Flush()
		panic("upload aborted")
	})

	req := httptest.NewRequest(http.MethodGet, "/profile/picture", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected original 200 status to be preserved, got %d", resp.Code)
	}
	if strings.Contains(resp.Body.String(), "internal server error") {
		t.Fatalf("expected no problem body after stream started, got %q", resp.Body.String())
	}
	if !resp.Flushed {
		t.Fatal("expected flush to reach the recorder")
	}
}

func TestStatus304NotModifiedHasNoBody(t *testing.T) {
	router := chi.NewRouter()
	api := humachi.New(router, huma.DefaultConfig("NoBody", "test"))
	huma.Get(api, "/profile", func(ctx context.Context, _ *struct{}) (*struct{}, error) {
		return nil, Status304NotModified()
	})

	req := httptest.NewRequest(http.MethodGet, "/profile", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotModified {
		t.Fatalf("expected 304, got %d", resp.Code)
	}
	if resp.Body.Len() != 0 {
		t.Fatalf("expected empty body for 304 response, got %q", resp.Body.String())
	}
}

func TestNoBodyStatusErrorMessage(t *testing.T) {
	err := Status304NotModified()
	if err.GetStatus() != http.StatusNotModified || err.Error() != "Not Modified" {
		t.Fatalf("unexpected status error %d %q", err.GetStatus(), err.Error())
	}

	empty := &noBodyStatusError{status: http.StatusNoContent}
	if empty.Error() != "No Content" {
		t.Fatalf("expected status text fallback, got %q", empty.Error())
	}
}

func TestResponseWriterTracksStart(t *testing.T) {
	t.Run("write header", func(t *testing.T) {
		rec := httptest.NewRecorder()
		rw := &responseWriter{ResponseWriter: rec}
		rw.WriteHeader(http.StatusNoContent)
		if !rw.wroteHeader || rec.Code != http.StatusNoContent {
			t.Fatalf("expected header written with 204, got wrote=%v code=%d", rw.wroteHeader, rec.Code)
		}
	})

	t.Run("write", func(t *testing.T) {
		rec := httptest.NewRecorder()
		rw := &responseWriter{ResponseWriter: rec}
		if n, err := rw.Write([]byte("hello")); err != nil || n != 5 {
			t.Fatalf("unexpected write result n=%d err=%v", n, err)
		}
		if !rw.wroteHeader {
			t.Fatal("expected Write to mark the response as started")
		}
		if rw.Unwrap() != rec {
			t.Fatal("expected Unwrap to return underlying ResponseWriter")
		}
	})

	t.Run("flush", func(t *testing.T) {
		rec := httptest.NewRecorder()
		rw := &responseWriter{ResponseWriter: rec}
		rw.Flush()
		if !rec.Flushed || !rw.wroteHeader {
			t.Fatalf("expected flush forwarded and response started, got flushed=%v wrote=%v", rec.Flushed, rw.wroteHeader)
		}
	})
}

func TestSelectFormat(t *testing.T) {
	tests := []struct {
		accept   string
		wantCBOR bool
	}{
		{"", false},
		{"*/*", false},
		{"application/*", false},
		{"text/plain", false},
		{"application/json", false},
		{"application/cbor", true},
		{"application/cbor;q=1.0", true},
		{"application/problem+cbor", true},
		{"application/*+cbor", true},
		{"application/json, application/cbor", false},
		{"application/cbor, application/json;q=0.5", true},
		{"application/json;q=0.4, application/cbor;q=0.8", true},
		{"application/cbor;q=0, */*", false},
		{"application/json;q=0, application/cbor", true},
		{"application/cbor, application/problem+json", false},
		{"application/problem+cbor, application/json", true},
		{"*/*;q=0", false},
	}

	for _, tt := range tests {
		if got := selectFormat(tt.accept); got != tt.wantCBOR {
			t.Errorf("selectFormat(%q) = %v, want %v", tt.accept, got, tt.wantCBOR)
		}
	}
}

func TestParseAccept(t *testing.T) {
	tests := []struct {
		header string
		want   []mediaRange
	}{
		{"", nil},
		{" , ", nil},
		{"text", []mediaRange{{typ: "text", subtype: "*", q: 1}}},
		{"Application/CBOR", []mediaRange{{typ: "application", subtype: "cbor", q: 1}}},
		{"application/json;q=0.5", []mediaRange{{typ: "application", subtype: "json", q: 0.5}}},
		{"application/json;q=abc", []mediaRange{{typ: "application", subtype: "json", q: 1}}},
		{"application/json;q=2", []mediaRange{{typ: "application", subtype: "json", q: 1}}},
		{"application/json;charset=utf-8;q=0.3", []mediaRange{{typ: "application", subtype: "json", q: 0.3}}},
		{"application/json;q=0.2;q=0.7", []mediaRange{{typ: "application", subtype: "json", q: 0.7}}},
	}

	for _, tt := range tests {
		got := parseAccept(tt.header)
		if len(got) != len(tt.want) {
			t.Errorf("parseAccept(%q) returned %d ranges, want %d", tt.header, len(got), len(tt.want))
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("parseAccept(%q)[%d] = %+v, want %+v", tt.header, i, got[i], tt.want[i])
			}
		}
	}
}

func TestSchemaURL(t *testing.T) {
	plain := httptest.NewRequest(http.MethodGet, "/profile", nil)

	forwarded := httptest.NewRequest(http.MethodGet, "/profile", nil)
	forwarded.Header.Set("X-Forwarded-Proto", "HTTPS")

	secure := httptest.NewRequest(http.MethodGet, "/profile", nil)
	secure.TLS = &tls.ConnectionState{}

	tests := []struct {
		name string
		req  *http.Request
		want string
	}{
		{"plain", plain, "http://example.com/schemas/ErrorModel.json"},
		{"forwarded proto", forwarded, "https://example.com/schemas/ErrorModel.json"},
		{"tls", secure, "https://example.com/schemas/ErrorModel.json"},
	}
	for _, tt := range tests {
		if got := schemaURL(tt.req); got != tt.want {
			t.Errorf("%s: expected %q, got %q", tt.name, tt.want, got)
		}
	}
}

func TestEnsureVary(t *testing.T) {
	tests := []struct {
		name     string
		existing []string
		add      []string
		want     []string
	}{
		{"empty", nil, []string{"Origin", "Accept"}, []string{"Origin", "Accept"}},
		{"no values", []string{"Accept"}, nil, []string{"Accept"}},
		{"merges", []string{"Accept-Encoding"}, []string{"Accept"}, []string{"Accept-Encoding", "Accept"}},
		{"case insensitive", []string{"accept"}, []string{"Accept"}, []string{"accept"}},
		{"comma separated", []string{"Origin, Accept"}, []string{"Origin", "Accept"}, []string{"Origin, Accept"}},
		{"duplicate in call", nil, []string{"Accept", "Accept"}, []string{"Accept"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			for _, v := range tt.existing {
				h.Add("Vary", v)
			}
			ensureVary(h, tt.add...)
			got := h.Values("Vary")
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Fatalf("expected Vary %v, got %v", tt.want, got)
			}
		})
	}
}

func TestAllowedMethodsWithoutRouteContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodPut, "/profile", nil)
	if got := allowedMethods(req); got != nil {
		t.Fatalf("expected nil without chi route context, got %v", got)
	}
}
