// Package respond renders RFC 9457 problem responses for requests that never
// reach a huma operation: unmatched routes, unsupported methods and panics.
package respond

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/fxamacker/cbor/v2"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	applog "github.com/janisto/profile-sync/internal/platform/logging"
)

const (
	contentTypeProblemJSON = "application/problem+json"
	contentTypeProblemCBOR = "application/problem+cbor"

	errorSchemaPath = "/schemas/ErrorModel.json"

	msgNotFound    = "resource not found"
	msgInternalErr = "internal server error"
)

// problem mirrors huma.ErrorModel with the $schema link huma adds to its own
// error responses.
type problem struct {
	Schema string `json:"$schema,omitempty"`
	Title  string `json:"title,omitempty"`
	Status int    `json:"status,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// NotFoundHandler renders a 404 problem.
func NotFoundHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		applog.LogWarn(r.Context(), "route not found", zap.String("path", r.URL.Path))
		writeProblem(w, r, http.StatusNotFound, msgNotFound)
	}
}

// MethodNotAllowedHandler renders a 405 problem with an Allow header listing
// the methods the route does accept.
func MethodNotAllowedHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if allow := allowedMethods(r); len(allow) > 0 {
			w.Header().Set("Allow", strings.Join(allow, ", "))
		}
		applog.LogWarn(r.Context(), "method not allowed",
			zap.String("method", r.Method), zap.String("path", r.URL.Path))
		writeProblem(w, r, http.StatusMethodNotAllowed, fmt.Sprintf("method %s not allowed", r.Method))
	}
}

// Recoverer converts panics into 500 problems. http.ErrAbortHandler is
// re-panicked so net/http can abort the connection. If the handler already
// started the response, nothing more is written.
func Recoverer() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := &responseWriter{ResponseWriter: w}
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				err, ok := rec.(error)
				if !ok {
					err = fmt.Errorf("%v", rec)
				}
				applog.LogError(r.Context(), "panic recovered", err, zap.ByteString("stack", debug.Stack()))
				if rw.wroteHeader {
					return
				}
				writeProblem(rw, r, http.StatusInternalServerError, msgInternalErr)
			}()
			next.ServeHTTP(rw, r)
		})
	}
}

// Status304NotModified returns an error that makes huma answer 304 without a body.
func Status304NotModified() huma.StatusError {
	return &noBodyStatusError{status: http.StatusNotModified, message: http.StatusText(http.StatusNotModified)}
}

type noBodyStatusError struct {
	status  int
	message string
}

func (e *noBodyStatusError) Error() string {
	if e.message != "" {
		return e.message
	}
	return http.StatusText(e.status)
}

func (e *noBodyStatusError) GetStatus() int {
	return e.status
}

// responseWriter records whether the response has started.
type responseWriter struct {
	http.ResponseWriter
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

// Flush forwards to the underlying writer so event streams keep working
// behind Recoverer.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		rw.wroteHeader = true
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

func writeProblem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	schema := schemaURL(r)
	body := problem{
		Schema: schema,
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
	}

	h := w.Header()
	ensureVary(h, "Origin", "Accept")
	h.Set("Link", "<"+schema+`>; rel="describedBy"`)

	if selectFormat(r.Header.Get("Accept")) {
		data, err := cbor.Marshal(body)
		if err != nil {
			applog.LogError(r.Context(), "failed to encode problem", err)
			http.Error(w, msgInternalErr, http.StatusInternalServerError)
			return
		}
		h.Set("Content-Type", contentTypeProblemCBOR)
		w.WriteHeader(status)
		_, _ = w.Write(data)
		return
	}

	h.Set("Content-Type", contentTypeProblemJSON)
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(body); err != nil {
		applog.LogError(r.Context(), "failed to write problem", err)
	}
}

func schemaURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	return scheme + "://" + r.Host + errorSchemaPath
}

// ensureVary appends each value to Vary unless it is already listed.
func ensureVary(h http.Header, values ...string) {
	seen := make(map[string]struct{})
	for _, v := range h.Values("Vary") {
		for part := range strings.SplitSeq(v, ",") {
			seen[strings.ToLower(strings.TrimSpace(part))] = struct{}{}
		}
	}
	for _, v := range values {
		key := strings.ToLower(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		h.Add("Vary", v)
	}
}

// mediaRange is one entry of an Accept header.
type mediaRange struct {
	typ     string
	subtype string
	q       float64
}

func parseAccept(header string) []mediaRange {
	var ranges []mediaRange
	for part := range strings.SplitSeq(header, ",") {
		params := strings.Split(part, ";")
		mt := strings.ToLower(strings.TrimSpace(params[0]))
		if mt == "" {
			continue
		}
		mr := mediaRange{q: 1.0}
		if typ, sub, ok := strings.Cut(mt, "/"); ok {
			mr.typ, mr.subtype = strings.TrimSpace(typ), strings.TrimSpace(sub)
		} else {
			mr.typ, mr.subtype = mt, "*"
		}
		for _, p := range params[1:] {
			k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
			if !ok || !strings.EqualFold(strings.TrimSpace(k), "q") {
				continue
			}
			q, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil || q < 0 || q > 1 {
				q = 1.0
			}
			mr.q = q
		}
		ranges = append(ranges, mr)
	}
	return ranges
}

// matchFormat returns the q-value of the most specific range matching the
// problem representation with the given structured suffix ("json" or "cbor"),
// and that specificity. Specificity is -1 when nothing matches.
func matchFormat(ranges []mediaRange, suffix string) (q float64, specificity int) {
	specificity = -1
	for _, mr := range ranges {
		s := -1
		switch {
		case mr.typ == "application" && mr.subtype == "problem+"+suffix:
			s = 4
		case mr.typ == "application" && mr.subtype == suffix:
			s = 3
		case mr.typ == "application" && mr.subtype == "*+"+suffix:
			s = 2
		case mr.typ == "application" && mr.subtype == "*":
			s = 1
		case mr.typ == "*" && mr.subtype == "*":
			s = 0
		}
		if s > specificity {
			q, specificity = mr.q, s
		}
	}
	return q, specificity
}

// selectFormat reports whether CBOR should be used for the given Accept
// header. The higher q-value wins, specificity breaks ties, and JSON is the
// default.
func selectFormat(accept string) bool {
	ranges := parseAccept(accept)
	if len(ranges) == 0 {
		return false
	}
	jsonQ, jsonSpec := matchFormat(ranges, "json")
	cborQ, cborSpec := matchFormat(ranges, "cbor")
	if cborSpec < 0 || cborQ <= 0 {
		return false
	}
	if cborQ != jsonQ {
		return cborQ > jsonQ
	}
	return cborSpec > jsonSpec
}

// allowedMethods probes chi's route tree for methods registered on the
// request path.
func allowedMethods(r *http.Request) []string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil || rctx.Routes == nil {
		return nil
	}

	path := rctx.RoutePath
	if path == "" {
		path = r.URL.RawPath
		if path == "" {
			path = r.URL.Path
		}
		if path == "" {
			path = "/"
		}
	}

	var allowed []string
	for _, method := range []string{
		http.MethodGet,
		http.MethodHead,
		http.MethodPost,
		http.MethodPut,
		http.MethodPatch,
		http.MethodDelete,
		http.MethodOptions,
	} {
		if rctx.Routes.Match(chi.NewRouteContext(), method, path) {
			allowed = append(allowed, method)
		}
	}
	return allowed
}
