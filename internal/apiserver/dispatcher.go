package apiserver

import (
	"bytes"
	"cmp"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/etsangsplk/metadata-agent/internal/logging"
)

// Route maps an exact method plus a literal path prefix to a handler.
type Route struct {
	Method string
	Prefix string
	Handle http.HandlerFunc
}

// Dispatcher resolves requests to handlers by longest-prefix match.
//
// The route table is built once at construction and sorted in descending
// lexicographic (method, prefix) order, so when one prefix extends another
// the more specific entry is visited first. Resolution is first-match-wins:
// exactly one handler runs per request, the one with the longest matching
// prefix. The table is never mutated afterwards, which is what makes
// concurrent lookups across server workers safe without locking.
type Dispatcher struct {
	routes  []Route
	verbose func() bool
	logger  *slog.Logger

	// missLog throttles unmatched-route warnings so a chatty client cannot
	// flood the log.
	missLog *rate.Limiter
}

// NewDispatcher builds an immutable dispatcher from the given routes.
// verbose is sampled per request; nil means never verbose.
func NewDispatcher(routes []Route, verbose func() bool, logger *slog.Logger) *Dispatcher {
	sorted := slices.Clone(routes)
	slices.SortFunc(sorted, func(a, b Route) int {
		return cmp.Or(
			cmp.Compare(b.Method, a.Method),
			cmp.Compare(b.Prefix, a.Prefix),
		)
	})
	if verbose == nil {
		verbose = func() bool { return false }
	}
	return &Dispatcher{
		routes:  sorted,
		verbose: verbose,
		logger:  logging.Default(logger).With("component", "dispatcher"),
		missLog: rate.NewLimiter(rate.Every(time.Second), 10),
	}
}

// ServeHTTP implements http.Handler.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if d.verbose() {
		d.logRequest(r)
	}

	for _, rt := range d.routes {
		if r.Method != rt.Method || !strings.HasPrefix(r.URL.Path, rt.Prefix) {
			continue
		}
		rt.Handle(w, r)
		return
	}

	if d.missLog.Allow() {
		d.logger.Warn("no handler for request", "method", r.Method, "path", r.URL.Path)
	}
	WriteError(w, http.StatusNotFound, "Not found")
}

// logRequest logs method, path, headers and body before dispatch. The body
// is restored so the handler can still read it.
func (d *Dispatcher) logRequest(r *http.Request) {
	var body []byte
	if r.Body != nil {
		body, _ = io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))
	}
	d.logger.Info("dispatching request",
		"method", r.Method,
		"path", r.URL.Path,
		"headers", r.Header,
		"body", string(body))
}

// errorResponse is the fixed JSON error object served for failed lookups
// and unmatched routes.
type errorResponse struct {
	StatusCode int    `json:"status_code"`
	Error      string `json:"error"`
}

// WriteError writes the JSON error object with the given status.
func WriteError(w http.ResponseWriter, status int, msg string) {
	body, _ := json.Marshal(errorResponse{StatusCode: status, Error: msg})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// WriteJSON writes v as a 200 JSON response.
func WriteJSON(w http.ResponseWriter, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Serialization failed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
