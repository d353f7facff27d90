// Package server provides the HTTP interface for the caching SPARQL
// proxy.
package server

import (
	"fmt"
	"net/http"
	"net/http/pprof"
	"regexp"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/reika0717/sparql-proxy/cache"
	"github.com/reika0717/sparql-proxy/config"
	"github.com/reika0717/sparql-proxy/downstream"
	"github.com/reika0717/sparql-proxy/queue"
	"github.com/reika0717/sparql-proxy/services"
)

// The maximum query size that can be sent in the body of a HTTP request.
const MAX_QUERY_SIZE = 100 * 1024

// ANY /sparql
var sparqlRoute = regexp.MustCompile(`^/sparql$`)

// GET /jobs/:token
var jobRoute = regexp.MustCompile(`^/jobs/(?P<Token>[^\s\/]+)$`)

// GET /admin
var adminRoute = regexp.MustCompile(`^/admin$`)

// GET /live (websocket)
var liveRoute = regexp.MustCompile(`^/live$`)

// Config wires the server's collaborators together.
type Config struct {
	Authorizer Authorizer
	// AdminToken is the value of the cookie granting live-channel
	// access. Set from the admin password.
	AdminToken string
	Store      cache.Store
	Compressor cache.Compressor
	Queue      *queue.Queue
	Backend    *downstream.Client
	// Splitter, when non-nil, executes SELECT queries in LIMIT/OFFSET
	// chunks instead of forwarding them whole.
	Splitter   *downstream.Splitter
	JobTimeout time.Duration
	TrustProxy bool
	QueryLog   *services.QueryLogger
}

type server struct {
	Config
}

// Get returns a http.Handler with all routes initialized using the given
// configuration.
func Get(c Config) http.Handler {
	s := &server{Config: c}
	h := new(RegexpHandler)

	h.Handler(sparqlRoute, []string{"GET", "POST", "OPTIONS"}, http.HandlerFunc(s.handleSparql))
	h.Handler(jobRoute, []string{"GET"}, http.HandlerFunc(s.handleJobStatus))
	h.Handler(adminRoute, []string{"GET"}, authHandler(http.HandlerFunc(s.handleAdmin), c.Authorizer))
	h.Handler(liveRoute, []string{"GET"}, http.HandlerFunc(s.handleLive))

	h.Handler(buildRoute("^/debug/pprof$"), []string{"GET"}, authHandler(http.HandlerFunc(pprof.Index), c.Authorizer))
	h.Handler(buildRoute("^/debug/pprof/cmdline$"), []string{"GET"}, authHandler(http.HandlerFunc(pprof.Cmdline), c.Authorizer))
	h.Handler(buildRoute("^/debug/pprof/profile$"), []string{"GET"}, authHandler(http.HandlerFunc(pprof.Profile), c.Authorizer))
	h.Handler(buildRoute("^/debug/pprof/symbol$"), []string{"GET"}, authHandler(http.HandlerFunc(pprof.Symbol), c.Authorizer))

	h.Handler(buildRoute("^/$"), []string{"GET"}, http.HandlerFunc(s.renderDashboard))

	return handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)(serverHeaderHandler(h))
}

func serverHeaderHandler(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// hack, figure out how to put middleware on a subset of responses
		if strings.Contains(r.URL.Path, "/debug/pprof") {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		} else if r.URL.Path == "/" || r.URL.Path == "/admin" {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
		} else {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
		}
		w.Header().Set("Server", fmt.Sprintf("sparql-proxy/%s", config.Version))
		h.ServeHTTP(w, r)
	})
}
