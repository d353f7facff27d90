package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/reika0717/sparql-proxy/cache"
	"github.com/reika0717/sparql-proxy/config"
	"github.com/reika0717/sparql-proxy/downstream"
	"github.com/reika0717/sparql-proxy/queue"
	"github.com/reika0717/sparql-proxy/rest"
	"github.com/reika0717/sparql-proxy/test"
)

const testAdminPassword = "hunter2"

// newTestConfig builds a server backed by the given upstream handler, a
// memory cache, and a single-worker queue.
func newTestConfig(t *testing.T, backend http.Handler) Config {
	t.Helper()
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)
	a := NewSharedSecretAuthorizer()
	a.AddUser("admin", testAdminPassword)
	return Config{
		Authorizer: a,
		AdminToken: testAdminPassword,
		Store:      cache.NewMemoryStore(cache.RawCompressor{}),
		Compressor: cache.RawCompressor{},
		Queue:      queue.New(1, 0),
		Backend:    downstream.NewClient(srv.URL),
		JobTimeout: 5 * time.Second,
	}
}

func staticBackend(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/sparql-results+json")
		w.Write([]byte(body))
	})
}

const emptyResults = `{"head":{"vars":["s"]},"results":{"bindings":[]}}`

func Test404JSONUnknownResource(t *testing.T) {
	t.Parallel()
	h := Get(newTestConfig(t, staticBackend(emptyResults)))
	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/foo/unknown", nil)
	h.ServeHTTP(w, req)
	test.AssertEquals(t, w.Code, http.StatusNotFound)
	var e rest.Error
	err := json.Unmarshal(w.Body.Bytes(), &e)
	test.AssertNotError(t, err, "")
	test.AssertEquals(t, e.Message, "Resource not found")
	test.AssertEquals(t, e.Instance, "/foo/unknown")
}

func TestMethodGate(t *testing.T) {
	t.Parallel()
	h := Get(newTestConfig(t, staticBackend(emptyResults)))
	w := httptest.NewRecorder()
	req := httptest.NewRequest("DELETE", "/sparql", nil)
	h.ServeHTTP(w, req)
	test.AssertEquals(t, w.Code, http.StatusMethodNotAllowed)
	var e rest.Error
	err := json.Unmarshal(w.Body.Bytes(), &e)
	test.AssertNotError(t, err, "")
	test.AssertEquals(t, e.Message, "Method not allowed")
}

func TestOptionsSparql(t *testing.T) {
	t.Parallel()
	h := Get(newTestConfig(t, staticBackend(emptyResults)))
	w := httptest.NewRecorder()
	req := httptest.NewRequest("OPTIONS", "/sparql", nil)
	h.ServeHTTP(w, req)
	test.AssertEquals(t, w.Code, http.StatusOK)
}

func TestServerVersionHeader(t *testing.T) {
	t.Parallel()
	h := Get(newTestConfig(t, staticBackend(emptyResults)))
	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/", nil)
	h.ServeHTTP(w, req)
	test.AssertEquals(t, w.Header().Get("Server"), fmt.Sprintf("sparql-proxy/%s", config.Version))
}

func TestDashboardRendersVersion(t *testing.T) {
	t.Parallel()
	h := Get(newTestConfig(t, staticBackend(emptyResults)))
	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/", nil)
	h.ServeHTTP(w, req)
	test.AssertEquals(t, w.Code, 200)
	test.AssertEquals(t, w.Header().Get("Content-Type"), "text/html; charset=utf-8")
	test.AssertContains(t, w.Body.String(), fmt.Sprintf("sparql-proxy version %s", config.Version))
	// No admin cookie, no admin controls.
	test.Assert(t, !strings.Contains(w.Body.String(), "Purge cache"), "dashboard should not render admin controls")
}

func TestAdminDisallowsUnauthedUsers(t *testing.T) {
	t.Parallel()
	h := Get(newTestConfig(t, staticBackend(emptyResults)))
	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/admin", nil)
	h.ServeHTTP(w, req)
	test.AssertEquals(t, w.Code, 401)
}

func TestAdminForbidsUnknownUsers(t *testing.T) {
	t.Parallel()
	h := Get(newTestConfig(t, staticBackend(emptyResults)))
	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/admin", nil)
	req.SetBasicAuth("Unknown user", "Wrong password")
	h.ServeHTTP(w, req)
	test.AssertEquals(t, w.Code, 403)
}

func TestAdminSetsCookie(t *testing.T) {
	t.Parallel()
	h := Get(newTestConfig(t, staticBackend(emptyResults)))
	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/admin", nil)
	req.SetBasicAuth("admin", testAdminPassword)
	h.ServeHTTP(w, req)
	test.AssertEquals(t, w.Code, 200)
	cookies := w.Result().Cookies()
	var found bool
	for _, c := range cookies {
		if c.Name == adminCookieName {
			found = true
			test.AssertEquals(t, c.Value, testAdminPassword)
		}
	}
	test.Assert(t, found, "expected the admin cookie to be set")
	test.AssertContains(t, w.Body.String(), "Purge cache")
}
