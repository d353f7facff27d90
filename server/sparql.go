package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	metrics "github.com/Shyp/go-simple-metrics"
	"github.com/reika0717/sparql-proxy/cache"
	"github.com/reika0717/sparql-proxy/queue"
	"github.com/reika0717/sparql-proxy/rest"
	"github.com/reika0717/sparql-proxy/services"
	"github.com/reika0717/sparql-proxy/sparql"
)

// GET/POST/OPTIONS /sparql
//
// The proxied endpoint: normalize the query, try the cache, otherwise wait
// for a queue slot and forward to the backend.
func (s *server) handleSparql(w http.ResponseWriter, r *http.Request) {
	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}
	start := time.Now()
	rawQuery, token, ok := s.extractQuery(w, r)
	if !ok {
		return
	}
	q, err := sparql.Parse(rawQuery)
	if err != nil {
		s.handleParseError(w, r, err)
		return
	}
	accept := r.Header.Get("Accept")
	key := q.Fingerprint(accept) + "." + s.Compressor.ID()
	ip := clientIP(r, s.TrustProxy)

	entry, err := s.Store.Get(key)
	if err != nil {
		// A cache error is a miss, not a request failure.
		log.Printf("cache get %s: %s", key, err)
		go metrics.Increment("cache.get.error")
		entry = nil
	}
	if entry != nil {
		go metrics.Increment("cache.hit")
		s.respond(w, http.StatusOK, "hit", entry)
		s.logQuery(start, ip, rawQuery, true, http.StatusOK, entry)
		return
	}
	go metrics.Increment("cache.miss")

	job, err := queue.NewJob(q.Canonical(), token, ip, s.JobTimeout, s.runner(q, accept))
	if err != nil {
		writeServerError(w, r, err)
		return
	}
	result, err := s.Queue.Enqueue(job)
	if err != nil {
		status := s.writeJobError(w, r, err)
		s.logQuery(start, ip, rawQuery, false, status, nil)
		return
	}
	entry = &cache.Entry{ContentType: result.ContentType, Body: result.Body}
	s.respond(w, http.StatusOK, "miss", entry)
	s.logQuery(start, ip, rawQuery, false, http.StatusOK, entry)

	// Write-behind: a failed put never affects the already-sent response.
	go func() {
		if err := s.Store.Put(key, entry); err != nil {
			log.Printf("cache put %s: %s", key, err)
			go metrics.Increment("cache.put.error")
		}
	}()
}

// runner builds the work the queue executes for one request.
func (s *server) runner(q *sparql.Query, accept string) queue.Runner {
	return func(ctx context.Context) (*queue.Result, error) {
		var res *rest.Response
		var err error
		if s.Splitter != nil {
			res, err = s.Splitter.Execute(ctx, q, accept)
		} else {
			res, err = s.Backend.Query(ctx, q.Canonical(), accept)
		}
		if err != nil {
			return nil, err
		}
		contentType := res.ContentType
		if contentType == "" {
			contentType = sparql.ResultsJSONType
		}
		return &queue.Result{ContentType: contentType, Body: res.Body}, nil
	}
}

func (s *server) respond(w http.ResponseWriter, status int, cacheState string, entry *cache.Entry) {
	w.Header().Set("Content-Type", entry.ContentType)
	w.Header().Set("X-Cache", cacheState)
	w.WriteHeader(status)
	w.Write(entry.Body)
}

// extractQuery pulls the query text and token out of the request,
// responding with a 400 itself if the query is missing or unreadable.
func (s *server) extractQuery(w http.ResponseWriter, r *http.Request) (query, token string, ok bool) {
	switch r.Method {
	case "GET":
		query = r.URL.Query().Get("query")
		token = r.URL.Query().Get("token")
	case "POST":
		mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		switch mediaType {
		case "application/sparql-query":
			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MAX_QUERY_SIZE))
			if err != nil {
				badRequest(w, r, &rest.Error{
					Message:  "Could not read request body",
					ID:       "invalid_request",
					Data:     err.Error(),
					Instance: r.URL.Path,
				})
				return "", "", false
			}
			query = string(body)
			token = r.URL.Query().Get("token")
		case "application/x-www-form-urlencoded":
			r.Body = http.MaxBytesReader(w, r.Body, MAX_QUERY_SIZE)
			if err := r.ParseForm(); err != nil {
				badRequest(w, r, &rest.Error{
					Message:  "Could not parse form body",
					ID:       "invalid_request",
					Data:     err.Error(),
					Instance: r.URL.Path,
				})
				return "", "", false
			}
			query = r.PostFormValue("query")
			token = r.PostFormValue("token")
			if token == "" {
				token = r.URL.Query().Get("token")
			}
		}
	}
	if query == "" {
		go metrics.Increment("sparql.missing_query")
		badRequest(w, r, createEmptyErr("query", r.URL.Path))
		return "", "", false
	}
	return query, token, true
}

func (s *server) handleParseError(w http.ResponseWriter, r *http.Request, err error) {
	var terr *sparql.TypeNotAllowedError
	if errors.As(err, &terr) {
		go metrics.Increment("sparql.type_not_allowed")
		badRequest(w, r, &rest.Error{
			Message:  "Query type not allowed",
			ID:       "query_type_not_allowed",
			Data:     terr.Error(),
			Instance: r.URL.Path,
		})
		return
	}
	var perr *sparql.ParseError
	if errors.As(err, &perr) {
		go metrics.Increment("sparql.parse_error")
		badRequest(w, r, &rest.Error{
			Message:  "Query parse failed",
			ID:       "query_parse_failed",
			Data:     perr.Msg,
			Instance: r.URL.Path,
		})
		return
	}
	writeServerError(w, r, err)
}

// writeJobError maps a queue or backend failure onto the response, and
// returns the status code it wrote.
func (s *server) writeJobError(w http.ResponseWriter, r *http.Request, err error) int {
	switch {
	case errors.Is(err, queue.ErrQueueFull):
		go metrics.Increment("sparql.queue_full")
		e := &rest.Error{
			Message:    "Job queue is full, try again later",
			ID:         "queue_full",
			Instance:   r.URL.Path,
			StatusCode: http.StatusServiceUnavailable,
		}
		w.WriteHeader(e.StatusCode)
		json.NewEncoder(w).Encode(e)
		return e.StatusCode
	case errors.Is(err, queue.ErrTimeout):
		go metrics.Increment("sparql.timeout")
		e := &rest.Error{
			Message:    "Query timed out",
			ID:         "job_timeout",
			Instance:   r.URL.Path,
			StatusCode: http.StatusGatewayTimeout,
		}
		w.WriteHeader(e.StatusCode)
		json.NewEncoder(w).Encode(e)
		return e.StatusCode
	case errors.Is(err, queue.ErrCancelled):
		go metrics.Increment("sparql.cancelled")
		e := &rest.Error{
			Message:    "Query was cancelled",
			ID:         "job_cancelled",
			Instance:   r.URL.Path,
			StatusCode: http.StatusServiceUnavailable,
		}
		w.WriteHeader(e.StatusCode)
		json.NewEncoder(w).Encode(e)
		return e.StatusCode
	}
	var rerr *rest.Error
	if errors.As(err, &rerr) {
		// Backend failure: preserve the upstream status and body.
		go metrics.Increment("sparql.backend_error")
		status := rerr.StatusCode
		if status == 0 {
			status = http.StatusBadGateway
		}
		rerr.Instance = r.URL.Path
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(rerr)
		return status
	}
	writeServerError(w, r, err)
	return http.StatusInternalServerError
}

func (s *server) logQuery(start time.Time, ip, query string, hit bool, status int, entry *cache.Entry) {
	if s.QueryLog == nil {
		return
	}
	finished := time.Now()
	e := services.QueryLogEntry{
		StartedAt:  start.UTC(),
		FinishedAt: finished.UTC(),
		ElapsedMs:  finished.Sub(start).Milliseconds(),
		IP:         ip,
		Query:      query,
		CacheHit:   hit,
		StatusCode: status,
	}
	if entry != nil {
		e.ContentType = entry.ContentType
		e.Body = string(entry.Body)
	}
	s.QueryLog.Record(e)
}

// clientIP returns the peer address, honouring X-Forwarded-For only when
// the proxy is trusted.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			return strings.TrimSpace(strings.Split(fwd, ",")[0])
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
