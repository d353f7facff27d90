package server

import (
	"encoding/json"
	"net/http"

	metrics "github.com/Shyp/go-simple-metrics"
)

// GET /jobs/:token
//
// Returns the most recent job submitted with the given token, or a 404
// once the sweeper has dropped it.
func (s *server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	token := jobRoute.FindStringSubmatch(r.URL.Path)[1]
	summary := s.Queue.JobStatus(token)
	if summary == nil {
		go metrics.Increment("job.get.not_found")
		notFound(w, new404(r))
		return
	}
	go metrics.Increment("job.get.success")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(summary)
}
