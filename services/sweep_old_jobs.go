// Services that run in the background alongside the HTTP server.
package services

import (
	"time"

	metrics "github.com/Shyp/go-simple-metrics"
	"github.com/reika0717/sparql-proxy/queue"
)

// SweepOldJobs periodically drops terminal jobs older than keep from the
// queue's recent list, so /jobs lookups and the admin view don't grow
// without bound. Blocks forever; run it in its own goroutine.
func SweepOldJobs(q *queue.Queue, keep time.Duration, interval time.Duration) {
	for range time.Tick(interval) {
		dropped := q.SweepOldItems(time.Now().Add(-keep))
		if dropped > 0 {
			go metrics.Measure("sweeper.dropped", int64(dropped))
		}
	}
}
