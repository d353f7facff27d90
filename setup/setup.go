// Setup helps initialize applications from the environment.
package setup

import (
	"fmt"
	"log"
	"os"

	"github.com/reika0717/sparql-proxy/cache"
	"github.com/reika0717/sparql-proxy/config"
	"github.com/reika0717/sparql-proxy/queue"
)

// Compressor builds the configured value compressor (COMPRESSOR, default
// "raw").
func Compressor() (cache.Compressor, error) {
	return cache.GetCompressor(os.Getenv("COMPRESSOR"))
}

// Store builds the configured cache store (CACHE_STORE, default "null").
func Store(c cache.Compressor) (cache.Store, error) {
	name := os.Getenv("CACHE_STORE")
	switch name {
	case "", "null":
		return cache.NullStore{}, nil
	case "memory":
		return cache.NewMemoryStore(c), nil
	case "file":
		root := os.Getenv("CACHE_STORE_PATH")
		if root == "" {
			root = "/tmp/sparql-proxy/cache"
		}
		return cache.NewFileStore(root, c), nil
	case "postgres":
		url := os.Getenv("CACHE_STORE_DATABASE_URL")
		if url == "" {
			return nil, fmt.Errorf("setup: CACHE_STORE is postgres but CACHE_STORE_DATABASE_URL is unset")
		}
		return cache.NewPostgresStore(url, c)
	default:
		return nil, fmt.Errorf("setup: unknown cache store %q", name)
	}
}

// Queue builds the job queue from MAX_CONCURRENCY and MAX_WAITING.
func Queue() *queue.Queue {
	maxConcurrency, err := config.GetInt("MAX_CONCURRENCY")
	if err != nil {
		maxConcurrency = 1
	}
	maxWaiting, err := config.GetInt("MAX_WAITING")
	if err != nil {
		// Unset means unlimited admission.
		maxWaiting = 0
	}
	log.Printf("queue: %d concurrent, %d waiting (0 = unlimited)", maxConcurrency, maxWaiting)
	return queue.New(maxConcurrency, maxWaiting)
}
