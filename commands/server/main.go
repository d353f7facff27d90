// Run the sparql-proxy server.
//
// All of the project defaults are used. The admin user and password come
// from ADMIN_USER/ADMIN_PASSWORD, defaulting to "admin"/"password". You
// will want to change them.
package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	metrics "github.com/Shyp/go-simple-metrics"
	"github.com/gorilla/handlers"
	"github.com/reika0717/sparql-proxy/config"
	"github.com/reika0717/sparql-proxy/downstream"
	"github.com/reika0717/sparql-proxy/server"
	"github.com/reika0717/sparql-proxy/services"
	"github.com/reika0717/sparql-proxy/setup"
)

const defaultJobTimeout = 5 * time.Minute
const defaultKeepOldJobs = 5 * time.Minute
const sweepInterval = 5 * time.Second

func configure() (http.Handler, error) {
	backendUrl := config.GetURLOrBail("SPARQL_BACKEND")

	metrics.Namespace = "sparql-proxy.server"
	metrics.Start("web")

	compressor, err := setup.Compressor()
	if err != nil {
		return nil, err
	}
	store, err := setup.Store(compressor)
	if err != nil {
		return nil, err
	}
	q := setup.Queue()

	jobTimeout, err := config.GetDurationMs("JOB_TIMEOUT")
	if err != nil {
		jobTimeout = defaultJobTimeout
	}
	keepOldJobs, err := config.GetDurationMs("DURATION_TO_KEEP_OLD_JOBS")
	if err != nil {
		keepOldJobs = defaultKeepOldJobs
	}
	go services.SweepOldJobs(q, keepOldJobs, sweepInterval)

	backend := downstream.NewClient(backendUrl.String())
	var splitter *downstream.Splitter
	if config.GetBool("ENABLE_QUERY_SPLITTING") {
		maxChunkLimit, err := config.GetInt("MAX_CHUNK_LIMIT")
		if err != nil {
			maxChunkLimit = 1000
		}
		maxLimit, err := config.GetInt("MAX_LIMIT")
		if err != nil {
			maxLimit = 10000
		}
		splitter = downstream.NewSplitter(backend, int64(maxChunkLimit), int64(maxLimit))
		log.Printf("query splitting enabled: chunk %d, cap %d", maxChunkLimit, maxLimit)
	}

	var queryLog *services.QueryLogger
	if path := os.Getenv("QUERY_LOG_PATH"); path != "" {
		queryLog, err = services.NewQueryLogger(path)
		if err != nil {
			log.Printf("Could not open query log %s: %s. Disabling query log", path, err)
			queryLog = nil
		}
	}

	adminUser := os.Getenv("ADMIN_USER")
	if adminUser == "" {
		adminUser = "admin"
	}
	adminPassword := os.Getenv("ADMIN_PASSWORD")
	if adminPassword == "" {
		adminPassword = "password"
	}
	server.AddUser(adminUser, adminPassword)

	return server.Get(server.Config{
		Authorizer: server.DefaultAuthorizer,
		AdminToken: adminPassword,
		Store:      store,
		Compressor: compressor,
		Queue:      q,
		Backend:    backend,
		Splitter:   splitter,
		JobTimeout: jobTimeout,
		TrustProxy: config.GetBool("TRUST_PROXY"),
		QueryLog:   queryLog,
	}), nil
}

func main() {
	s, err := configure()
	if err != nil {
		log.Fatal(err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}
	log.Printf("Listening on port %s\n", port)
	log.Fatal(http.ListenAndServe(fmt.Sprintf(":%s", port), handlers.LoggingHandler(os.Stdout, s)))
}
