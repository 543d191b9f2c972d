package publicapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/jobmesh-project/jobmesh/pkg/jobstore"
	"github.com/jobmesh-project/jobmesh/pkg/orchestrator"
	"github.com/jobmesh-project/jobmesh/pkg/system"
)

type APIServerConfig struct {
	// These are TCP connection deadlines, not HTTP timeouts. They operate
	// on the connection rather than on handler completion.
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
}

var DefaultAPIServerConfig = &APIServerConfig{
	ReadHeaderTimeout: 10 * time.Second,
	ReadTimeout:       20 * time.Second,
	WriteTimeout:      20 * time.Second,
}

type APIServerParams struct {
	NodeID      string
	Host        string
	Port        int
	Marketplace *orchestrator.Marketplace
	Store       jobstore.Store
	// MetricsGatherer backs GET /metrics. Nil serves the default registry.
	MetricsGatherer prometheus.Gatherer
	Config          *APIServerConfig
}

// APIServer exposes a node's marketplace over REST: job submission, bidding,
// assignment and live bid streams.
type APIServer struct {
	nodeID      string
	host        string
	port        int
	marketplace *orchestrator.Marketplace
	store       jobstore.Store
	gatherer    prometheus.Gatherer
	config      *APIServerConfig
}

func NewServer(params APIServerParams) *APIServer {
	if params.Config == nil {
		params.Config = DefaultAPIServerConfig
	}
	return &APIServer{
		nodeID:      params.NodeID,
		host:        params.Host,
		port:        params.Port,
		marketplace: params.Marketplace,
		store:       params.Store,
		gatherer:    params.MetricsGatherer,
		config:      params.Config,
	}
}

// GetURI returns the HTTP URI that the server is listening on.
func (apiServer *APIServer) GetURI() string {
	return fmt.Sprintf("http://%s:%d", apiServer.host, apiServer.port)
}

// Router builds the route table. Exposed so tests can drive handlers
// through httptest without binding a port.
func (apiServer *APIServer) Router() *mux.Router {
	router := mux.NewRouter()
	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/jobs", apiServer.submitJob).Methods(http.MethodPost)
	api.HandleFunc("/jobs", apiServer.listJobs).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}", apiServer.getJob).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}/begin-bidding", apiServer.beginBidding).Methods(http.MethodPost)
	api.HandleFunc("/jobs/{id}/bids", apiServer.submitBid).Methods(http.MethodPost)
	api.HandleFunc("/jobs/{id}/bids", apiServer.getBids).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}/assign", apiServer.assign).Methods(http.MethodPost)
	api.HandleFunc("/id", apiServer.id).Methods(http.MethodGet)

	if apiServer.gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(apiServer.gatherer, promhttp.HandlerOpts{}))
	} else {
		router.Handle("/metrics", promhttp.Handler())
	}
	return router
}

// ListenAndServe listens for and serves HTTP requests against the API
// server until the cleanup manager shuts it down.
func (apiServer *APIServer) ListenAndServe(ctx context.Context, cm *system.CleanupManager) error {
	srv := http.Server{
		Handler:           apiServer.Router(),
		Addr:              fmt.Sprintf("%s:%d", apiServer.host, apiServer.port),
		ReadHeaderTimeout: apiServer.config.ReadHeaderTimeout,
		ReadTimeout:       apiServer.config.ReadTimeout,
		WriteTimeout:      apiServer.config.WriteTimeout,
	}

	log.Ctx(ctx).Debug().Msgf(
		"API server listening for host %s on %s...", apiServer.nodeID, srv.Addr)

	cm.RegisterCallback(func() error {
		return srv.Shutdown(ctx)
	})

	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		log.Ctx(ctx).Debug().Msgf(
			"API server closed for host %s on %s.", apiServer.nodeID, srv.Addr)
		return nil // expected when the server is shut down
	}
	return err
}
