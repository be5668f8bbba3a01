package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/pkg/config"
	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/pkg/logger"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes the Prometheus metrics endpoint plus a health check
type Server struct {
	server     *http.Server
	collectors *Collectors
	config     *config.Metrics
}

// NewServer creates the metrics HTTP server
func NewServer(cfg *config.Metrics, collectors *Collectors) *Server {
	mux := http.NewServeMux()

	s := &Server{
		collectors: collectors,
		config:     cfg,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Port),
			Handler: mux,
		},
	}

	mux.Handle(cfg.Path, promhttp.Handler())
	mux.HandleFunc("/health", s.handleHealth)

	return s
}

// Start starts the metrics HTTP server in the background
func (s *Server) Start() error {
	if !s.config.Enabled {
		logger.GetLogger().Info("Metrics server disabled")
		return nil
	}

	logger.GetLogger().Infof("Starting metrics server on port %d", s.config.Port)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.GetLogger().Errorf("Metrics server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully stops the metrics server
func (s *Server) Stop(ctx context.Context) error {
	if !s.config.Enabled {
		return nil
	}

	logger.GetLogger().Info("Stopping metrics server...")
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"stats":     s.collectors.GetStats(),
	}

	json.NewEncoder(w).Encode(health)
}
