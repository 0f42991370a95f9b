package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// RegisterRoutes sets up all the HTTP routes.
func RegisterRoutes(r *mux.Router, h *Handler) {
	// Decoded oracles, baskets, vaults and pools
	r.HandleFunc("/state", h.State).Methods("GET")

	r.HandleFunc("/vaults", h.Vaults).Methods("GET")
	r.HandleFunc("/vaults/{ref}/health", h.VaultHealth).Methods("GET")
	r.HandleFunc("/baskets/{id}/price", h.BasketPrice).Methods("GET")

	r.HandleFunc("/quote/swap", h.QuoteSwap).Methods("GET")
	r.HandleFunc("/quote/liquidity", h.QuoteLiquidity).Methods("GET")

	// Builds an unsigned transaction; ?submit=true also submits it
	r.HandleFunc("/build", h.Actions).Methods("GET")
	r.HandleFunc("/build/{action}", h.Build).Methods("POST")
}

// Server is the HTTP front of a service.
type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

// NewServer routes h on addr.
func NewServer(addr string, h *Handler, readTimeout, writeTimeout time.Duration, logger *zap.Logger) *Server {
	r := mux.NewRouter()
	RegisterRoutes(r, h)
	return &Server{
		srv: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
		},
		logger: logger.Named("http"),
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Server listening", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutdown signal received, stopping server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}
