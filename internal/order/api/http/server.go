package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"restaurant-pos/internal/order/api/http/handle"
	"restaurant-pos/internal/order/app/core"
	"restaurant-pos/internal/order/app/services"
	"restaurant-pos/internal/order/domain/geo"
	"restaurant-pos/internal/xpkg/config"
	"restaurant-pos/internal/xpkg/docstore"
	"restaurant-pos/internal/xpkg/logger"

	brokermessage "restaurant-pos/internal/order/adapter/broker_message"
	database "restaurant-pos/internal/order/adapter/db"

	"github.com/rs/cors"
)

type Server struct {
	mux         *http.ServeMux
	cfg         *config.Config
	srv         *http.Server
	orderParams *core.OrderParams
	mylog       logger.Logger
	store       docstore.Store
	mb          core.IRabbitMQ
	ctx         context.Context
	appCtx      context.Context
	mu          sync.Mutex
}

func NewServer(ctx, appCtx context.Context, cfg *config.Config, orderParams *core.OrderParams, mylog logger.Logger) *Server {
	return &Server{
		ctx:         ctx,
		appCtx:      appCtx,
		cfg:         cfg,
		orderParams: orderParams,
		mylog:       mylog,
		mux:         http.NewServeMux(),
	}
}

// Run initializes routes and starts listening. It returns when the server stops.
func (s *Server) Run() error {
	mylog := s.mylog.Action("server_started")

	if err := s.initializeStore(); err != nil {
		mylog.Action("db_connection_failed").Error("Failed to open document store", err)
		return err
	}
	mylog.Action("db_connected").Info("Document store ready", "driver", s.cfg.Store.Driver)

	if s.cfg.RMQ.Host == "" {
		mylog.Action("mb_disabled").Warn("rabbitmq.host is empty, customer notifications are disabled")
	} else {
		if err := s.initializeRabbitMQ(); err != nil {
			mylog.Action("mb_connection_failed").Error("Failed to connect to message broker", err)
			return err
		}
		mylog.Action("mb_connected").Info("Successful message broker connection")
	}

	if err := s.Configure(); err != nil {
		return err
	}

	s.mu.Lock()
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.orderParams.Port),
		Handler:           limitConcurrency(s.handler(), s.orderParams.MaxConcurrent),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Unlock()

	mylog = mylog.WithGroup("details").With("port", s.orderParams.Port, "max-concurrent", s.orderParams.MaxConcurrent)

	mylog.Info("server is running")
	return s.startHTTPServer()
}

// Stop provides a programmatic shutdown. Accepts a context for timeout control.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mylog.Action("graceful_shutdown_started").Info("Shutting down HTTP server...")

	if s.srv != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, core.WaitTime*time.Second)
		defer cancel()

		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.mylog.Action("graceful_shutdown_failed").Error("Failed to shut down HTTP server gracefully", err)
			return fmt.Errorf("http server shutdown: %w", err)
		}
	}

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.mylog.Action("db_close_failed").Error("Failed to close document store", err)
			return fmt.Errorf("db close: %w", err)
		}
		s.mylog.Action("db_closed").Info("Document store closed")
	}

	if s.mb != nil {
		if err := s.mb.Close(); err != nil {
			s.mylog.Action("mb_close_failed").Error("Failed to close message broker", err)
			return fmt.Errorf("mb close: %w", err)
		}
		s.mylog.Action("mb_closed").Info("Message broker closed")
	}

	s.mylog.Action("graceful_shutdown_completed").Info("HTTP server shut down gracefully")
	return nil
}

func (s *Server) startHTTPServer() error {
	errCh := make(chan error, 1)

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		} else {
			errCh <- nil
		}
	}()

	select {
	case <-s.ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) initializeStore() error {
	opts := docstore.Options{
		MaxAttempts: s.cfg.Store.MaxAttempts,
		Backoff:     time.Duration(s.cfg.Store.RetryBackoff) * time.Millisecond,
	}
	if s.cfg.Store.Driver == config.DriverMemory {
		s.store = docstore.NewMemory(opts)
		return nil
	}
	store, err := docstore.NewPostgres(s.appCtx, s.cfg.DB, opts, s.mylog)
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrDBConn, err)
	}
	s.store = store
	return nil
}

func (s *Server) initializeRabbitMQ() error {
	mb, err := brokermessage.New(s.appCtx, s.cfg.RMQ, s.mylog)
	if err != nil {
		return fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	s.mb = mb
	return nil
}

// Configure wires repositories, services and routes onto the mux.
func (s *Server) Configure() error {
	counterRepo := database.NewCounterRepo(s.store)
	orderRepo := database.NewOrderRepo(s.store, s.mylog)
	regionRepo := database.NewRegionRepo(s.store)

	if d := s.cfg.Delivery; d != nil && d.RadiusKm > 0 {
		ctx, cancel := context.WithTimeout(s.appCtx, core.WaitTime*time.Second)
		defer cancel()
		if err := regionRepo.EnsureDefault(ctx, geo.NewRegion(d.CenterLat, d.CenterLng, d.RadiusKm)); err != nil {
			s.mylog.Action("region_seed_failed").Error("Failed to seed delivery region", err)
			return fmt.Errorf("seed delivery region: %w", err)
		}
	}

	sequence := services.NewSequenceCounter(counterRepo, s.cfg.Business.Location(), s.mylog)

	orderService := services.NewOrderService(s.appCtx, orderRepo, regionRepo, sequence, s.mb, s.cfg.Business.TaxRate, s.mylog)

	orderHandler := handle.NewOrderHandler(orderService, handle.NewValidator(), s.mylog)
	Register(s.mux, orderHandler, s.health())
	return nil
}

// Register mounts every order-service route.
func Register(mux *http.ServeMux, oh *handle.OrderHandler, health http.HandlerFunc) {
	mux.Handle("POST /checkout", oh.Checkout())
	mux.Handle("POST /pos/orders", oh.CreatePOS())
	mux.Handle("GET /orders/{id}", oh.Get())
	mux.Handle("GET /users/{uid}/orders", oh.ListByCustomer())
	mux.Handle("POST /orders/{id}/accept", oh.Accept())
	mux.Handle("POST /orders/{id}/reject", oh.Reject())
	mux.Handle("POST /orders/{id}/advance", oh.Advance())
	mux.Handle("PUT /orders/{id}/items", oh.ReplaceItems())
	mux.Handle("POST /delivery/check", oh.CheckAddress())
	mux.Handle("GET /delivery/region", oh.GetRegion())
	mux.Handle("PUT /delivery/region", oh.UpdateRegion())
	mux.Handle("GET /health", health)
}

func (s *Server) handler() http.Handler {
	return NewCORS(s.cfg.CORS).Handler(s.mux)
}

// NewCORS lets the storefront and POS browsers call the API.
func NewCORS(c *config.CORS) *cors.Cors {
	opts := cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}
	if c != nil {
		if len(c.AllowedOrigins) > 0 {
			opts.AllowedOrigins = c.AllowedOrigins
		}
		if len(c.AllowedMethods) > 0 {
			opts.AllowedMethods = c.AllowedMethods
		}
		if len(c.AllowedHeaders) > 0 {
			opts.AllowedHeaders = c.AllowedHeaders
		}
	}
	return cors.New(opts)
}

func (s *Server) health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := map[string]string{"status": "ok", "store": "up", "broker": "disabled"}
		code := http.StatusOK
		if err := s.store.Ping(ctx); err != nil {
			status["status"], status["store"] = "degraded", "down"
			code = http.StatusServiceUnavailable
		}
		if s.mb != nil {
			status["broker"] = "up"
			if err := s.mb.IsAlive(); err != nil {
				// orders still go through without notifications
				status["status"], status["broker"] = "degraded", "down"
			}
		}
		writeJSON(w, code, status)
	}
}
