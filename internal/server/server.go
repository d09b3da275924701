// Пакет server — HTTP-сервер координатора с graceful shutdown.
// Один слушатель обслуживает REST API и upgrade дуплексного канала.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/bigkaa/sharepool/internal/api/handlers"
	"github.com/bigkaa/sharepool/internal/api/middleware"
	"github.com/bigkaa/sharepool/internal/config"
)

// Drainer — компонент, которому нужна остановка до закрытия слушателя.
type Drainer interface {
	Shutdown(ctx context.Context) error
}

// Server — HTTP-сервер координатора.
type Server struct {
	httpServer *http.Server
	hub        Drainer
	logger     *slog.Logger
	cfg        *config.Config
	onShutdown []func()
}

// New создаёт HTTP-сервер с настроенными routes и middleware.
// hub останавливается первым при graceful shutdown.
func New(cfg *config.Config, logger *slog.Logger, api *handlers.APIHandler, hub Drainer) *Server {
	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     newRouter(cfg, logger, api),
		ReadTimeout: cfg.HTTPReadTimeout,
		IdleTimeout: cfg.HTTPIdleTimeout,
	}

	return &Server{
		httpServer: srv,
		hub:        hub,
		logger:     logger.With(slog.String("component", "server")),
		cfg:        cfg,
	}
}

// newRouter собирает chi-роутер.
// Порядок middleware: request id → (real ip) → логирование → метрики →
// восстановление после паники → CORS → перехват WebSocket upgrade.
func newRouter(cfg *config.Config, logger *slog.Logger, api *handlers.APIHandler) http.Handler {
	router := chi.NewRouter()

	router.Use(chimw.RequestID)
	if cfg.TrustProxyHeaders {
		router.Use(chimw.RealIP)
	}
	router.Use(
		middleware.RequestLogger(logger),
		middleware.MetricsMiddleware(),
		middleware.Recoverer(logger),
		cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"*"},
			ExposedHeaders: []string{chimw.RequestIDHeader},
			MaxAge:         300,
		}),
		websocketUpgrade(api.ServeWS),
	)

	router.Get("/health", api.Health)
	router.Get("/health/ready", api.HealthReady)
	router.Get("/metrics", api.GetMetrics)
	router.Get("/ws", api.ServeWS)

	router.Route("/api", func(r chi.Router) {
		r.Post("/register", api.RegisterDevice)
		r.Get("/peers", api.ListPeers)
		r.Post("/share-file", api.ShareFile)
		r.Get("/files", api.ListFiles)
		r.Post("/disconnect", api.Disconnect)
		r.Get("/status", api.Status)
	})

	return router
}

// websocketUpgrade направляет запросы upgrade на дуплексный канал
// независимо от пути. Остальные запросы идут по маршрутам.
func websocketUpgrade(ws http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if websocket.IsWebSocketUpgrade(r) {
				ws(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Handler возвращает корневой HTTP-обработчик.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// OnShutdown регистрирует действие, выполняемое в начале graceful shutdown.
func (s *Server) OnShutdown(fn func()) {
	s.onShutdown = append(s.onShutdown, fn)
}

// Run открывает слушатель и обслуживает запросы до отмены ctx или
// сигнала завершения (SIGINT, SIGTERM).
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("запуск слушателя %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve обслуживает запросы на ln до отмены ctx, затем выполняет
// graceful shutdown: дуплексные соединения, затем HTTP-сервер.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("HTTP-сервер запущен", slog.String("addr", ln.Addr().String()))
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return s.shutdown()
	})

	return g.Wait()
}

// shutdown останавливает хаб (новые дуплексные соединения отклоняются,
// очереди дописываются), затем закрывает слушатель и ждёт HTTP-запросы.
func (s *Server) shutdown() error {
	s.logger.Info("Выполняется graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	for _, fn := range s.onShutdown {
		fn()
	}

	var errs []error
	if err := s.hub.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("остановка дуплексных соединений: %w", err))
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("ошибка при graceful shutdown: %w", err))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
