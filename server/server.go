package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voxpro/cache"
	"voxpro/config"
	"voxpro/core/auth"
	"voxpro/core/events"
	"voxpro/core/realtime"
	"voxpro/core/upload"
	"voxpro/core/voxpro"
	"voxpro/db"
	"voxpro/logger"
	"voxpro/repository"
	"voxpro/storage"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"gorm.io/gorm"
)

// Deps are the external resources a Server runs on.
type Deps struct {
	Config   *config.Config
	DB       *gorm.DB
	Blobs    storage.BlobStore
	Notifier realtime.Notifier
	// Cache is optional.
	Cache AssignmentCache
}

type Server struct {
	cfg      *config.Config
	db       *gorm.DB
	blobs    storage.BlobStore
	notifier realtime.Notifier
	cache    AssignmentCache

	assignments repository.AssignmentRepository
	mediaFiles  repository.MediaFileRepository
	users       repository.UserRepository
	store       *voxpro.RepositoryStore
	events      *events.Store
	uploads     *upload.Service
	tokens      *auth.TokenIssuer
	templates   *PlayerTemplates
	metrics     *Metrics

	hub      *realtime.Hub
	upgrader websocket.Upgrader
	router   *mux.Router
}

// New wires handlers to deps and starts the websocket hub.
func New(ctx context.Context, deps Deps) (*Server, error) {
	cfg := deps.Config
	notifier := deps.Notifier
	if deps.Cache != nil {
		notifier = &invalidatingNotifier{Notifier: deps.Notifier, cache: deps.Cache}
	}
	s := &Server{
		cfg:         cfg,
		db:          deps.DB,
		blobs:       deps.Blobs,
		notifier:    notifier,
		cache:       deps.Cache,
		assignments: repository.NewGormAssignmentRepository(deps.DB),
		mediaFiles:  repository.NewGormMediaFileRepository(deps.DB),
		users:       repository.NewGormUserRepository(deps.DB),
		events:      events.NewStore(repository.NewGormEventRepository(deps.DB), notifier),
		tokens:      auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL),
		metrics:     NewMetrics(),
		hub:         realtime.NewHub(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.store = voxpro.NewRepositoryStore(s.assignments, notifier)
	s.uploads = upload.NewService(deps.DB, deps.Blobs, notifier, upload.Options{
		KeySlots:      cfg.KeySlots,
		MaxBytes:      int64(cfg.MaxUploadMB) << 20,
		PublicBaseURL: cfg.PublicBaseURL,
	})
	s.uploads.OnResult = func(result string) { s.metrics.uploads.WithLabelValues(result).Inc() }

	templates, err := NewPlayerTemplates(cfg.TemplateDir)
	if err != nil {
		return nil, err
	}
	s.templates = templates

	s.hub.OnCountChange = func(total int) { s.metrics.wsClients.Set(float64(total)) }
	if err := s.hub.Attach(ctx, notifier,
		realtime.TableAssignments, realtime.TableEvents, realtime.TableMediaFiles); err != nil {
		templates.Close()
		return nil, fmt.Errorf("attach realtime hub: %w", err)
	}
	go s.hub.Run()

	s.router = s.routes()
	return s, nil
}

func (s *Server) Handler() http.Handler { return s.router }

// Close stops the hub and releases subscriptions.
func (s *Server) Close() error {
	s.hub.Stop()
	return s.templates.Close()
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, HEAD")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Range")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range, X-VoxPro-Stale")
		w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()
	router.Use(corsMiddleware)

	// 键位分配
	router.HandleFunc("/api/assignments", s.ListAssignmentsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/assignments", s.AuthMiddleware(s.CreateAssignmentHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/assignments/{id}", s.AuthMiddleware(s.DeleteAssignmentHandler)).Methods(http.MethodDelete)

	// 变更推送
	router.HandleFunc("/api/realtime", s.RealtimeHandler)

	// 活动
	router.HandleFunc("/api/events", s.ListEventsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/events", s.AuthMiddleware(s.CreateEventHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/events/current", s.CurrentEventHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/events/current", s.AuthMiddleware(s.SetCurrentEventHandler)).Methods(http.MethodPut)
	router.HandleFunc("/api/events/current/archive", s.AuthMiddleware(s.ArchiveCurrentEventHandler)).Methods(http.MethodPost)

	// 媒体
	router.HandleFunc("/api/media", s.AuthMiddleware(s.ListMediaHandler)).Methods(http.MethodGet)
	router.PathPrefix("/media/").HandlerFunc(s.MediaHandler).Methods(http.MethodGet, http.MethodHead)

	// VoxPro widget
	router.HandleFunc("/api/voxpro/console", s.ConsoleHandler)
	router.HandleFunc("/api/voxpro/player", s.PlayerJSONHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/voxpro/upload", s.AuthMiddleware(s.UploadHandler)).Methods(http.MethodPost)
	router.HandleFunc("/player", s.PlayerPageHandler).Methods(http.MethodGet)

	router.HandleFunc("/api/auth/login", s.LoginHandler).Methods(http.MethodPost)
	router.Handle("/metrics", s.metrics.Handler())
	router.HandleFunc("/healthz", s.HealthHandler).Methods(http.MethodGet)

	// Frontend UI serving
	router.PathPrefix("/").Handler(http.FileServer(http.Dir(s.cfg.WebAppDir)))
	return router
}

// Start connects every backend named by cfg and serves until SIGINT/SIGTERM.
func Start(cfg *config.Config) error {
	ctx := context.Background()

	gdb, err := db.ConnectGormDB(cfg)
	if err != nil {
		return err
	}
	defer db.CloseGormDB()

	if err := db.AutoMigrate(gdb); err != nil {
		return err
	}

	var (
		notifier realtime.Notifier
		snapshot AssignmentCache
	)
	switch cfg.RealtimeBackend {
	case "memory":
		notifier = realtime.NewMemoryNotifier()
		logger.Info("using in-memory change notifications")
	default:
		client, err := db.ConnectRedis(cfg)
		if err != nil {
			return err
		}
		defer db.CloseRedis()
		notifier = realtime.NewRedisNotifier(client)
		snapshot = cache.NewAssignmentCache(client, time.Minute)
		logger.Info("Successfully connected to Redis")
	}
	defer notifier.Close()

	blobs, err := storage.New(ctx, cfg)
	if err != nil {
		return err
	}
	logger.Info("blob storage ready", logger.String("backend", blobs.Name()))

	srv, err := New(ctx, Deps{
		Config:   cfg,
		DB:       gdb,
		Blobs:    blobs,
		Notifier: notifier,
		Cache:    snapshot,
	})
	if err != nil {
		return err
	}
	defer srv.Close()

	// 设置服务器超时，WebSocket 和上传需要较长的写超时
	httpServer := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      srv.Handler(),
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			logger.String("addr", cfg.ServerAddr),
			logger.Any("key_slots", cfg.KeySlots),
			logger.Bool("multi_window", cfg.MultiWindow))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	case <-stop:
	}
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server stopped")
	return nil
}
