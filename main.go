package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/threes-sim/engine/metrics"
	"github.com/threes-sim/engine/nbastats"
	"github.com/threes-sim/engine/simulation"
)

// playerDirectory is the roster surface the HTTP layer needs from the
// stats client
type playerDirectory interface {
	ResolvePlayer(ctx context.Context, name string) (nbastats.Player, error)
	PlayerByID(ctx context.Context, id int) (nbastats.Player, error)
	SearchPlayers(ctx context.Context, query string, limit int) ([]nbastats.Player, error)
}

// Server wires the HTTP API to the simulation engine
type Server struct {
	config     *Config
	db         *pgxpool.Pool
	cache      *nbastats.Cache
	players    playerDirectory
	engine     *simulation.Engine
	router     *mux.Router
	httpServer *http.Server
}

// NewServer builds the server and its dependencies. The database and the
// cache are both optional: without a database runs are held in memory only,
// without a cache every stats request goes upstream.
func NewServer(config *Config) (*Server, error) {
	var (
		db       *pgxpool.Pool
		engineDB simulation.DB
	)
	if config.DatabaseURL != "" {
		poolConfig, err := pgxpool.ParseConfig(config.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("parse database url: %w", err)
		}
		poolConfig.MaxConns = int32(config.Workers * 2)
		poolConfig.MinConns = 2
		poolConfig.MaxConnLifetime = time.Hour
		poolConfig.MaxConnIdleTime = 30 * time.Minute

		db, err = pgxpool.NewWithConfig(context.Background(), poolConfig)
		if err != nil {
			return nil, fmt.Errorf("create connection pool: %w", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		engineDB = db
	} else {
		log.Warn().Msg("No database configured, run history is memory-only")
	}

	var cache *nbastats.Cache
	if config.RedisAddr != "" {
		var err error
		cache, err = nbastats.NewCache(config.RedisAddr, config.RedisPassword, config.RedisDB, config.CacheTTL)
		if err != nil {
			log.Warn().Err(err).Msg("Stats cache unavailable, fetching live")
			cache = nil
		}
	}

	stats := nbastats.NewClient(cache)
	engine := simulation.NewEngine(engineDB, stats, config.Workers)
	if db != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := engine.InitSchema(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}

	s := &Server{
		config:  config,
		db:      db,
		cache:   cache,
		players: stats,
		engine:  engine,
		router:  mux.NewRouter(),
	}
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.healthHandler).Methods("GET")
	s.router.Handle("/metrics", metrics.Handler()).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/simulate", s.simulateHandler).Methods("POST")
	api.HandleFunc("/simulation/{id}/status", s.statusHandler).Methods("GET")
	api.HandleFunc("/simulation/{id}/result", s.resultHandler).Methods("GET")
	api.HandleFunc("/players/search", s.playerSearchHandler).Methods("GET")

	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.recoveryMiddleware)
}

// Start begins serving HTTP requests and blocks until shutdown
func (s *Server) Start() error {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"http://localhost:3000", "http://localhost:8080"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		MaxAge:         86400,
	})
	// Result payloads carry a full make distribution per run, so gzip pays
	// for itself quickly.
	handler := handlers.CompressHandler(c.Handler(s.router))

	s.httpServer = &http.Server{
		Addr:         s.config.Addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	log.Info().Str("addr", s.config.Addr).Int("workers", s.config.Workers).Msg("Simulation API listening")
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests and releases resources
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	s.cache.Close()
	if s.db != nil {
		s.db.Close()
	}
	return err
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", lrw.statusCode).
			Dur("duration", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Msg("Request handled")
	})
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error().
					Interface("panic", rec).
					Str("path", r.URL.Path).
					Msg("Recovered from handler panic")
				http.Error(w, "Internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}

func main() {
	config, err := LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	setupLogging(config.LogLevel)

	server, err := NewServer(config)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start server")
	}

	// Sweep finished runs out of the in-memory map once they age out
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			server.engine.CleanupOldRuns()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("Shutdown error")
		}
	}()

	if err := server.Start(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("Server error")
	}
}
