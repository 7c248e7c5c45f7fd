package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/classchat/classchat/internal/config"
	"github.com/classchat/classchat/internal/server"
	"github.com/classchat/classchat/internal/store"
	"github.com/gorilla/handlers"
	"github.com/teris-io/shortid"
)

type ChatApp struct {
	log            *log.Logger
	store          store.MessageRepository
	mux            *http.Server
	cs             *server.ChatServer
	allowedOrigins []string
	defaultRoom    string
	sid            *shortid.Shortid
}

func NewChatApp(mux *http.ServeMux, logger *log.Logger, cs *server.ChatServer, repo store.MessageRepository, cfg *config.Config) (*ChatApp, error) {
	sid, err := shortid.New(1, shortid.DefaultABC, 2342)
	if err != nil {
		return nil, fmt.Errorf("init shortid: %w", err)
	}

	s := &ChatApp{
		log:            logger,
		store:          repo,
		cs:             cs,
		allowedOrigins: cfg.AllowedOrigins,
		defaultRoom:    cfg.DefaultRoom,
		sid:            sid,
	}

	mux.HandleFunc("GET /ws", s.serveWs)
	mux.HandleFunc("GET /healthz", s.healthz)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s, nil
}

func (s *ChatApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *ChatApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
