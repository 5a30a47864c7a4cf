package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/handlers"
	"github.com/teris-io/shortid"

	"github.com/coursehub/classchat/internal/config"
	"github.com/coursehub/classchat/internal/database"
	"github.com/coursehub/classchat/internal/server"
	"github.com/coursehub/classchat/internal/stats"
)

type ClassChatApp struct {
	log            *log.Logger
	db             database.ClassChatRepository
	mux            *http.Server
	cs             *server.ChatServer
	stats          stats.StatsProvider
	validate       *validator.Validate
	sid            *shortid.Shortid
	signingKey     []byte
	allowedOrigins []string
}

func NewClassChatApp(mux *http.ServeMux, logger *log.Logger, cs *server.ChatServer,
	db database.ClassChatRepository, st stats.StatsProvider, cfg *config.Config) (*ClassChatApp, error) {

	sid, err := shortid.New(1, shortid.DefaultABC, 2342)
	if err != nil {
		return nil, fmt.Errorf("shortid: %w", err)
	}

	s := &ClassChatApp{
		log:            logger,
		db:             db,
		cs:             cs,
		stats:          st,
		validate:       validator.New(validator.WithRequiredStructEnabled()),
		sid:            sid,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("GET /api/health", s.healthCheck)
	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("GET /api/auth/session", s.authMiddleware(s.session))
	mux.Handle("GET /api/auth/logout", s.authMiddleware(s.logout))
	mux.Handle("/api/account", s.authMiddleware(s.account))
	mux.Handle("POST /api/courses", s.authMiddleware(s.createCourse))
	mux.Handle("POST /api/courses/enroll", s.authMiddleware(s.enrollCourse))
	mux.Handle("DELETE /api/courses/enroll", s.authMiddleware(s.unenrollCourse))
	mux.Handle("POST /api/rooms", s.authMiddleware(s.createRoom))
	mux.Handle("GET /api/rooms", s.authMiddleware(s.getRoom))
	mux.Handle("DELETE /api/rooms", s.authMiddleware(s.deleteRoom))
	mux.Handle("POST /api/rooms/join", s.authMiddleware(s.joinRoom))
	mux.Handle("GET /api/rooms/list", s.authMiddleware(s.listRooms))
	mux.Handle("POST /api/rooms/seen", s.authMiddleware(s.markRoomSeen))
	mux.Handle("GET /api/messages", s.authMiddleware(s.getMessages))
	mux.Handle("/api/settings", s.authMiddleware(s.settings))
	mux.Handle("GET /ws", s.authMiddleware(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
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

func (s *ClassChatApp) generateShortId() (string, error) {
	return s.sid.Generate()
}

func (s *ClassChatApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *ClassChatApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
