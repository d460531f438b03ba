package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/reapbenefit/cmp-backend/internal/cache"
	"github.com/reapbenefit/cmp-backend/internal/cms"
	"github.com/reapbenefit/cmp-backend/internal/dialogue"
	"github.com/reapbenefit/cmp-backend/internal/extractor"
	"github.com/reapbenefit/cmp-backend/internal/llm"
	"github.com/reapbenefit/cmp-backend/internal/processor"
	"github.com/reapbenefit/cmp-backend/internal/store"
	"github.com/reapbenefit/cmp-backend/internal/transcript"
)

// Service is the chat and extraction API the AI routes drive.
type Service interface {
	CreateAction(ctx context.Context, userID int64, title, msg string) (*processor.CreatedAction, error)
	AdvanceBasicChat(ctx context.Context, actionUUID, msg string) (dialogue.TurnResult, error)
	AdvanceDetailChat(ctx context.Context, actionUUID, msg string) (dialogue.TurnResult, error)
	AdvanceChatStream(ctx context.Context, mode transcript.Mode, actionUUID, msg string, onDelta func(llm.Delta)) (dialogue.TurnResult, error)
	ExtractMetadata(ctx context.Context, actionUUID string) (*extractor.Metadata, error)
	UpdateMetadata(ctx context.Context, actionUUID string) (*processor.UpdatedMetadata, error)
}

// Directory is the CMS account API behind login and username lookup.
type Directory interface {
	Login(ctx context.Context, email, password string) (*cms.Session, error)
	UserProfile(ctx context.Context, email string) (*cms.Profile, error)
}

type Deps struct {
	Store   store.Repository
	Service Service
	// Directory is nil when no CMS is configured.
	Directory Directory
	Cache     cache.PortfolioCache
	Logger    *slog.Logger
	// AllowedOrigins feeds the CORS middleware. Defaults to any origin.
	AllowedOrigins []string
}

type Server struct {
	router    *chi.Mux
	port      int
	store     store.Repository
	service   Service
	directory Directory
	cache     cache.PortfolioCache
	logger    *slog.Logger
}

// NewServer builds the router. When apiToken is set, /ai routes require it
// as a bearer token.
func NewServer(port int, apiToken string, d Deps) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	origins := d.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(CORS(origins))

	s := &Server{
		router:    router,
		port:      port,
		store:     d.Store,
		service:   d.Service,
		directory: d.Directory,
		cache:     d.Cache,
		logger:    d.Logger,
	}
	if s.cache == nil {
		s.cache = cache.Noop{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	router.Get("/health", s.health)
	router.Head("/health", s.health)

	router.Post("/login", s.login)
	router.Get("/portfolio/{username}", s.portfolio)
	router.Post("/communities", s.createCommunity)
	router.Put("/users/{username}", s.updateUser)
	router.Get("/users/{email}/username", s.username)

	router.Post("/actions", s.createAction)
	router.Get("/chat_history", s.chatSessions)
	router.Get("/chat_history/", s.chatSessions)
	router.Get("/chat_history/{actionUUID}", s.chatHistory)
	router.Post("/chat_messages/{actionUUID}", s.addChatMessages)

	router.Route("/ai", func(r chi.Router) {
		r.Use(BearerAuthMiddleware(apiToken))
		r.Post("/chat/basic", s.chat(transcript.ModeBasic))
		r.Post("/chat/detail", s.chat(transcript.ModeDetail))
		r.Post("/extract/{actionUUID}", s.extract)
		r.Put("/extract/{actionUUID}", s.updateExtract)
	})

	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Streamed chat turns can outlive any fixed write deadline.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("API server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
