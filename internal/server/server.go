package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/acostock/stocksuite/internal/utils"
	"github.com/acostock/stocksuite/pkg/batch"
	"github.com/acostock/stocksuite/pkg/monday"
	"github.com/acostock/stocksuite/pkg/storage"
)

const Version = "v1.0"

// Processor runs batches and the webhook side jobs.
type Processor interface {
	Process(ctx context.Context, kind batch.Kind, tr batch.Trigger) (*batch.Result, error)
	KindOf(boardID int64) (batch.Kind, bool)
	AutoLink(ctx context.Context, kind batch.Kind, itemID int64) (int64, error)
	RemoveSentinel(ctx context.Context, kind batch.Kind, itemID int64) error
}

// SetupAPI answers the setup wizard's lookups.
type SetupAPI interface {
	Me(ctx context.Context) (*monday.User, error)
	Boards(ctx context.Context, search string) ([]monday.Board, error)
	Groups(ctx context.Context, boardID int64) ([]monday.Group, error)
	Columns(ctx context.Context, boardID int64) ([]monday.Column, error)
}

// RunStore is the run history the API reads.
type RunStore interface {
	ListRecentRuns(ctx context.Context, limit int) ([]storage.Run, error)
	GetRun(ctx context.Context, id string) (*storage.Run, error)
	GetStats(ctx context.Context) ([]storage.KindStats, error)
	ExportRuns(ctx context.Context, w io.Writer, limit int) error
}

// LockFunc serializes runs of one batch kind. It returns the unlock func.
type LockFunc func(ctx context.Context, kind batch.Kind) (func(), error)

type Server struct {
	Batches  Processor
	API      SetupAPI
	DB       RunStore // optional; run endpoints answer 503 without it
	Lock     LockFunc // optional
	Username string
	Password string
}

func New(batches Processor, api SetupAPI, db RunStore, user, pass string) *Server {
	return &Server{
		Batches:  batches,
		API:      api,
		DB:       db,
		Username: user,
		Password: pass,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	// monday cannot send credentials with webhook deliveries.
	mux.HandleFunc("POST /webhook", s.handleWebhook)

	// API Group
	mux.HandleFunc("POST /api/process", s.basicAuth(s.handleProcess(batch.KindEntry)))
	mux.HandleFunc("POST /api/process/exit", s.basicAuth(s.handleProcess(batch.KindExit)))
	mux.HandleFunc("GET /api/runs", s.basicAuth(s.handleRuns))
	mux.HandleFunc("GET /api/runs/export", s.basicAuth(s.handleExportRuns))
	mux.HandleFunc("GET /api/runs/{id}", s.basicAuth(s.handleRun))
	mux.HandleFunc("GET /api/stats", s.basicAuth(s.handleStats))
	mux.HandleFunc("GET /api/setup/me", s.basicAuth(s.handleSetupMe))
	mux.HandleFunc("GET /api/setup/boards", s.basicAuth(s.handleSetupBoards))
	mux.HandleFunc("GET /api/setup/groups", s.basicAuth(s.handleSetupGroups))
	mux.HandleFunc("GET /api/setup/columns", s.basicAuth(s.handleSetupColumns))

	return mux
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		utils.Log.Infof("Starting server on %s", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		utils.Log.Info("Shutting down server")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) basicAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Username == "" && s.Password == "" {
			next(w, r)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != s.Username || pass != s.Password {
			w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// run processes a batch under the kind's run lock.
func (s *Server) run(ctx context.Context, kind batch.Kind, tr batch.Trigger) (*batch.Result, error) {
	if s.Lock != nil {
		unlock, err := s.Lock(ctx, kind)
		if err != nil {
			return nil, err
		}
		defer unlock()
	}
	return s.Batches.Process(ctx, kind, tr)
}
