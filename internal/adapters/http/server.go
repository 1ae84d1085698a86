package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/aretw0/blobrelay/internal/logging"
	"github.com/aretw0/blobrelay/pkg/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// APIVersion is reported by GET /info.
const APIVersion = "1.0.0"

// Engine is the part of the orchestrator the HTTP trigger drives.
type Engine interface {
	StartRequest(ctx context.Context, req domain.TransferRequest) (*domain.Instance, error)
	Run(ctx context.Context, instanceID string) (*domain.Instance, error)
	Status(ctx context.Context, instanceID string) (*domain.Instance, error)
	List(ctx context.Context) ([]string, error)
	Purge(ctx context.Context, instanceID string) error
}

// Server starts transfers on request and runs them in the background.
type Server struct {
	Engine   Engine
	Version  string
	logger   *slog.Logger
	gatherer prometheus.Gatherer

	// runCtx outlives individual requests; canceling it interrupts running transfers.
	runCtx context.Context
	wg     sync.WaitGroup
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithGatherer exposes the given registry on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithVersion sets the version reported by /info.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.Version = v
	}
}

// NewServer creates a server whose background runs use runCtx.
func NewServer(runCtx context.Context, engine Engine, opts ...Option) *Server {
	s := &Server{
		Engine:  engine,
		Version: "dev",
		logger:  logging.NewNop(),
		runCtx:  runCtx,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/transfers", func(r chi.Router) {
		r.Post("/", s.StartTransfer)
		r.Get("/", s.ListTransfers)
		r.Get("/{instanceID}", s.GetTransfer)
		r.Delete("/{instanceID}", s.PurgeTransfer)
	})
	return r
}

// Wait blocks until every background run has returned.
func (s *Server) Wait() {
	s.wg.Wait()
}

// StartRequest is the body of POST /api/transfers.
type StartRequest struct {
	ObjectID   string `json:"object_id"`
	InstanceID string `json:"instance_id,omitempty"`
}

// StartResponse is returned with 202 Accepted.
type StartResponse struct {
	ID        string `json:"id"`
	StatusURL string `json:"status_url"`
}

// StepView summarises a history record without the transferred content.
type StepView struct {
	Step        domain.StepName         `json:"step"`
	Attempts    int                     `json:"attempts"`
	OK          bool                    `json:"ok"`
	Error       *domain.Failure         `json:"error,omitempty"`
	Receipt     *domain.DeliveryReceipt `json:"receipt,omitempty"`
	CompletedAt time.Time               `json:"completed_at"`
}

// InstanceView is the public representation of an instance.
type InstanceView struct {
	ID            string          `json:"id"`
	ObjectID      string          `json:"object_id"`
	RuntimeStatus domain.Status   `json:"runtime_status"`
	Phase         domain.Phase    `json:"phase"`
	Attempt       int             `json:"attempt,omitempty"`
	Output        string          `json:"output,omitempty"`
	Error         *domain.Failure `json:"error,omitempty"`
	History       []StepView      `json:"history"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// NewInstanceView converts an instance for display.
func NewInstanceView(inst *domain.Instance) InstanceView {
	view := InstanceView{
		ID:            inst.ID,
		ObjectID:      inst.ObjectID,
		RuntimeStatus: inst.Status(),
		Phase:         inst.Phase,
		Attempt:       inst.Attempt,
		Output:        inst.Output,
		Error:         inst.Error,
		History:       make([]StepView, 0, len(inst.History)),
		CreatedAt:     inst.CreatedAt,
		UpdatedAt:     inst.UpdatedAt,
	}
	for _, rec := range inst.History {
		view.History = append(view.History, StepView{
			Step:        rec.Step,
			Attempts:    rec.Attempts,
			OK:          rec.Result.OK(),
			Error:       rec.Result.Err,
			Receipt:     rec.Receipt,
			CompletedAt: rec.CompletedAt,
		})
	}
	return view
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"app":         "blobrelay",
		"version":     s.Version,
		"api_version": APIVersion,
	})
}

// StartTransfer handles POST /api/transfers.
func (s *Server) StartTransfer(w http.ResponseWriter, r *http.Request) {
	var body StartRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.InstanceID == "" {
		body.InstanceID = uuid.NewString()
	}

	inst, err := s.Engine.StartRequest(r.Context(), domain.TransferRequest{
		ObjectID:   body.ObjectID,
		InstanceID: body.InstanceID,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidObjectID), errors.Is(err, domain.ErrInvalidInstanceID):
			writeError(w, http.StatusBadRequest, err.Error())
			return
		case errors.Is(err, domain.ErrInstanceConflict):
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.logger.Error("Failed to start transfer", "object_id", body.ObjectID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to start transfer")
		return
	}

	if !inst.Phase.Terminal() {
		s.runInBackground(inst.ID)
	}

	statusURL := "/api/transfers/" + inst.ID
	w.Header().Set("Location", statusURL)
	writeJSON(w, http.StatusAccepted, StartResponse{ID: inst.ID, StatusURL: statusURL})
}

func (s *Server) runInBackground(instanceID string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.Engine.Run(s.runCtx, instanceID); err != nil {
			if domain.IsCanceled(err) {
				s.logger.Info("Transfer interrupted by shutdown", "instance_id", instanceID)
				return
			}
			s.logger.Error("Transfer run failed", "instance_id", instanceID, "err", err)
		}
	}()
}

// ListTransfers handles GET /api/transfers.
func (s *Server) ListTransfers(w http.ResponseWriter, r *http.Request) {
	ids, err := s.Engine.List(r.Context())
	if err != nil {
		s.logger.Error("Failed to list transfers", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list transfers")
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"instances": ids})
}

// GetTransfer handles GET /api/transfers/{instanceID}.
func (s *Server) GetTransfer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "instanceID")
	inst, err := s.Engine.Status(r.Context(), id)
	if err != nil {
		s.instanceError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, NewInstanceView(inst))
}

// PurgeTransfer handles DELETE /api/transfers/{instanceID}.
func (s *Server) PurgeTransfer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "instanceID")
	if err := s.Engine.Purge(r.Context(), id); err != nil {
		s.instanceError(w, id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) instanceError(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, domain.ErrInstanceNotFound) {
		writeError(w, http.StatusNotFound, "instance not found")
		return
	}
	s.logger.Error("Instance request failed", "instance_id", id, "err", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
