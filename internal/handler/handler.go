package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ndrozd/surveybot/internal/metrics"
	"github.com/ndrozd/surveybot/internal/scoring"
	"github.com/ndrozd/surveybot/internal/store"
	"github.com/ndrozd/surveybot/internal/token"
)

// Config holds handler-level settings.
type Config struct {
	// AdminKeyHash is the bcrypt hash the X-Admin-Key header is verified
	// against.
	AdminKeyHash []byte
	// PublicRPS and PublicBurst shape the per-IP rate limit on public
	// routes. A non-positive PublicRPS disables limiting.
	PublicRPS   float64
	PublicBurst int
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store        *store.Store
	svc          *scoring.Service
	signer       *token.Signer
	adminKeyHash []byte
	publicLimit  func(http.Handler) http.Handler
}

// New creates a new Handler.
func New(s *store.Store, svc *scoring.Service, signer *token.Signer, cfg Config) (*Handler, error) {
	return &Handler{
		store:        s,
		svc:          svc,
		signer:       signer,
		adminKeyHash: cfg.AdminKeyHash,
		publicLimit:  perIPRateLimit(cfg.PublicRPS, cfg.PublicBurst),
	}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/health", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/admin", func(r chi.Router) {
		r.Use(h.requireAdminKey)
		r.Post("/surveys", h.handleCreateSurvey)
		r.Get("/surveys", h.handleListSurveys)
		r.Get("/surveys/{surveyID}/detail", h.handleSurveyDetail)
		r.Delete("/surveys/{surveyID}", h.handleDeleteSurvey)
		r.Post("/surveys/{surveyID}/questions", h.handleAddQuestion)
		r.Get("/surveys/{surveyID}/responses", h.handleResponses)
		r.Get("/surveys/{surveyID}/export.csv", h.handleExportCSV)
		r.Delete("/questions/{questionID}", h.handleDeleteQuestion)
		r.Put("/questions/{questionID}/guideline", h.handleUpsertGuideline)
		r.Delete("/questions/{questionID}/guideline", h.handleDeleteGuideline)
		r.Post("/links", h.handleCreateLink)
		r.Post("/links/{token}/revoke", h.handleRevokeLink)
	})

	r.Route("/public", func(r chi.Router) {
		r.Use(h.publicLimit)
		r.Get("/surveys/{token}", h.handlePublicSurvey)
		r.Post("/respondents", h.handleCreateRespondent)
		r.Post("/answers", h.handleCreateAnswer)
		r.Put("/answers/{answerID}", h.handleUpdateAnswer)
		r.Delete("/answers/{answerID}", h.handleDeleteAnswer)
		r.Get("/respondents/{respondentID}/answers", h.handleListAnswers)
		r.Get("/respondents/{respondentID}/next", h.handleNextQuestion)
		r.Post("/submit", h.handleSubmit)
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
