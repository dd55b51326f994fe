package analysis

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/rxcheck/rxcheck/internal/domain/profile"
	"github.com/rxcheck/rxcheck/internal/platform/apperr"
	"github.com/rxcheck/rxcheck/internal/platform/auth"
	"github.com/rxcheck/rxcheck/internal/platform/voicecall"
	"github.com/rxcheck/rxcheck/internal/platform/webhook"
)

const (
	analysisFailedMessage = "Failed to generate analysis."
	summaryOverloaded     = "Gemini model is overloaded, could not generate summary."
)

// HandlerConfig carries the deployment settings the handlers report or
// enforce. WebhookSecret enables signature checks on the call webhook when
// set.
type HandlerConfig struct {
	WebhookSecret   string
	RetellAPIKeySet bool
	RetellAgentSet  bool
}

// Handler exposes the analysis endpoints.
type Handler struct {
	svc    *Service
	cfg    HandlerConfig
	logger zerolog.Logger
}

// NewHandler creates an analysis handler backed by svc.
func NewHandler(svc *Service, cfg HandlerConfig, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, cfg: cfg, logger: logger.With().Str("component", "analysis-handler").Logger()}
}

// RegisterRoutes registers the analysis routes.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/analyze", h.Analyze)
	g.POST("/symptom-analyzer", h.AnalyzeSymptoms)
	g.POST("/retell-webhook", h.RetellWebhook, webhook.RequireSignature(h.cfg.WebhookSecret, h.logger))
	g.GET("/debug-env", h.DebugEnv)
}

// resolveUser picks the user id from the body, falling back to the verified
// token uid, and checks the two agree.
func resolveUser(c echo.Context, bodyUserID string) (string, error) {
	userID := bodyUserID
	if userID == "" {
		userID = auth.UserIDFromContext(c.Request().Context())
	}
	if err := auth.AuthorizeUser(c, userID); err != nil {
		return "", err
	}
	return userID, nil
}

type analyzeRequest struct {
	UserID       string           `json:"userId"`
	UserProfile  *profile.Profile `json:"userProfile"`
	Prescription string           `json:"prescription"`
	LabReport    string           `json:"labReport"`
}

// Analyze handles POST /analyze.
func (h *Handler) Analyze(c echo.Context) error {
	var req analyzeRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("Invalid request body.")
	}
	userID, err := resolveUser(c, req.UserID)
	if err != nil {
		return err
	}

	report, err := h.svc.AnalyzePrescription(c.Request().Context(), PrescriptionRequest{
		UserID:       userID,
		Profile:      req.UserProfile,
		Prescription: req.Prescription,
		LabReport:    req.LabReport,
	})
	if err != nil {
		switch apperr.KindOf(err) {
		case apperr.KindValidation, apperr.KindAuth, apperr.KindConfiguration:
			return err
		}
		h.logger.Error().Err(err).Str("user_id", userID).Msg("analysis failed")
		return echo.NewHTTPError(http.StatusInternalServerError, analysisFailedMessage)
	}
	return c.JSON(http.StatusOK, map[string]string{"report": report})
}

type symptomRequest struct {
	UserID   string `json:"userId"`
	Symptoms string `json:"symptoms"`
}

// AnalyzeSymptoms handles POST /symptom-analyzer.
func (h *Handler) AnalyzeSymptoms(c echo.Context) error {
	var req symptomRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("Invalid request body.")
	}
	userID, err := resolveUser(c, req.UserID)
	if err != nil {
		return err
	}

	res, err := h.svc.AnalyzeSymptoms(c.Request().Context(), userID, req.Symptoms)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// RetellWebhook handles POST /retell-webhook.
func (h *Handler) RetellWebhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"status": "error", "message": "Unable to read request body"})
	}
	ev, err := voicecall.ParseCallEvent(body)
	if err != nil {
		h.logger.Warn().Err(err).Msg("malformed webhook payload")
		return c.JSON(http.StatusBadRequest, map[string]string{"status": "error", "message": "Invalid JSON payload"})
	}

	err = h.svc.HandleCallEnded(c.Request().Context(), ev)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, map[string]string{"status": "success"})
	case errors.Is(err, apperr.ErrValidation):
		return c.JSON(http.StatusBadRequest, map[string]string{"status": "error", "message": apperr.From(err).Msg})
	case apperr.From(err).HTTPStatus() == http.StatusServiceUnavailable:
		h.logger.Error().Err(err).Str("call_id", ev.CallID).Msg("webhook summary failed, model overloaded")
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": summaryOverloaded})
	default:
		h.logger.Error().Err(err).Str("call_id", ev.CallID).Msg("error handling retell webhook")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}
}

// DebugEnv handles GET /debug-env. It reports only whether the voice-call
// secrets are present, never their values.
func (h *Handler) DebugEnv(c echo.Context) error {
	h.logger.Debug().
		Bool("retell_api_key", h.cfg.RetellAPIKeySet).
		Bool("retell_agent_id", h.cfg.RetellAgentSet).
		Msg("debug-env requested")
	return c.JSON(http.StatusOK, map[string]bool{
		"retellApiKeyExists":  h.cfg.RetellAPIKeySet,
		"retellAgentIdExists": h.cfg.RetellAgentSet,
	})
}
