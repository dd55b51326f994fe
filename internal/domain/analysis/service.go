package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rxcheck/rxcheck/internal/domain/profile"
	"github.com/rxcheck/rxcheck/internal/platform/apperr"
	"github.com/rxcheck/rxcheck/internal/platform/voicecall"
)

const (
	agentNotConfiguredMessage = "Server Error: RETELL_AGENT_ID is not configured."
	requiredInputMessage      = "User ID and symptoms are required."
	missingCallFieldsMessage  = "Missing transcript or call_id"
)

// Generator produces free text from a prompt. *llm.Gemini satisfies it.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// CallCreator allocates a voice-call session. *voicecall.RetellClient
// satisfies it.
type CallCreator interface {
	CreateWebCall(ctx context.Context, agentID, userID string) (json.RawMessage, error)
}

// ProfileStore is the part of the profile service the orchestrator uses.
// *profile.Service satisfies it.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*profile.Profile, error)
	FindProfile(ctx context.Context, userID string) (*profile.Profile, bool, error)
	ReportHistory(ctx context.Context, userID string) ([]*profile.Report, error)
	CreateReport(ctx context.Context, r *profile.Report) error
	SaveCallLog(ctx context.Context, l *profile.CallLog) error
}

// ReportNotifier is told about every new report. *retention.Trigger
// satisfies it.
type ReportNotifier interface {
	Notify(userID string) bool
}

// Config holds the orchestration settings. AgentID is the voice agent used
// for escalation calls.
type Config struct {
	AgentID string
	// EscalationGuard suppresses repeat calls for a user within the window.
	// Zero disables the guard.
	EscalationGuard time.Duration
}

// Service orchestrates profile reads, model calls and call escalation.
type Service struct {
	profiles ProfileStore
	model    Generator
	calls    CallCreator
	notifier ReportNotifier
	agentID  string
	guard    *escalationGuard
	logger   zerolog.Logger
	now      func() time.Time
}

// NewService wires the orchestrator. notifier may be nil.
func NewService(profiles ProfileStore, model Generator, calls CallCreator, notifier ReportNotifier, cfg Config, logger zerolog.Logger) *Service {
	return &Service{
		profiles: profiles,
		model:    model,
		calls:    calls,
		notifier: notifier,
		agentID:  cfg.AgentID,
		guard:    newEscalationGuard(cfg.EscalationGuard),
		logger:   logger.With().Str("component", "analysis").Logger(),
		now:      time.Now,
	}
}

// PrescriptionRequest is the input of AnalyzePrescription. Profile, when
// set, is used instead of the stored profile.
type PrescriptionRequest struct {
	UserID       string
	Profile      *profile.Profile
	Prescription string
	LabReport    string
}

// AnalyzePrescription generates a report for a prescription and lab result,
// stores it and returns its text.
func (s *Service) AnalyzePrescription(ctx context.Context, req PrescriptionRequest) (string, error) {
	if req.UserID == "" {
		return "", apperr.Validation("User ID is required.")
	}

	p := req.Profile
	if p == nil {
		stored, _, err := s.profiles.FindProfile(ctx, req.UserID)
		if err != nil {
			return "", err
		}
		p = stored
	}

	text, err := s.model.Generate(ctx, BuildPrescriptionPrompt(p, req.Prescription, req.LabReport))
	if err != nil {
		return "", err
	}

	report := &profile.Report{
		UserID:       req.UserID,
		Prescription: req.Prescription,
		LabReport:    req.LabReport,
		Analysis:     text,
	}
	if err := s.profiles.CreateReport(ctx, report); err != nil {
		return "", err
	}
	if s.notifier != nil {
		s.notifier.Notify(req.UserID)
	}

	s.logger.Info().
		Str("user_id", req.UserID).
		Str("report_id", report.ID).
		Str("severity", ClassifySeverity(text).String()).
		Msg("prescription analyzed")
	return text, nil
}

// SymptomResult is the outcome of AnalyzeSymptoms. CallData is the voice
// service response, passed through unmodified. Error describes a call that
// could not be placed; the analysis is still valid.
type SymptomResult struct {
	Analysis string          `json:"analysis"`
	CallData json.RawMessage `json:"callData"`
	Error    *string         `json:"error"`
	Severity Severity        `json:"-"`
}

// AnalyzeSymptoms generates a preliminary analysis from the user's profile,
// symptoms and report history, and requests a voice call when the answer is
// flagged and the user consented.
func (s *Service) AnalyzeSymptoms(ctx context.Context, userID, symptoms string) (*SymptomResult, error) {
	if userID == "" {
		return nil, apperr.Auth(requiredInputMessage)
	}
	if strings.TrimSpace(symptoms) == "" {
		return nil, apperr.Validation(requiredInputMessage)
	}

	p, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	history, err := s.profiles.ReportHistory(ctx, userID)
	if err != nil {
		return nil, err
	}

	text, err := s.model.Generate(ctx, BuildSymptomPrompt(p, symptoms, history))
	if err != nil {
		return nil, err
	}

	res := &SymptomResult{Analysis: text, Severity: ClassifySeverity(text)}
	log := s.logger.With().Str("user_id", userID).Str("severity", res.Severity.String()).Logger()

	if !p.CallConsent || !res.Severity.Escalates() {
		log.Info().Bool("call_consent", p.CallConsent).Msg("symptoms analyzed, no escalation")
		return res, nil
	}

	if s.agentID == "" {
		log.Error().Msg(agentNotConfiguredMessage)
		return nil, apperr.Configuration(agentNotConfiguredMessage)
	}

	if !s.guard.acquire(userID, s.now()) {
		msg := fmt.Sprintf("A voice call was already requested for this user in the last %s.", s.guard.window)
		log.Warn().Msg("escalation suppressed by guard")
		res.Error = &msg
		return res, nil
	}

	callData, err := s.calls.CreateWebCall(ctx, s.agentID, userID)
	if err != nil {
		s.guard.release(userID)
		msg := callErrorMessage(err)
		log.Warn().Err(err).Msg("escalation call failed, returning analysis only")
		res.Error = &msg
		return res, nil
	}

	log.Info().Msg("symptoms analyzed, voice call created")
	res.CallData = callData
	return res, nil
}

func callErrorMessage(err error) string {
	ae := apperr.From(err)
	if ae.Kind == apperr.KindInternal {
		return err.Error()
	}
	return ae.Msg
}

// HandleCallEnded summarizes a finished call and stores the call log. Events
// other than call_ended are ignored.
func (s *Service) HandleCallEnded(ctx context.Context, ev voicecall.CallEvent) error {
	if ev.Event != voicecall.EventCallEnded {
		s.logger.Debug().Str("event", ev.Event).Msg("ignoring voice call event")
		return nil
	}
	if ev.Transcript == "" || ev.CallID == "" {
		s.logger.Warn().
			Str("call_id", ev.CallID).
			Bool("has_transcript", ev.Transcript != "").
			Msg("call_ended event missing transcript or call id")
		return apperr.Validation(missingCallFieldsMessage)
	}

	summary, err := s.model.Generate(ctx, BuildSummaryPrompt(ev.Transcript))
	if err != nil {
		return err
	}

	if ev.UserID == "" {
		s.logger.Warn().Str("call_id", ev.CallID).Msg("Post-call analysis not saved: No user_id was found in webhook metadata.")
		return nil
	}

	entry := &profile.CallLog{
		UserID:     ev.UserID,
		CallID:     ev.CallID,
		Transcript: ev.Transcript,
		Summary:    summary,
		DurationMs: ev.DurationMs,
	}
	if end := ev.EndTime(); !end.IsZero() {
		entry.CallEndTime = &end
	}
	if err := s.profiles.SaveCallLog(ctx, entry); err != nil {
		return err
	}

	s.logger.Info().Str("user_id", ev.UserID).Str("call_id", ev.CallID).Msg("post-call analysis saved")
	return nil
}
