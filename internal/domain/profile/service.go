package profile

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/rxcheck/rxcheck/internal/platform/apperr"
)

// Service provides business logic for profiles, reports and call logs.
type Service struct {
	repo   Repository
	logger zerolog.Logger
	now    func() time.Time
}

// NewService creates a new profile service.
func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger.With().Str("component", "profile").Logger(),
		now:    time.Now,
	}
}

func requireUser(userID string) error {
	if userID == "" {
		return apperr.Validation("User ID is required.")
	}
	return nil
}

// GetProfile returns the stored profile or a not-found error.
func (s *Service) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	p, err := s.repo.GetProfile(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("User profile not found.")
	}
	if err != nil {
		return nil, apperr.Persistence("Failed to load profile.", err)
	}
	return p, nil
}

// FindProfile is GetProfile without the not-found error: found is false
// when the user has never saved a profile.
func (s *Service) FindProfile(ctx context.Context, userID string) (p *Profile, found bool, err error) {
	p, err = s.GetProfile(ctx, userID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return p, true, nil
}

// SaveProfile merge-saves u. A date of birth, when given, overrides any age
// in the same update.
func (s *Service) SaveProfile(ctx context.Context, userID string, u *ProfileUpdate) (*Profile, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if err := s.validate(u); err != nil {
		return nil, err
	}
	if u.DateOfBirth != nil {
		if age, ok := AgeFromDOB(*u.DateOfBirth, s.now()); ok {
			u.Age = &age
		}
	}
	if err := s.repo.MergeProfile(ctx, userID, u); err != nil {
		return nil, apperr.Persistence("Failed to save profile.", err)
	}
	s.logger.Info().Str("user_id", userID).Int("fields", len(u.Fields())).Msg("profile saved")
	return s.GetProfile(ctx, userID)
}

func (s *Service) validate(u *ProfileUpdate) error {
	if u.DateOfBirth != nil && *u.DateOfBirth != "" {
		if _, ok := AgeFromDOB(*u.DateOfBirth, s.now()); !ok {
			return apperr.Validation("dateOfBirth must be a past date in YYYY-MM-DD format.")
		}
	}
	if u.Age != nil && *u.Age < 0 {
		return apperr.Validation("age must not be negative.")
	}
	if u.Weight != nil && *u.Weight < 0 {
		return apperr.Validation("weight must not be negative.")
	}
	if u.Height != nil && *u.Height < 0 {
		return apperr.Validation("height must not be negative.")
	}
	return nil
}

// CreateReport stores a new analysis report for r.UserID.
func (s *Service) CreateReport(ctx context.Context, r *Report) error {
	if err := requireUser(r.UserID); err != nil {
		return err
	}
	if err := s.repo.CreateReport(ctx, r); err != nil {
		return apperr.Persistence("Failed to save report.", err)
	}
	return nil
}

// ListReports returns one page of reports, newest first, plus the total.
func (s *Service) ListReports(ctx context.Context, userID string, limit, offset int) ([]*Report, int, error) {
	if err := requireUser(userID); err != nil {
		return nil, 0, err
	}
	items, total, err := s.repo.ListReports(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, apperr.Persistence("Failed to load reports.", err)
	}
	return items, total, nil
}

// ReportHistory returns every stored report for the user, newest first.
func (s *Service) ReportHistory(ctx context.Context, userID string) ([]*Report, error) {
	items, _, err := s.ListReports(ctx, userID, 0, 0)
	return items, err
}

// SaveCallLog creates or overwrites the log for l.CallID.
func (s *Service) SaveCallLog(ctx context.Context, l *CallLog) error {
	if err := requireUser(l.UserID); err != nil {
		return err
	}
	if l.CallID == "" {
		return apperr.Validation("call id is required")
	}
	if err := s.repo.UpsertCallLog(ctx, l); err != nil {
		return apperr.Persistence("Failed to save call log.", err)
	}
	return nil
}

// ListCallLogs returns one page of the user's call logs, newest first, and
// the total count.
func (s *Service) ListCallLogs(ctx context.Context, userID string, limit, offset int) ([]*CallLog, int, error) {
	if err := requireUser(userID); err != nil {
		return nil, 0, err
	}
	items, total, err := s.repo.ListCallLogs(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, apperr.Persistence("Failed to load call logs.", err)
	}
	return items, total, nil
}
