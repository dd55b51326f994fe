package profile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/rxcheck/rxcheck/internal/platform/apperr"
)

func newTestService() *Service {
	svc := NewService(newMemoryRepo(tickingClock()), zerolog.Nop())
	svc.now = func() time.Time { return time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC) }
	return svc
}

func strPtr(s string) *string { return &s }

func TestService_SaveProfile_MergeRoundTrip(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	weight := 70.0
	consent := true
	_, err := svc.SaveProfile(ctx, "u1", &ProfileUpdate{
		Weight:      &weight,
		Allergies:   strPtr("penicillin"),
		PhoneNumber: strPtr("+15550100"),
		CallConsent: &consent,
	})
	if err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}

	p, err := svc.SaveProfile(ctx, "u1", &ProfileUpdate{Conditions: strPtr("hypertension")})
	if err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}
	if p.Conditions != "hypertension" {
		t.Errorf("expected conditions updated, got %q", p.Conditions)
	}
	if p.Weight != 70 || p.Allergies != "penicillin" || p.PhoneNumber != "+15550100" || !p.CallConsent {
		t.Errorf("expected untouched fields preserved, got %+v", p)
	}
}

func TestService_SaveProfile_DerivesAge(t *testing.T) {
	svc := newTestService()
	age := 99
	p, err := svc.SaveProfile(context.Background(), "u1", &ProfileUpdate{
		DateOfBirth: strPtr("1980-06-16"),
		Age:         &age,
	})
	if err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}
	if p.Age != 45 {
		t.Errorf("expected age 45 derived from date of birth, got %d", p.Age)
	}
}

func TestService_SaveProfile_Validation(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	neg := -1.0

	cases := []*ProfileUpdate{
		{DateOfBirth: strPtr("not-a-date")},
		{DateOfBirth: strPtr("2099-01-01")},
		{Weight: &neg},
		{Height: &neg},
	}
	for _, u := range cases {
		if _, err := svc.SaveProfile(ctx, "u1", u); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("expected validation error for %+v, got %v", u.Fields(), err)
		}
	}
	if _, err := svc.SaveProfile(ctx, "", &ProfileUpdate{}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error for empty user id, got %v", err)
	}
}

func TestService_GetProfile_NotFound(t *testing.T) {
	svc := newTestService()
	_, err := svc.GetProfile(context.Background(), "ghost")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
	if apperr.From(err).Msg != "User profile not found." {
		t.Errorf("unexpected message: %q", apperr.From(err).Msg)
	}

	p, found, err := svc.FindProfile(context.Background(), "ghost")
	if err != nil || found || p != nil {
		t.Errorf("expected (nil, false, nil), got (%v, %v, %v)", p, found, err)
	}
}

type failingRepo struct{ Repository }

func (failingRepo) CreateReport(context.Context, *Report) error { return errors.New("write failed") }

func TestService_CreateReport_PersistenceError(t *testing.T) {
	svc := NewService(failingRepo{Repository: NewMemoryRepo()}, zerolog.Nop())
	err := svc.CreateReport(context.Background(), &Report{UserID: "u1", Analysis: "x"})
	if !errors.Is(err, apperr.ErrPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
}

func TestService_ReportHistory(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	svc.CreateReport(ctx, &Report{UserID: "u1", Analysis: "a"})
	svc.CreateReport(ctx, &Report{UserID: "u1", Analysis: "b"})

	items, err := svc.ReportHistory(ctx, "u1")
	if err != nil {
		t.Fatalf("ReportHistory: %v", err)
	}
	if len(items) != 2 || items[0].Analysis != "b" {
		t.Errorf("expected full history newest first, got %+v", items)
	}
}

func TestService_SaveCallLog_RequiresCallID(t *testing.T) {
	svc := newTestService()
	err := svc.SaveCallLog(context.Background(), &CallLog{UserID: "u1"})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
