package profile

import (
	"context"
	"errors"
)

// ErrNotFound is returned by repositories when a profile does not exist.
var ErrNotFound = errors.New("profile not found")

// Repository persists profiles with their reports and call logs.
type Repository interface {
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	// MergeProfile creates the profile if missing and otherwise overwrites
	// only the fields set in u. lastUpdated is always refreshed.
	MergeProfile(ctx context.Context, userID string, u *ProfileUpdate) error

	// CreateReport stores r with a server-assigned id and createdAt.
	CreateReport(ctx context.Context, r *Report) error
	// ListReports returns reports newest first. limit <= 0 means all.
	ListReports(ctx context.Context, userID string, limit, offset int) ([]*Report, int, error)
	// PruneReports deletes every report beyond the keep newest in one atomic
	// step and returns the number deleted.
	PruneReports(ctx context.Context, userID string, keep int) (int, error)

	// UpsertCallLog creates or overwrites the log keyed by l.CallID.
	UpsertCallLog(ctx context.Context, l *CallLog) error
	ListCallLogs(ctx context.Context, userID string, limit, offset int) ([]*CallLog, int, error)

	// ListUserIDs returns every user id that owns at least one report.
	ListUserIDs(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
}
