package profile

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rxcheck/rxcheck/internal/platform/db"
)

type pgRepo struct{ pool *pgxpool.Pool }

// NewPGRepo returns a Repository backed by the tables in migrations/.
func NewPGRepo(pool *pgxpool.Pool) Repository {
	return &pgRepo{pool: pool}
}

const profileCols = `user_id, date_of_birth, age, weight, height, conditions,
	allergies, family_history, phone_number, call_consent, last_updated`

func (r *pgRepo) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	var p Profile
	err := r.pool.QueryRow(ctx, `SELECT `+profileCols+` FROM profiles WHERE user_id = $1`, userID).
		Scan(&p.UserID, &p.DateOfBirth, &p.Age, &p.Weight, &p.Height, &p.Conditions,
			&p.Allergies, &p.FamilyHistory, &p.PhoneNumber, &p.CallConsent, &p.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *pgRepo) MergeProfile(ctx context.Context, userID string, u *ProfileUpdate) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO profiles (`+profileCols+`)
		VALUES ($1, COALESCE($2::text, ''), COALESCE($3::int, 0), COALESCE($4::float8, 0),
			COALESCE($5::float8, 0), COALESCE($6::text, ''), COALESCE($7::text, ''),
			COALESCE($8::text, ''), COALESCE($9::text, ''), COALESCE($10::bool, FALSE), NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			date_of_birth  = COALESCE($2::text, profiles.date_of_birth),
			age            = COALESCE($3::int, profiles.age),
			weight         = COALESCE($4::float8, profiles.weight),
			height         = COALESCE($5::float8, profiles.height),
			conditions     = COALESCE($6::text, profiles.conditions),
			allergies      = COALESCE($7::text, profiles.allergies),
			family_history = COALESCE($8::text, profiles.family_history),
			phone_number   = COALESCE($9::text, profiles.phone_number),
			call_consent   = COALESCE($10::bool, profiles.call_consent),
			last_updated   = NOW()`,
		userID, u.DateOfBirth, u.Age, u.Weight, u.Height, u.Conditions,
		u.Allergies, u.FamilyHistory, u.PhoneNumber, u.CallConsent)
	return err
}

func (r *pgRepo) CreateReport(ctx context.Context, rep *Report) error {
	id := uuid.New()
	err := r.pool.QueryRow(ctx, `
		INSERT INTO reports (id, user_id, prescription, lab_report, analysis)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		id, rep.UserID, rep.Prescription, rep.LabReport, rep.Analysis).Scan(&rep.CreatedAt)
	if err != nil {
		return err
	}
	rep.ID = id.String()
	return nil
}

func (r *pgRepo) ListReports(ctx context.Context, userID string, limit, offset int) ([]*Report, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM reports WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, prescription, lab_report, analysis, created_at
		FROM reports WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, userID, lim, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Report
	for rows.Next() {
		var rep Report
		var id uuid.UUID
		if err := rows.Scan(&id, &rep.UserID, &rep.Prescription, &rep.LabReport, &rep.Analysis, &rep.CreatedAt); err != nil {
			return nil, 0, err
		}
		rep.ID = id.String()
		items = append(items, &rep)
	}
	return items, total, rows.Err()
}

func (r *pgRepo) PruneReports(ctx context.Context, userID string, keep int) (int, error) {
	var deleted int
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			DELETE FROM reports WHERE id IN (
				SELECT id FROM reports WHERE user_id = $1
				ORDER BY created_at DESC, id DESC
				OFFSET $2
				FOR UPDATE
			)`, userID, keep)
		if err != nil {
			return err
		}
		deleted = int(tag.RowsAffected())
		return nil
	})
	return deleted, err
}

func (r *pgRepo) UpsertCallLog(ctx context.Context, l *CallLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO call_logs (user_id, call_id, transcript, summary, call_end_time, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, call_id) DO UPDATE SET
			transcript = EXCLUDED.transcript,
			summary = EXCLUDED.summary,
			call_end_time = EXCLUDED.call_end_time,
			duration_ms = EXCLUDED.duration_ms`,
		l.UserID, l.CallID, l.Transcript, l.Summary, l.CallEndTime, l.DurationMs)
	return err
}

func (r *pgRepo) ListCallLogs(ctx context.Context, userID string, limit, offset int) ([]*CallLog, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM call_logs WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	rows, err := r.pool.Query(ctx, `
		SELECT user_id, call_id, transcript, summary, call_end_time, duration_ms
		FROM call_logs WHERE user_id = $1
		ORDER BY call_end_time DESC NULLS LAST, call_id
		LIMIT $2 OFFSET $3`, userID, lim, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*CallLog
	for rows.Next() {
		var l CallLog
		var end *time.Time
		if err := rows.Scan(&l.UserID, &l.CallID, &l.Transcript, &l.Summary, &end, &l.DurationMs); err != nil {
			return nil, 0, err
		}
		l.CallEndTime = end
		items = append(items, &l)
	}
	return items, total, rows.Err()
}

func (r *pgRepo) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT user_id FROM reports ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *pgRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
