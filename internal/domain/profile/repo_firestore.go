package profile

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	profilesCollection = "profiles"
	reportsCollection  = "reports"
	callLogsCollection = "call_logs"
)

type firestoreRepo struct{ client *firestore.Client }

// NewFirestoreRepo returns a Repository storing profiles at profiles/{uid}
// with reports and call_logs sub-collections.
func NewFirestoreRepo(client *firestore.Client) Repository {
	return &firestoreRepo{client: client}
}

func (r *firestoreRepo) profileDoc(userID string) *firestore.DocumentRef {
	return r.client.Collection(profilesCollection).Doc(userID)
}

func (r *firestoreRepo) reports(userID string) *firestore.CollectionRef {
	return r.profileDoc(userID).Collection(reportsCollection)
}

func (r *firestoreRepo) callLogs(userID string) *firestore.CollectionRef {
	return r.profileDoc(userID).Collection(callLogsCollection)
}

func (r *firestoreRepo) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	snap, err := r.profileDoc(userID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var p Profile
	if err := snap.DataTo(&p); err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", userID, err)
	}
	p.UserID = userID
	return &p, nil
}

func (r *firestoreRepo) MergeProfile(ctx context.Context, userID string, u *ProfileUpdate) error {
	fields := u.Fields()
	fields["lastUpdated"] = firestore.ServerTimestamp
	_, err := r.profileDoc(userID).Set(ctx, fields, firestore.MergeAll)
	return err
}

func (r *firestoreRepo) CreateReport(ctx context.Context, rep *Report) error {
	ref := r.reports(rep.UserID).NewDoc()
	wr, err := ref.Set(ctx, map[string]interface{}{
		"prescription": rep.Prescription,
		"labReport":    rep.LabReport,
		"report":       rep.Analysis,
		"createdAt":    firestore.ServerTimestamp,
	})
	if err != nil {
		return err
	}
	rep.ID = ref.ID
	rep.CreatedAt = wr.UpdateTime
	return nil
}

func (r *firestoreRepo) newestFirst(userID string) firestore.Query {
	return r.reports(userID).OrderBy("createdAt", firestore.Desc)
}

func (r *firestoreRepo) ListReports(ctx context.Context, userID string, limit, offset int) ([]*Report, int, error) {
	refs, err := r.reports(userID).Select().Documents(ctx).GetAll()
	if err != nil {
		return nil, 0, err
	}
	total := len(refs)

	q := r.newestFirst(userID).Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	snaps, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, 0, err
	}
	items := make([]*Report, 0, len(snaps))
	for _, s := range snaps {
		var rep Report
		if err := s.DataTo(&rep); err != nil {
			return nil, 0, fmt.Errorf("decode report %s: %w", s.Ref.ID, err)
		}
		rep.ID = s.Ref.ID
		rep.UserID = userID
		items = append(items, &rep)
	}
	return items, total, nil
}

func (r *firestoreRepo) PruneReports(ctx context.Context, userID string, keep int) (int, error) {
	var deleted int
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		deleted = 0
		snaps, err := tx.Documents(r.newestFirst(userID).Select()).GetAll()
		if err != nil {
			return err
		}
		if len(snaps) <= keep {
			return nil
		}
		for _, s := range snaps[keep:] {
			if err := tx.Delete(s.Ref); err != nil {
				return err
			}
		}
		deleted = len(snaps) - keep
		return nil
	})
	return deleted, err
}

func (r *firestoreRepo) UpsertCallLog(ctx context.Context, l *CallLog) error {
	_, err := r.callLogs(l.UserID).Doc(l.CallID).Set(ctx, l)
	return err
}

func (r *firestoreRepo) ListCallLogs(ctx context.Context, userID string, limit, offset int) ([]*CallLog, int, error) {
	snaps, err := r.callLogs(userID).Documents(ctx).GetAll()
	if err != nil {
		return nil, 0, err
	}
	all := make([]*CallLog, 0, len(snaps))
	for _, s := range snaps {
		var l CallLog
		if err := s.DataTo(&l); err != nil {
			return nil, 0, fmt.Errorf("decode call log %s: %w", s.Ref.ID, err)
		}
		l.UserID = userID
		if l.CallID == "" {
			l.CallID = s.Ref.ID
		}
		all = append(all, &l)
	}
	sortCallLogs(all)
	start, end := window(len(all), limit, offset)
	return all[start:end], len(all), nil
}

// ListUserIDs walks profiles/ including missing documents, so users with
// reports but no saved profile are returned too.
func (r *firestoreRepo) ListUserIDs(ctx context.Context) ([]string, error) {
	it := r.client.Collection(profilesCollection).DocumentRefs(ctx)
	var ids []string
	for {
		ref, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		ids = append(ids, ref.ID)
	}
	return ids, nil
}

func (r *firestoreRepo) Ping(ctx context.Context) error {
	_, err := r.client.Collection(profilesCollection).Limit(1).Documents(ctx).GetAll()
	return err
}
