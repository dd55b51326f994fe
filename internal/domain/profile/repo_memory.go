package profile

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryRepo struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
	reports  map[string][]*Report
	callLogs map[string]map[string]*CallLog
	now      func() time.Time
}

// NewMemoryRepo returns a process-local Repository. Data is lost on restart.
func NewMemoryRepo() Repository {
	return newMemoryRepo(time.Now)
}

func newMemoryRepo(now func() time.Time) *memoryRepo {
	return &memoryRepo{
		profiles: make(map[string]*Profile),
		reports:  make(map[string][]*Report),
		callLogs: make(map[string]map[string]*CallLog),
		now:      now,
	}
}

func (r *memoryRepo) GetProfile(_ context.Context, userID string) (*Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memoryRepo) MergeProfile(_ context.Context, userID string, u *ProfileUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[userID]
	if !ok {
		p = &Profile{UserID: userID}
		r.profiles[userID] = p
	}
	u.Apply(p)
	p.LastUpdated = r.now().UTC()
	return nil
}

func (r *memoryRepo) CreateReport(_ context.Context, rep *Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rep.ID = uuid.New().String()
	rep.CreatedAt = r.now().UTC()
	cp := *rep
	// newest first; equal timestamps keep insertion order reversed
	list := r.reports[rep.UserID]
	i := sort.Search(len(list), func(i int) bool { return !list[i].CreatedAt.After(cp.CreatedAt) })
	list = append(list, nil)
	copy(list[i+1:], list[i:])
	list[i] = &cp
	r.reports[rep.UserID] = list
	return nil
}

func (r *memoryRepo) ListReports(_ context.Context, userID string, limit, offset int) ([]*Report, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.reports[userID]
	start, end := window(len(list), limit, offset)
	items := make([]*Report, 0, end-start)
	for _, rep := range list[start:end] {
		cp := *rep
		items = append(items, &cp)
	}
	return items, len(list), nil
}

func (r *memoryRepo) PruneReports(_ context.Context, userID string, keep int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.reports[userID]
	if len(list) <= keep {
		return 0, nil
	}
	deleted := len(list) - keep
	r.reports[userID] = list[:keep:keep]
	return deleted, nil
}

func (r *memoryRepo) UpsertCallLog(_ context.Context, l *CallLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	logs, ok := r.callLogs[l.UserID]
	if !ok {
		logs = make(map[string]*CallLog)
		r.callLogs[l.UserID] = logs
	}
	cp := *l
	logs[l.CallID] = &cp
	return nil
}

func (r *memoryRepo) ListCallLogs(_ context.Context, userID string, limit, offset int) ([]*CallLog, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]*CallLog, 0, len(r.callLogs[userID]))
	for _, l := range r.callLogs[userID] {
		cp := *l
		all = append(all, &cp)
	}
	sortCallLogs(all)
	start, end := window(len(all), limit, offset)
	return all[start:end], len(all), nil
}

func (r *memoryRepo) ListUserIDs(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.reports))
	for id, list := range r.reports {
		if len(list) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *memoryRepo) Ping(context.Context) error { return nil }

// window clamps [offset, offset+limit) to n. limit <= 0 means no upper bound.
func window(n, limit, offset int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if offset > n {
		offset = n
	}
	end := n
	if limit > 0 && offset+limit < n {
		end = offset + limit
	}
	return offset, end
}

// sortCallLogs orders logs by end time, newest first; logs without an end
// time sort last, by call id.
func sortCallLogs(logs []*CallLog) {
	sort.SliceStable(logs, func(i, j int) bool {
		a, b := logs[i].CallEndTime, logs[j].CallEndTime
		switch {
		case a != nil && b != nil && !a.Equal(*b):
			return a.After(*b)
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return logs[i].CallID < logs[j].CallID
	})
}
