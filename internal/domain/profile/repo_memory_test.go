package profile

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// tickingClock advances one second per call so every write gets a distinct time.
func tickingClock() func() time.Time {
	t := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func TestMemoryRepo_ReportsNewestFirst(t *testing.T) {
	r := newMemoryRepo(tickingClock())
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := r.CreateReport(ctx, &Report{UserID: "u1", Analysis: fmt.Sprintf("r%d", i)}); err != nil {
			t.Fatalf("CreateReport: %v", err)
		}
	}
	items, total, err := r.ListReports(ctx, "u1", 0, 0)
	if err != nil {
		t.Fatalf("ListReports: %v", err)
	}
	if total != 3 || len(items) != 3 {
		t.Fatalf("expected 3 reports, got %d/%d", len(items), total)
	}
	if items[0].Analysis != "r2" || items[2].Analysis != "r0" {
		t.Errorf("expected newest first, got %s..%s", items[0].Analysis, items[2].Analysis)
	}
	if items[0].ID == "" || items[0].CreatedAt.IsZero() {
		t.Error("expected server-assigned id and createdAt")
	}
}

func TestMemoryRepo_SameTimestampNewestInsertFirst(t *testing.T) {
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r := newMemoryRepo(func() time.Time { return fixed })
	ctx := context.Background()
	r.CreateReport(ctx, &Report{UserID: "u1", Analysis: "first"})
	r.CreateReport(ctx, &Report{UserID: "u1", Analysis: "second"})

	items, _, _ := r.ListReports(ctx, "u1", 1, 0)
	if len(items) != 1 || items[0].Analysis != "second" {
		t.Errorf("expected most recent insert first, got %+v", items)
	}
}

func TestMemoryRepo_PruneKeepsNewest(t *testing.T) {
	r := newMemoryRepo(tickingClock())
	ctx := context.Background()
	for i := 0; i < 53; i++ {
		r.CreateReport(ctx, &Report{UserID: "u1", Analysis: fmt.Sprintf("r%d", i)})
	}

	deleted, err := r.PruneReports(ctx, "u1", 50)
	if err != nil {
		t.Fatalf("PruneReports: %v", err)
	}
	if deleted != 3 {
		t.Errorf("expected 3 deleted, got %d", deleted)
	}
	items, total, _ := r.ListReports(ctx, "u1", 0, 0)
	if total != 50 {
		t.Fatalf("expected 50 remaining, got %d", total)
	}
	if items[0].Analysis != "r52" || items[49].Analysis != "r3" {
		t.Errorf("expected r52..r3 to survive, got %s..%s", items[0].Analysis, items[49].Analysis)
	}

	deleted, _ = r.PruneReports(ctx, "u1", 50)
	if deleted != 0 {
		t.Errorf("expected second prune to be a no-op, deleted %d", deleted)
	}
}

func TestMemoryRepo_MergeProfile(t *testing.T) {
	r := newMemoryRepo(tickingClock())
	ctx := context.Background()

	if _, err := r.GetProfile(ctx, "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	allergies := "latex"
	r.MergeProfile(ctx, "u1", &ProfileUpdate{Allergies: &allergies})
	first, _ := r.GetProfile(ctx, "u1")

	weight := 80.0
	r.MergeProfile(ctx, "u1", &ProfileUpdate{Weight: &weight})
	p, err := r.GetProfile(ctx, "u1")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if p.Allergies != "latex" || p.Weight != 80 {
		t.Errorf("expected merged profile, got %+v", p)
	}
	if !p.LastUpdated.After(first.LastUpdated) {
		t.Error("expected lastUpdated to advance on every save")
	}
}

func TestMemoryRepo_CallLogUpsert(t *testing.T) {
	r := newMemoryRepo(tickingClock())
	ctx := context.Background()
	r.UpsertCallLog(ctx, &CallLog{UserID: "u1", CallID: "c1", Summary: "old"})
	r.UpsertCallLog(ctx, &CallLog{UserID: "u1", CallID: "c1", Summary: "new"})

	logs, total, err := r.ListCallLogs(ctx, "u1", 0, 0)
	if err != nil {
		t.Fatalf("ListCallLogs: %v", err)
	}
	if total != 1 || logs[0].Summary != "new" {
		t.Errorf("expected one overwritten log, got %d %+v", total, logs)
	}
}

func TestMemoryRepo_ListUserIDs(t *testing.T) {
	r := newMemoryRepo(tickingClock())
	ctx := context.Background()
	r.CreateReport(ctx, &Report{UserID: "b"})
	r.CreateReport(ctx, &Report{UserID: "a"})

	ids, _ := r.ListUserIDs(ctx)
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("expected [a b], got %v", ids)
	}
}

func TestSortCallLogs(t *testing.T) {
	t1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	logs := []*CallLog{
		{CallID: "none"},
		{CallID: "old", CallEndTime: &t1},
		{CallID: "new", CallEndTime: &t2},
	}
	sortCallLogs(logs)
	if logs[0].CallID != "new" || logs[1].CallID != "old" || logs[2].CallID != "none" {
		t.Errorf("unexpected order: %s %s %s", logs[0].CallID, logs[1].CallID, logs[2].CallID)
	}
}
