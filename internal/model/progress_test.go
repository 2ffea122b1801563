package model

import (
	"testing"
	"time"
)

// itemsWithStatuses builds an item map with the given statuses.
func itemsWithStatuses(statuses ...ItemStatus) map[string]*BatchItem {
	items := make(map[string]*BatchItem, len(statuses))
	for i, status := range statuses {
		item := NewBatchItem(string(rune('a'+i)), "item", 3)
		item.Status = status
		items[item.ID] = item
	}
	return items
}

// TestBatchProgressRecount tests that counters always sum to the total.
func TestBatchProgressRecount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		statuses  []ItemStatus
		completed int
		failed    int
		pending   int
		running   int
	}{
		{name: "empty", statuses: nil},
		{
			name:     "all pending",
			statuses: []ItemStatus{ItemPending, ItemPending, ItemPending},
			pending:  3,
		},
		{
			name:      "mixed",
			statuses:  []ItemStatus{ItemPending, ItemRunning, ItemCompleted, ItemFailed, ItemCompleted},
			pending:   1,
			running:   1,
			completed: 2,
			failed:    1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var p BatchProgress
			items := itemsWithStatuses(tt.statuses...)
			p.Recount(items)

			if p.TotalItems != len(tt.statuses) {
				t.Errorf("expected total %d, got %d", len(tt.statuses), p.TotalItems)
			}
			if p.CompletedItems != tt.completed || p.FailedItems != tt.failed ||
				p.PendingItems != tt.pending || p.RunningItems != tt.running {
				t.Errorf("unexpected counts: %+v", p)
			}

			sum := p.CompletedItems + p.FailedItems + p.PendingItems + p.RunningItems
			if sum != p.TotalItems {
				t.Errorf("counter invariant violated: sum %d != total %d", sum, p.TotalItems)
			}
		})
	}
}

// TestBatchProgressEstimateCompletion tests ETA derivation.
func TestBatchProgressEstimateCompletion(t *testing.T) {
	t.Parallel()

	t.Run("undefined before first completion", func(t *testing.T) {
		t.Parallel()

		start := time.Now().UTC()
		p := BatchProgress{TotalItems: 4, PendingItems: 4, StartTime: &start}
		p.EstimateCompletion(start.Add(time.Minute))

		if p.EstimatedCompletion != nil {
			t.Error("expected nil ETA before any completion")
		}
	})

	t.Run("undefined without start time", func(t *testing.T) {
		t.Parallel()

		p := BatchProgress{TotalItems: 4, CompletedItems: 2, PendingItems: 2}
		p.EstimateCompletion(time.Now().UTC())

		if p.EstimatedCompletion != nil {
			t.Error("expected nil ETA without a start time")
		}
	})

	t.Run("throughput based estimate", func(t *testing.T) {
		t.Parallel()

		start := time.Now().UTC()
		now := start.Add(2 * time.Minute)
		p := BatchProgress{
			TotalItems:     4,
			CompletedItems: 2,
			PendingItems:   2,
			StartTime:      &start,
		}
		p.EstimateCompletion(now)

		// 2 items in 2 minutes = 1 minute per item, 2 remaining.
		want := now.Add(2 * time.Minute)
		if p.EstimatedCompletion == nil {
			t.Fatal("expected an ETA")
		}
		if !p.EstimatedCompletion.Equal(want) {
			t.Errorf("expected ETA %v, got %v", want, *p.EstimatedCompletion)
		}
	})

	t.Run("no remaining work pins ETA to now", func(t *testing.T) {
		t.Parallel()

		start := time.Now().UTC()
		now := start.Add(time.Minute)
		p := BatchProgress{TotalItems: 2, CompletedItems: 2, StartTime: &start}
		p.EstimateCompletion(now)

		if p.EstimatedCompletion == nil || !p.EstimatedCompletion.Equal(now) {
			t.Errorf("expected ETA %v, got %v", now, p.EstimatedCompletion)
		}
	})
}
