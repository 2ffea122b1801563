package model

import "time"

// BatchProgress aggregates per-status item counts for a session.
//
// Invariant: TotalItems == CompletedItems + FailedItems + PendingItems +
// RunningItems after every mutation. Progress is always recomputed from the
// item map rather than incrementally adjusted, so a missed transition cannot
// leave the counters out of sync with the items.
type BatchProgress struct {
	TotalItems     int `json:"total_items"`
	CompletedItems int `json:"completed_items"`
	FailedItems    int `json:"failed_items"`
	PendingItems   int `json:"pending_items"`
	RunningItems   int `json:"running_items"`

	// StartTime is when processing first started. Nil for sessions that
	// have never run.
	StartTime *time.Time `json:"start_time,omitempty"`

	// EstimatedCompletion is derived from completed-item throughput.
	// Nil until at least one item has completed.
	EstimatedCompletion *time.Time `json:"estimated_completion,omitempty"`
}

// Recount rebuilds all counters from the given item map.
func (p *BatchProgress) Recount(items map[string]*BatchItem) {
	p.TotalItems = len(items)
	p.CompletedItems = 0
	p.FailedItems = 0
	p.PendingItems = 0
	p.RunningItems = 0

	for _, item := range items {
		switch item.Status {
		case ItemCompleted:
			p.CompletedItems++
		case ItemFailed:
			p.FailedItems++
		case ItemRunning:
			p.RunningItems++
		default:
			p.PendingItems++
		}
	}
}

// EstimateCompletion updates EstimatedCompletion from elapsed time and
// completed-item throughput. The estimate is undefined (nil) until at least
// one item has completed and the session has a start time.
func (p *BatchProgress) EstimateCompletion(now time.Time) {
	if p.StartTime == nil || p.CompletedItems == 0 {
		p.EstimatedCompletion = nil
		return
	}

	remaining := p.PendingItems + p.RunningItems
	if remaining == 0 {
		p.EstimatedCompletion = &now
		return
	}

	elapsed := now.Sub(*p.StartTime)
	perItem := elapsed / time.Duration(p.CompletedItems)
	eta := now.Add(perItem * time.Duration(remaining))
	p.EstimatedCompletion = &eta
}

// Remaining returns the number of items still eligible for processing.
func (p *BatchProgress) Remaining() int {
	return p.PendingItems + p.RunningItems
}

// Clone returns a deep copy of the progress counters.
func (p *BatchProgress) Clone() *BatchProgress {
	c := *p
	if p.StartTime != nil {
		t := *p.StartTime
		c.StartTime = &t
	}
	if p.EstimatedCompletion != nil {
		t := *p.EstimatedCompletion
		c.EstimatedCompletion = &t
	}
	return &c
}
