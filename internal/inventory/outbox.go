package inventory

import (
	"context"
	"log"
	"time"
)

// PendingReport is an accepted delta that could not be delivered yet.
type PendingReport struct {
	DeviceID string    `json:"device_id"`
	Kind     Kind      `json:"kind"`
	Quantity float64   `json:"quantity"`
	QueuedAt time.Time `json:"queued_at"`
}

// Outbox is a bounded FIFO of undelivered reports. It lives in memory only and
// is owned by the control loop.
type Outbox struct {
	items    []PendingReport
	capacity int
}

// NewOutbox creates an outbox holding at most capacity reports.
func NewOutbox(capacity int) *Outbox {
	if capacity <= 0 {
		capacity = 1
	}
	return &Outbox{capacity: capacity}
}

// Push queues a report. When the outbox is full the oldest report is evicted and
// returned so the caller can surface the loss.
func (o *Outbox) Push(p PendingReport) (PendingReport, bool) {
	var dropped PendingReport
	evicted := false
	if len(o.items) >= o.capacity {
		dropped = o.items[0]
		o.items = o.items[1:]
		evicted = true
	}
	o.items = append(o.items, p)
	return dropped, evicted
}

// Len returns the number of queued reports.
func (o *Outbox) Len() int {
	return len(o.items)
}

// Pending returns a copy of the queued reports, oldest first.
func (o *Outbox) Pending() []PendingReport {
	out := make([]PendingReport, len(o.items))
	copy(out, o.items)
	return out
}

// Flush delivers queued reports in order and calls apply with each response.
// A transient failure stops the flush so ordering is preserved; that report and
// everything after it stay queued. A report the service rejects outright is
// removed and returned in discarded, and the flush moves on.
func (o *Outbox) Flush(ctx context.Context, r Reporter, apply func(kind Kind, resp DeviceState)) (delivered int, discarded []PendingReport) {
	for len(o.items) > 0 {
		p := o.items[0]
		resp, err := r.ReportDelta(ctx, p.DeviceID, p.Kind, p.Quantity)
		if err != nil {
			if Retryable(err) {
				log.Printf("inventory: outbox flush stopped with %d pending: %v", len(o.items), err)
				break
			}
			log.Printf("inventory: outbox discarded %s report of %.1f: %v", p.Kind, p.Quantity, err)
			o.items = o.items[1:]
			discarded = append(discarded, p)
			continue
		}
		o.items = o.items[1:]
		delivered++
		if apply != nil {
			apply(p.Kind, resp)
		}
	}
	return delivered, discarded
}
