// Package cost enforces a cumulative budget on the bytes processed by analytical queries.
package cost

import (
	"fmt"
	"sync"
)

// Tracker counts the bytes processed by the queries of one session, and refuses queries once the
// budget would be exceeded. It is safe for concurrent use.
//
// A Tracker is created once per session and passed to every call site that executes queries.
type Tracker struct {
	budgetBytes int64

	cumulativeBytes int64
	queryCount      int64

	metrics *Metrics

	mu sync.Mutex
}

// Usage is a snapshot of a Tracker's state.
type Usage struct {
	CumulativeBytes int64 `json:"cumulativeBytes"`
	QueryCount      int64 `json:"queryCount"`
	// 0 means no limit.
	BudgetBytes int64 `json:"budgetBytes"`
	// Nil when there is no limit.
	RemainingBytes *int64 `json:"remainingBytes"`
}

// NewTracker creates a tracker with the given budget in bytes. A budget of 0 or less means no
// limit, in which case every check passes. metrics may be nil.
func NewTracker(budgetBytes int64, metrics *Metrics) *Tracker {
	if budgetBytes < 0 {
		budgetBytes = 0
	}

	tracker := &Tracker{budgetBytes: budgetBytes, metrics: metrics}
	tracker.metrics.setBudget(budgetBytes)
	return tracker
}

// CheckBudget fails with *BudgetExceededError if processing estimatedBytes more would exceed the
// budget. It does not change the tracker.
func (tracker *Tracker) CheckBudget(estimatedBytes int64) error {
	if estimatedBytes < 0 {
		return fmt.Errorf("estimated bytes cannot be negative, got %d", estimatedBytes)
	}

	tracker.mu.Lock()
	defer tracker.mu.Unlock()

	if err := tracker.checkLocked(estimatedBytes); err != nil {
		tracker.metrics.recordRejection(rejectionPreflight)
		return err
	}
	return nil
}

// Record adds the bytes processed by a completed query, and increments the query count. If that
// would exceed the budget, it fails with *BudgetExceededError and leaves the tracker unchanged.
func (tracker *Tracker) Record(actualBytes int64) error {
	if actualBytes < 0 {
		return fmt.Errorf("recorded bytes cannot be negative, got %d", actualBytes)
	}

	tracker.mu.Lock()
	defer tracker.mu.Unlock()

	if err := tracker.checkLocked(actualBytes); err != nil {
		tracker.metrics.recordRejection(rejectionRecord)
		return err
	}

	tracker.cumulativeBytes += actualBytes
	tracker.queryCount++
	tracker.metrics.recordQuery(actualBytes, tracker.cumulativeBytes)
	return nil
}

// Reset zeroes the cumulative bytes and query count. The budget is kept.
func (tracker *Tracker) Reset() {
	tracker.mu.Lock()
	defer tracker.mu.Unlock()

	tracker.cumulativeBytes = 0
	tracker.queryCount = 0
	tracker.metrics.setCumulative(0)
}

func (tracker *Tracker) Usage() Usage {
	tracker.mu.Lock()
	defer tracker.mu.Unlock()

	usage := Usage{
		CumulativeBytes: tracker.cumulativeBytes,
		QueryCount:      tracker.queryCount,
		BudgetBytes:     tracker.budgetBytes,
	}
	if tracker.budgetBytes > 0 {
		remaining := tracker.budgetBytes - tracker.cumulativeBytes
		usage.RemainingBytes = &remaining
	}
	return usage
}

// Must hold tracker.mu.
func (tracker *Tracker) checkLocked(bytes int64) error {
	if tracker.budgetBytes <= 0 {
		return nil
	}

	if tracker.cumulativeBytes+bytes > tracker.budgetBytes {
		return &BudgetExceededError{
			RequestedBytes:  bytes,
			CumulativeBytes: tracker.cumulativeBytes,
			BudgetBytes:     tracker.budgetBytes,
		}
	}
	return nil
}

// BudgetExceededError is returned when a query would take the cumulative bytes processed past the
// budget.
type BudgetExceededError struct {
	RequestedBytes  int64
	CumulativeBytes int64
	BudgetBytes     int64
}

func (err *BudgetExceededError) Error() string {
	return fmt.Sprintf(
		"query budget exceeded: %d bytes requested with %d of %d bytes already used",
		err.RequestedBytes,
		err.CumulativeBytes,
		err.BudgetBytes,
	)
}
