package workers

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/yashwanths814/vital-sub001/internal/metrics"
	"github.com/yashwanths814/vital-sub001/services"
	"github.com/yashwanths814/vital-sub001/store"
)

// SweepStats summarizes one sweep
type SweepStats struct {
	Candidates int  `json:"candidates"`
	Escalated  int  `json:"escalated"`
	Failed     int  `json:"failed"`
	Skipped    bool `json:"skipped"`
}

// EscalationWorker periodically runs auto-escalation over all open issues
type EscalationWorker struct {
	Store   store.IssueStore
	Engine  *services.EscalationEngine
	Locker  SweepLocker
	Metrics *metrics.Collector

	Interval    time.Duration
	Concurrency int
	BatchSize   int
	LockTTL     time.Duration
}

func NewEscalationWorker(issueStore store.IssueStore, engine *services.EscalationEngine, locker SweepLocker) *EscalationWorker {
	if locker == nil {
		locker = &LocalLocker{}
	}
	return &EscalationWorker{
		Store:       issueStore,
		Engine:      engine,
		Locker:      locker,
		Interval:    time.Hour,
		Concurrency: 8,
		BatchSize:   500,
		LockTTL:     10 * time.Minute,
	}
}

// StartEscalationWorker sweeps once immediately and then on every tick until
// ctx is cancelled.
func (w *EscalationWorker) StartEscalationWorker(ctx context.Context) {
	log.Printf("Escalation worker started, sweeping every %s", w.Interval)

	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	w.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Println("Escalation worker stopped")
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep evaluates auto-escalation for every candidate issue, paging through
// the store BatchSize issues at a time. A failure on one issue is logged and
// counted; it never stops the sweep.
func (w *EscalationWorker) Sweep(ctx context.Context) SweepStats {
	var stats SweepStats

	release, err := w.Locker.TryLock(ctx, w.LockTTL)
	if err != nil {
		log.Printf("Worker: failed to take sweep lock: %v", err)
		stats.Skipped = true
		return stats
	}
	if release == nil {
		log.Println("Worker: another sweep is running, skipping")
		stats.Skipped = true
		return stats
	}
	defer release()

	start := time.Now()
	cursor := ""
	for ctx.Err() == nil {
		page, err := w.Store.ListEscalationCandidates(ctx, cursor, w.BatchSize)
		if err != nil {
			log.Printf("Worker: failed to list escalation candidates: %v", err)
			stats.Failed++
			break
		}
		stats.Candidates += len(page.IDs)
		w.evaluate(ctx, page.IDs, &stats)

		if page.Next == "" {
			break
		}
		cursor = page.Next
	}

	w.Metrics.ObserveSweep(time.Since(start).Seconds(), stats.Failed)
	log.Printf("Worker: sweep done, %d candidates, %d escalated, %d failed", stats.Candidates, stats.Escalated, stats.Failed)
	return stats
}

// evaluate runs auto-escalation for one page of issues with bounded
// concurrency and adds the outcome to stats.
func (w *EscalationWorker) evaluate(ctx context.Context, ids []string, stats *SweepStats) {
	concurrency := w.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, concurrency)

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(issueID string) {
			defer wg.Done()
			defer func() { <-sem }()

			res, err := w.Engine.EvaluateAutoEscalation(ctx, issueID)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Printf("Worker: failed to evaluate issue %s: %v", issueID, err)
				stats.Failed++
				return
			}
			if res.Escalated {
				stats.Escalated++
			}
		}(id)
	}
	wg.Wait()
}
