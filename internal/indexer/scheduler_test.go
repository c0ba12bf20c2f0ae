package indexer

import (
	"context"
	"testing"
	"time"

	"github.com/guestlytics/insight-go/internal/analytics"
)

func TestSchedulerRunsImmediatelyAndStops(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	w := newTestWorker(&fakeCatalog{tenants: []analytics.Tenant{tenant("hotel-a")}}, &fakeProvider{}, store)

	s := NewScheduler(w, time.Hour, true)
	s.Start(context.Background())

	deadline := time.After(5 * time.Second)
	for {
		if w.Status().TenantsProcessed == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("scheduler never completed the initial sync run")
		case <-time.After(10 * time.Millisecond):
		}
	}

	s.Stop() // must not hang
}

func TestSchedulerStopWithoutRuns(t *testing.T) {
	t.Parallel()

	w := newTestWorker(&fakeCatalog{}, &fakeProvider{}, newMemStore())
	s := NewScheduler(w, time.Hour, false)
	s.Start(context.Background())
	s.Stop()
}
