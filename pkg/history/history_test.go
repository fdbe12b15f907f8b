package history_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/bitmuster/resultblend/pkg/config"
	"github.com/bitmuster/resultblend/pkg/history"
	"github.com/bitmuster/resultblend/pkg/store"
	"github.com/sirupsen/logrus"
)

func seed(t *testing.T, st store.Store, id string, finished time.Time) {
	t.Helper()

	err := st.CreateBlend(context.Background(), &store.Blend{
		ID:         id,
		Status:     store.BlendStatusSucceeded,
		StartedAt:  finished,
		FinishedAt: finished,
	})
	if err != nil {
		t.Fatalf("seeding %s: %v", id, err)
	}
}

func newLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}

func TestPrune(t *testing.T) {
	log := newLogger()
	st := store.NewMemoryStore(log)

	seed(t, st, "old", time.Now().AddDate(0, 0, -10))
	seed(t, st, "new", time.Now())

	svc := history.NewService(log, config.HistoryConfig{RetentionDays: 7, CleanupInterval: time.Hour}, st)

	count, err := svc.Prune(context.Background())
	if err != nil {
		t.Fatalf("prune failed: %v", err)
	}

	if count != 1 {
		t.Errorf("expected 1 pruned blend, got %d", count)
	}

	if b, _ := st.GetBlend(context.Background(), "new"); b == nil {
		t.Error("recent blend should be kept")
	}
}

func TestPruneDisabled(t *testing.T) {
	log := newLogger()
	st := store.NewMemoryStore(log)

	seed(t, st, "old", time.Now().AddDate(-1, 0, 0))

	svc := history.NewService(log, config.HistoryConfig{RetentionDays: -1}, st)

	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	defer svc.Stop()

	count, err := svc.Prune(context.Background())
	if err != nil || count != 0 {
		t.Errorf("disabled retention should not prune, got %d, %v", count, err)
	}
}

func TestCleanupLoop(t *testing.T) {
	log := newLogger()
	st := store.NewMemoryStore(log)

	seed(t, st, "old", time.Now().AddDate(0, 0, -10))

	svc := history.NewService(log, config.HistoryConfig{RetentionDays: 1, CleanupInterval: 10 * time.Millisecond}, st)

	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)

	for time.Now().Before(deadline) {
		if b, _ := st.GetBlend(context.Background(), "old"); b == nil {
			break
		}

		time.Sleep(10 * time.Millisecond)
	}

	if err := svc.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	if b, _ := st.GetBlend(context.Background(), "old"); b != nil {
		t.Error("cleanup loop should have pruned the old blend")
	}
}
