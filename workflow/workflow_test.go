package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/mmdatafocus/bankrec_backend/bankrec"
	"github.com/mmdatafocus/bankrec_backend/models"
	"github.com/mmdatafocus/bankrec_backend/utils"
)

func TestOutboxBackoff_DoublesAndCaps(t *testing.T) {
	d := &OutboxDispatcher{InitialBackoff: 5 * time.Second, MaxBackoff: time.Minute}
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{3, 20 * time.Second},
		{4, 40 * time.Second},
		{5, time.Minute},
		{12, time.Minute},
	}
	for _, c := range cases {
		if got := d.backoff(c.attempt); got != c.want {
			t.Fatalf("attempt %d: expected %s, got %s", c.attempt, c.want, got)
		}
	}
}

func TestOutboxExhausted(t *testing.T) {
	d := &OutboxDispatcher{MaxAttempts: 3}
	if d.exhausted(2) {
		t.Fatalf("2 of 3 attempts is not exhausted")
	}
	if !d.exhausted(3) {
		t.Fatalf("3 of 3 attempts is exhausted")
	}
	unlimited := &OutboxDispatcher{}
	if unlimited.exhausted(1000) {
		t.Fatalf("MaxAttempts 0 never exhausts")
	}
}

func TestPostingLockName_IsPerJournal(t *testing.T) {
	a := postingLockName("biz-1", 1)
	b := postingLockName("biz-1", 2)
	c := postingLockName("biz-2", 1)
	if a == b || a == c {
		t.Fatalf("lock names must differ per business and journal: %s %s %s", a, b, c)
	}
}

func TestDisplayTypeFor(t *testing.T) {
	cases := map[bankrec.Flag]models.DisplayType{
		bankrec.FlagLiquidity:    models.DisplayTypeLiquidity,
		bankrec.FlagNewAml:       models.DisplayTypeCounterpart,
		bankrec.FlagExchangeDiff: models.DisplayTypeWriteoff,
		bankrec.FlagAutoBalance:  models.DisplayTypeWriteoff,
		bankrec.FlagManual:       models.DisplayTypeWriteoff,
	}
	for flag, want := range cases {
		if got := displayTypeFor(flag); got != want {
			t.Fatalf("%s: expected %s, got %s", flag, want, got)
		}
	}
}

func TestReplayedResult(t *testing.T) {
	s := &bankrec.Session{ID: "s1", StatementLineId: 9}
	ref := "42"
	got, err := replayedResult(s, &models.IdempotencyKey{ID: 1, ResultRef: &ref})
	if err != nil {
		t.Fatalf("replayedResult: %v", err)
	}
	if !got.Replayed || got.MoveId != 42 || got.StatementLineId != 9 {
		t.Fatalf("unexpected result %+v", got)
	}

	bad := "not-a-number"
	if _, err := replayedResult(s, &models.IdempotencyKey{ID: 2, ResultRef: &bad}); err == nil {
		t.Fatalf("expected an error for a malformed result ref")
	}
}

func TestSettingsFromEnv(t *testing.T) {
	t.Setenv("BANKREC_BATCH_REMAINDER_POLICY", " Suspense ")
	settings, err := SettingsFromEnv()
	if err != nil {
		t.Fatalf("SettingsFromEnv: %v", err)
	}
	if settings.BatchRemainderPolicy != bankrec.RemainderPolicySuspense {
		t.Fatalf("expected suspense, got %q", settings.BatchRemainderPolicy)
	}

	t.Setenv("BANKREC_BATCH_REMAINDER_POLICY", "somewhere")
	if _, err := SettingsFromEnv(); err == nil {
		t.Fatalf("expected an error for an unknown policy")
	}
}

func TestReconciledUpdates_StampsActingUser(t *testing.T) {
	at := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	ctx := utils.SetUserNameInContext(context.Background(), "mya")

	got := reconciledUpdates(ctx, 55, at)
	if got["is_reconciled"] != true || got["move_id"] != 55 || got["reconciled_by"] != "mya" {
		t.Fatalf("unexpected updates: %v", got)
	}
	if stamp, ok := got["reconciled_at"].(*time.Time); !ok || !stamp.Equal(at) {
		t.Fatalf("reconciled_at = %v", got["reconciled_at"])
	}

	if anon := reconciledUpdates(context.Background(), 55, at); anon["reconciled_by"] != "" {
		t.Fatalf("no user in context should leave reconciled_by empty, got %v", anon["reconciled_by"])
	}
}
