package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/mmdatafocus/bankrec_backend/bankrec"
)

// Without redis the store runs on process memory; these tests cover that path.

func newLocalStore() *SessionStore {
	return NewSessionStore(nil, nil, 0, nil)
}

func TestSessionStore_SaveLoadDelete(t *testing.T) {
	ctx := context.Background()
	store := newLocalStore()
	s := &bankrec.Session{ID: "s1", BusinessId: "biz-1", StatementLineId: 7, State: bankrec.SessionStateOpen}
	if err := store.Save(ctx, s); err != nil {
		t.Fatalf("save: %v", err)
	}
	if s.CreatedAt.IsZero() || s.UpdatedAt.IsZero() {
		t.Fatalf("expected timestamps to be stamped on save")
	}

	got, err := store.Load(ctx, "biz-1", "s1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.StatementLineId != 7 || got.State != bankrec.SessionStateOpen {
		t.Fatalf("unexpected session %+v", got)
	}

	if err := store.Delete(ctx, "biz-1", "s1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Load(ctx, "biz-1", "s1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after delete, got %v", err)
	}
}

func TestSessionStore_OtherBusinessCannotLoad(t *testing.T) {
	ctx := context.Background()
	store := newLocalStore()
	if err := store.Save(ctx, &bankrec.Session{ID: "s1", BusinessId: "biz-1"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := store.Load(ctx, "biz-2", "s1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSessionStore_MutateFailureKeepsStoredSession(t *testing.T) {
	ctx := context.Background()
	store := newLocalStore()
	if err := store.Save(ctx, &bankrec.Session{ID: "s1", BusinessId: "biz-1", PaymentRef: "before"}); err != nil {
		t.Fatalf("save: %v", err)
	}

	boom := errors.New("boom")
	_, err := store.Mutate(ctx, "biz-1", "s1", func(s *bankrec.Session) error {
		s.PaymentRef = "after"
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	got, err := store.Load(ctx, "biz-1", "s1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.PaymentRef != "before" {
		t.Fatalf("failed mutation leaked into the store: %q", got.PaymentRef)
	}

	updated, err := store.Mutate(ctx, "biz-1", "s1", func(s *bankrec.Session) error {
		s.PaymentRef = "after"
		return nil
	})
	if err != nil {
		t.Fatalf("mutate: %v", err)
	}
	if updated.PaymentRef != "after" {
		t.Fatalf("expected returned session to carry the change")
	}
}

func TestSessionStore_MutateMissingSession(t *testing.T) {
	_, err := newLocalStore().Mutate(context.Background(), "biz-1", "nope", func(*bankrec.Session) error { return nil })
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSessionStore_MutationsOnOneSessionAreSerialized(t *testing.T) {
	ctx := context.Background()
	store := newLocalStore()
	if err := store.Save(ctx, &bankrec.Session{ID: "s1", BusinessId: "biz-1"}); err != nil {
		t.Fatalf("save: %v", err)
	}

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := store.Mutate(ctx, "biz-1", "s1", func(s *bankrec.Session) error {
				s.NextSeq++
				return nil
			})
			if err != nil {
				t.Errorf("mutate: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := store.Load(ctx, "biz-1", "s1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.NextSeq != n {
		t.Fatalf("expected %d serialized increments, got %d", n, got.NextSeq)
	}
}
