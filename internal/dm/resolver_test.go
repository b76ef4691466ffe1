package dm

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rivulet-chat/rivulet/internal/store"
	apperr "github.com/rivulet-chat/rivulet/pkg/errors"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := db.Migrate(); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

func TestResolveCreatesOnce(t *testing.T) {
	db := testDB(t)
	alice, _ := db.CreateUser("Alice", "")
	bob, _ := db.CreateUser("Bob", "")
	r := NewResolver(db, nil)
	ctx := context.Background()

	ch1, err := r.Resolve(ctx, alice.ID, bob.ID)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if ch1.Kind != store.ChannelDirect {
		t.Errorf("Kind = %q, want direct", ch1.Kind)
	}

	// Same pair, reversed order, resolves to the same channel.
	ch2, err := r.Resolve(ctx, bob.ID, alice.ID)
	if err != nil {
		t.Fatalf("reversed Resolve() error = %v", err)
	}
	if ch2.ID != ch1.ID {
		t.Errorf("reversed Resolve() = %s, want %s", ch2.ID, ch1.ID)
	}
}

func TestResolveSelf(t *testing.T) {
	db := testDB(t)
	alice, _ := db.CreateUser("Alice", "")
	r := NewResolver(db, nil)

	_, err := r.Resolve(context.Background(), alice.ID, alice.ID)
	if !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("self Resolve() error = %v, want ErrInvalidArgument", err)
	}
}

func TestResolveUnknownParticipant(t *testing.T) {
	db := testDB(t)
	alice, _ := db.CreateUser("Alice", "")
	r := NewResolver(db, nil)
	ctx := context.Background()

	if _, err := r.Resolve(ctx, alice.ID, "ghost"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Resolve(unknown peer) error = %v, want ErrNotFound", err)
	}
	if _, err := r.Resolve(ctx, "ghost", alice.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Resolve(unknown caller) error = %v, want ErrNotFound", err)
	}
	if _, err := r.Resolve(ctx, "", alice.ID); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("Resolve(empty id) error = %v, want ErrInvalidArgument", err)
	}
}

func TestResolveConcurrent(t *testing.T) {
	db := testDB(t)
	alice, _ := db.CreateUser("Alice", "")
	bob, _ := db.CreateUser("Bob", "")
	r := NewResolver(db, nil)

	const n = 8
	var wg sync.WaitGroup
	ids := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := alice.ID, bob.ID
			if i%2 == 1 {
				a, b = b, a
			}
			ch, err := r.Resolve(context.Background(), a, b)
			if err != nil {
				errs[i] = err
				return
			}
			ids[i] = ch.ID
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("goroutine %d: Resolve() error = %v", i, err)
		}
	}
	for i := 1; i < n; i++ {
		if ids[i] != ids[0] {
			t.Fatalf("goroutine %d resolved %s, goroutine 0 resolved %s", i, ids[i], ids[0])
		}
	}

	// Exactly one channel row exists for the pair.
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM channels WHERE kind = 'direct'`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("direct channel rows = %d, want 1", count)
	}
}

func TestResolveAfterLeaveRestoresMembership(t *testing.T) {
	db := testDB(t)
	alice, _ := db.CreateUser("Alice", "")
	bob, _ := db.CreateUser("Bob", "")
	r := NewResolver(db, nil)
	ctx := context.Background()

	ch, err := r.Resolve(ctx, alice.ID, bob.ID)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.RemoveMember(ch.ID, bob.ID); err != nil {
		t.Fatal(err)
	}

	// Re-contact reuses the persisted channel and restores both memberships.
	again, err := r.Resolve(ctx, alice.ID, bob.ID)
	if err != nil {
		t.Fatalf("Resolve() after leave error = %v", err)
	}
	if again.ID != ch.ID {
		t.Errorf("Resolve() after leave = %s, want original %s", again.ID, ch.ID)
	}
	for _, uid := range []string{alice.ID, bob.ID} {
		ok, err := db.IsMember(ch.ID, uid)
		if err != nil || !ok {
			t.Errorf("IsMember(%s) = %v, %v, want true", uid, ok, err)
		}
	}
}
