package sqlitekv

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/nerrad567/airrelay/internal/infrastructure/config"
	"github.com/nerrad567/airrelay/internal/store"
)

func openTestStore(t *testing.T, namespace string) *Store {
	t.Helper()

	s, err := Open(context.Background(), config.StoreConfig{
		Backend:   config.StoreBackendSQLite,
		Namespace: namespace,
		SQLite: config.SQLiteConfig{
			Path:        filepath.Join(t.TempDir(), "kv.db"),
			WALMode:     true,
			BusyTimeout: 5,
		},
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() }) //nolint:errcheck // Test cleanup
	return s
}

func TestStore_GetMissing(t *testing.T) {
	s := openTestStore(t, "")

	v, ok, err := s.Get(context.Background(), "device_to_group:1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok || v != "" {
		t.Errorf("Get() = (%q, %v), want absent", v, ok)
	}
}

func TestStore_PutGetDelete(t *testing.T) {
	s := openTestStore(t, "relay")
	ctx := context.Background()

	err := s.Put(ctx, map[string]string{
		"device_to_group:X":    "-100",
		"group_to_device:-100": "X",
	})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	if v, ok, _ := s.Get(ctx, "device_to_group:X"); !ok || v != "-100" {
		t.Errorf("Get(device_to_group:X) = (%q, %v)", v, ok)
	}

	// Overwrite keeps a single row.
	if err := s.Put(ctx, map[string]string{"group_to_device:-100": "Y"}); err != nil {
		t.Fatalf("Put() overwrite error = %v", err)
	}
	if v, _, _ := s.Get(ctx, "group_to_device:-100"); v != "Y" {
		t.Errorf("Get() after overwrite = %q, want Y", v)
	}

	if err := s.Delete(ctx, "device_to_group:X", "group_to_device:-100", "never_written"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	for _, k := range []string{"device_to_group:X", "group_to_device:-100"} {
		if _, ok, _ := s.Get(ctx, k); ok {
			t.Errorf("%s still present after Delete", k)
		}
	}
}

func TestStore_Namespace(t *testing.T) {
	s := openTestStore(t, "tenant")
	ctx := context.Background()

	if err := s.Put(ctx, map[string]string{"admins": "1"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	var raw string
	if err := s.db.QueryRowContext(ctx, "SELECT key FROM kv").Scan(&raw); err != nil {
		t.Fatalf("SELECT error = %v", err)
	}
	if raw != "tenant:admins" {
		t.Errorf("stored key = %q, want tenant:admins", raw)
	}
}

func TestStore_EmptyKey(t *testing.T) {
	s := openTestStore(t, "")
	ctx := context.Background()

	if _, _, err := s.Get(ctx, ""); !errors.Is(err, store.ErrEmptyKey) {
		t.Errorf("Get(\"\") error = %v, want ErrEmptyKey", err)
	}
	if err := s.Put(ctx, map[string]string{"": "x"}); !errors.Is(err, store.ErrEmptyKey) {
		t.Errorf("Put() error = %v, want ErrEmptyKey", err)
	}
}

func TestStore_CompareAndSwap(t *testing.T) {
	s := openTestStore(t, "")
	ctx := context.Background()

	swapped, err := s.CompareAndSwap(ctx, "admins", "", "1")
	if err != nil || !swapped {
		t.Fatalf("CompareAndSwap(absent) = (%v, %v), want swapped", swapped, err)
	}

	swapped, err = s.CompareAndSwap(ctx, "admins", "", "2")
	if err != nil || swapped {
		t.Fatalf("CompareAndSwap(stale empty) = (%v, %v), want not swapped", swapped, err)
	}

	swapped, err = s.CompareAndSwap(ctx, "admins", "1", "1,2")
	if err != nil || !swapped {
		t.Fatalf("CompareAndSwap(match) = (%v, %v), want swapped", swapped, err)
	}

	if v, _, _ := s.Get(ctx, "admins"); v != "1,2" {
		t.Errorf("admins = %q, want 1,2", v)
	}
}

func TestStore_CompareAndSwapConcurrent(t *testing.T) {
	s := openTestStore(t, "")
	ctx := context.Background()

	const workers = 8
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		won int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			ok, err := s.CompareAndSwap(ctx, "admins", "", string(rune('a'+id)))
			if err != nil {
				t.Errorf("CompareAndSwap() error = %v", err)
				return
			}
			if ok {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if won != 1 {
		t.Errorf("%d callers won the swap, want exactly 1", won)
	}
}

func TestStore_HealthCheck(t *testing.T) {
	s := openTestStore(t, "")
	if err := s.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}
