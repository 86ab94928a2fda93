package cache

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func identity(s string) string { return s }

func prefixed(loads *atomic.Int32) func(context.Context, []string) (map[string]string, error) {
	return func(_ context.Context, keys []string) (map[string]string, error) {
		loads.Add(1)

		out := make(map[string]string, len(keys))
		for _, k := range keys {
			out[k] = "v-" + k
		}

		return out, nil
	}
}

func TestLoaderCache_miss_then_hit(t *testing.T) {
	var loads atomic.Int32

	c := NewLoaderCache[string, string](10, 0, identity)
	ctx := context.Background()

	values, hits, err := c.GetMany(ctx, []string{"a"}, prefixed(&loads))
	if err != nil {
		t.Fatal(err)
	}

	if hits != 0 {
		t.Errorf("hits = %d, expected miss", hits)
	}

	if values["a"] != "v-a" {
		t.Errorf("got %q", values["a"])
	}

	values, hits, err = c.GetMany(ctx, []string{"a"}, prefixed(&loads))
	if err != nil {
		t.Fatal(err)
	}

	if hits != 1 {
		t.Errorf("hits = %d, expected hit", hits)
	}

	if values["a"] != "v-a" {
		t.Errorf("got %q", values["a"])
	}

	if loads.Load() != 1 {
		t.Errorf("loads = %d", loads.Load())
	}
}

func TestLoaderCache_singleflight(t *testing.T) {
	var loads atomic.Int32

	c := NewLoaderCache[string, string](10, 0, identity)
	ctx := context.Background()

	var gate sync.WaitGroup
	gate.Add(1)

	var arrived atomic.Int32

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)

		// Same key set in a different order shares the flight.
		keys := []string{"x", "y"}
		if i%2 == 1 {
			keys = []string{"y", "x"}
		}

		go func() {
			defer wg.Done()

			if arrived.Add(1) == 10 {
				gate.Done()
			}

			gate.Wait()

			values, _, err := c.GetMany(ctx, keys, prefixed(&loads))
			if err != nil {
				t.Error(err)

				return
			}

			if values["x"] != "v-x" || values["y"] != "v-y" {
				t.Errorf("got %v", values)
			}
		}()
	}

	wg.Wait()

	// Overlapping callers share one load; scheduling may let some miss the overlap.
	if n := loads.Load(); n < 1 || n > 10 {
		t.Errorf("expected 1-10 loads, got %d", n)
	}
}

func TestLoaderCache_TTL(t *testing.T) {
	var loads atomic.Int32

	c := NewLoaderCache[string, string](10, 20*time.Millisecond, identity)
	ctx := context.Background()

	_, _, _ = c.GetMany(ctx, []string{"a"}, prefixed(&loads))

	time.Sleep(60 * time.Millisecond)

	_, hits, err := c.GetMany(ctx, []string{"a"}, prefixed(&loads))
	if err != nil {
		t.Fatal(err)
	}

	if hits != 0 {
		t.Error("expected miss after expiry")
	}

	if loads.Load() != 2 {
		t.Errorf("loads = %d", loads.Load())
	}
}

func TestLoaderCache_GetMany(t *testing.T) {
	c := NewLoaderCache[string, int](10, 0, identity)
	ctx := context.Background()

	var batches [][]string

	loadMany := func(_ context.Context, keys []string) (map[string]int, error) {
		sorted := append([]string(nil), keys...)
		sort.Strings(sorted)
		batches = append(batches, sorted)

		out := map[string]int{}

		for _, k := range keys {
			if k != "unknown" {
				out[k] = len(k)
			}
		}

		return out, nil
	}

	_, _, _ = c.GetMany(ctx, []string{"cached"}, func(context.Context, []string) (map[string]int, error) {
		return map[string]int{"cached": 100}, nil
	})

	values, hits, err := c.GetMany(ctx, []string{"cached", "ab", "abc", "ab", "unknown"}, loadMany)
	if err != nil {
		t.Fatal(err)
	}

	if hits != 1 {
		t.Errorf("hits = %d", hits)
	}

	want := map[string]int{"cached": 100, "ab": 2, "abc": 3}
	if len(values) != len(want) {
		t.Fatalf("values = %v", values)
	}

	for k, v := range want {
		if values[k] != v {
			t.Errorf("values[%q] = %d, want %d", k, values[k], v)
		}
	}

	if len(batches) != 1 || len(batches[0]) != 3 {
		t.Fatalf("batches = %v", batches)
	}

	// Loaded keys are cached; unknown keys are loaded again.
	_, hits, err = c.GetMany(ctx, []string{"ab", "abc", "unknown"}, loadMany)
	if err != nil {
		t.Fatal(err)
	}

	if hits != 2 {
		t.Errorf("hits = %d", hits)
	}

	if len(batches) != 2 || len(batches[1]) != 1 || batches[1][0] != "unknown" {
		t.Errorf("batches = %v", batches)
	}
}

func TestLoaderCache_GetMany_load_error(t *testing.T) {
	c := NewLoaderCache[string, string](10, 0, identity)
	ctx := context.Background()

	loadErr := errors.New("directory down")

	_, _, err := c.GetMany(ctx, []string{"a"}, func(context.Context, []string) (map[string]string, error) {
		return nil, loadErr
	})
	if !errors.Is(err, loadErr) {
		t.Errorf("got err %v", err)
	}

	var loads atomic.Int32

	_, hits, err := c.GetMany(ctx, []string{"a"}, prefixed(&loads))
	if err != nil {
		t.Fatal(err)
	}

	if hits != 0 || loads.Load() != 1 {
		t.Error("failed load should not be cached")
	}
}
