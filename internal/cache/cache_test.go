package cache

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"
)

type orgRecord struct {
	Name     string `json:"name"`
	Industry string `json:"industry"`
}

func TestSetThenGet(t *testing.T) {
	c := New(t.TempDir(), 30, nil, "")
	ctx := context.Background()

	c.Set(ctx, "apollo_cache", "Example.com ", orgRecord{Name: "Example", Industry: "software"})

	raw, ok := c.Get(ctx, "apollo_cache", "example.com")
	if !ok {
		t.Fatal("expected cache hit (identifier is normalized before hashing)")
	}

	var got orgRecord
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Name != "Example" {
		t.Errorf("unexpected record %+v", got)
	}
}

func TestGetMiss(t *testing.T) {
	c := New(t.TempDir(), 30, nil, "")
	if _, ok := c.Get(context.Background(), "apollo_cache", "nope.com"); ok {
		t.Error("expected miss for unknown identifier")
	}
}

func TestExpiredEntryIsMiss(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, 30, nil, "")
	ctx := context.Background()

	c.Set(ctx, "apollo_cache", "stale.com", orgRecord{Name: "Stale"})

	// Backdate the stored timestamp past the 30-day horizon.
	collection := c.readLocal("apollo_cache")
	key := cacheKey("stale.com")
	e := collection[key]
	e.Timestamp = time.Now().AddDate(0, 0, -31).Format(time.RFC3339)
	collection[key] = e
	data, _ := json.Marshal(collection)
	if err := os.WriteFile(c.filePath("apollo_cache"), data, 0o644); err != nil {
		t.Fatal(err)
	}

	// Fresh cache instance so the memory tier cannot mask the file.
	c2 := New(dir, 30, nil, "")
	if _, ok := c2.Get(ctx, "apollo_cache", "stale.com"); ok {
		t.Error("expired entry must read as a miss")
	}

	// The record is still physically present until the next rewrite.
	if _, present := c2.readLocal("apollo_cache")[key]; !present {
		t.Error("expired entry should remain in the file")
	}
}

func TestSetRewritesWholeCollection(t *testing.T) {
	c := New(t.TempDir(), 30, nil, "")
	ctx := context.Background()

	c.Set(ctx, "apollo_cache", "a.com", orgRecord{Name: "A"})
	c.Set(ctx, "apollo_cache", "b.com", orgRecord{Name: "B"})

	collection := c.readLocal("apollo_cache")
	if len(collection) != 2 {
		t.Fatalf("expected both entries in the collection, got %d", len(collection))
	}
}

func TestLoadSaveFull(t *testing.T) {
	c := New(t.TempDir(), 30, nil, "")
	ctx := context.Background()

	type history struct {
		Runs []string `json:"runs"`
	}

	var out history
	if c.LoadFull(ctx, "runs_history", &out) {
		t.Error("expected LoadFull to report false for missing collection")
	}

	c.SaveFull(ctx, "runs_history", history{Runs: []string{"r1", "r2"}})

	if !c.LoadFull(ctx, "runs_history", &out) {
		t.Fatal("expected LoadFull to succeed after SaveFull")
	}
	if len(out.Runs) != 2 || out.Runs[0] != "r1" {
		t.Errorf("unexpected collection %+v", out)
	}
}
