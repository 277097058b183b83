package cache

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	memoryTTL        = 5 * time.Minute
	memoryMaxEntries = 1000
)

// Mirror is a secondary durable tier (object storage). Both methods are best
// effort; errors are logged by the cache and never surfaced.
type Mirror interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
	Download(ctx context.Context, key string) ([]byte, error)
}

// entry is one cached lookup result. Entries are never deleted individually;
// readers treat anything older than the expiry horizon as absent.
type entry struct {
	Identifier string          `json:"identifier"`
	Data       json.RawMessage `json:"data"`
	Timestamp  string          `json:"timestamp"`
}

type memoryEntry struct {
	data      json.RawMessage
	expiresAt time.Time
}

// Cache is a two-tier expiring cache for externally-fetched enrichment
// results: a short-lived in-process map in front of per-namespace JSON files,
// optionally mirrored to object storage. Sets rewrite the whole namespace
// collection; acceptable only while collections stay small.
type Cache struct {
	dir        string
	expiryDays int
	mirror     Mirror
	bucket     string

	mu     sync.Mutex
	memory map[string]memoryEntry
}

func New(dir string, expiryDays int, mirror Mirror, bucket string) *Cache {
	if expiryDays <= 0 {
		expiryDays = 30
	}
	return &Cache{
		dir:        dir,
		expiryDays: expiryDays,
		mirror:     mirror,
		bucket:     bucket,
		memory:     make(map[string]memoryEntry),
	}
}

// MirrorEnabled reports whether a secondary durable tier is configured.
func (c *Cache) MirrorEnabled() bool { return c.mirror != nil }

// Bucket returns the mirror bucket name, if any.
func (c *Cache) Bucket() string {
	if c.mirror == nil {
		return ""
	}
	return c.bucket
}

// cacheKey hashes the normalized identifier into a fixed-length key.
func cacheKey(identifier string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(identifier))))
	return hex.EncodeToString(sum[:])
}

func (c *Cache) filePath(namespace string) string {
	return filepath.Join(c.dir, namespace+".json")
}

func (c *Cache) expired(timestamp string) bool {
	if timestamp == "" {
		return true
	}
	t, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return true
	}
	horizon := time.Now().AddDate(0, 0, -c.expiryDays)
	return t.Before(horizon)
}

// Get returns the cached payload for the identifier, or (nil, false) on miss.
// Entries past the expiry horizon count as misses even though the file still
// holds them until the next rewrite.
func (c *Cache) Get(ctx context.Context, namespace, identifier string) (json.RawMessage, bool) {
	key := cacheKey(identifier)
	memKey := namespace + ":" + key

	c.mu.Lock()
	me, ok := c.memory[memKey]
	c.mu.Unlock()
	if ok && time.Now().Before(me.expiresAt) {
		return me.data, true
	}

	if data, ok := c.lookupCollection(c.readLocal(namespace), key); ok {
		c.remember(memKey, data)
		log.Printf("cache: hit for %s", identifier)
		return data, true
	}

	if c.mirror != nil {
		if data, ok := c.lookupCollection(c.readMirror(ctx, namespace), key); ok {
			c.remember(memKey, data)
			log.Printf("cache: mirror hit for %s", identifier)
			return data, true
		}
	}

	return nil, false
}

// Set stores the payload under the identifier: memory first, then a whole
// collection rewrite of the namespace file, then the mirror.
func (c *Cache) Set(ctx context.Context, namespace, identifier string, value interface{}) {
	data, err := json.Marshal(value)
	if err != nil {
		log.Printf("cache: failed to marshal value for %s: %v", identifier, err)
		return
	}

	key := cacheKey(identifier)
	c.remember(namespace+":"+key, data)

	collection := c.readLocal(namespace)
	if collection == nil {
		collection = make(map[string]entry)
	}
	collection[key] = entry{
		Identifier: identifier,
		Data:       data,
		Timestamp:  time.Now().Format(time.RFC3339),
	}

	c.writeThrough(ctx, namespace, collection)
	log.Printf("cache: stored data for %s", identifier)
}

// LoadFull loads a whole namespace collection into out. Used for data that is
// itself a list (the run-history log) rather than a keyed lookup table.
// Missing or unreadable collections leave out untouched and return false.
func (c *Cache) LoadFull(ctx context.Context, namespace string, out interface{}) bool {
	if c.mirror != nil {
		if data := c.rawMirror(ctx, namespace); data != nil {
			if err := json.Unmarshal(data, out); err == nil {
				return true
			}
		}
	}

	data, err := os.ReadFile(c.filePath(namespace))
	if err != nil {
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		log.Printf("cache: failed to parse %s collection: %v", namespace, err)
		return false
	}
	return true
}

// SaveFull overwrites a whole namespace collection.
func (c *Cache) SaveFull(ctx context.Context, namespace string, value interface{}) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		log.Printf("cache: failed to marshal %s collection: %v", namespace, err)
		return
	}
	if err := os.WriteFile(c.filePath(namespace), data, 0o644); err != nil {
		log.Printf("cache: failed to write %s collection: %v", namespace, err)
	}
	c.mirrorUpload(ctx, namespace, data)
}

func (c *Cache) remember(memKey string, data json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.memory) >= memoryMaxEntries {
		// Cheap eviction: drop everything rather than tracking ages.
		c.memory = make(map[string]memoryEntry)
	}
	c.memory[memKey] = memoryEntry{data: data, expiresAt: time.Now().Add(memoryTTL)}
}

func (c *Cache) lookupCollection(collection map[string]entry, key string) (json.RawMessage, bool) {
	if collection == nil {
		return nil, false
	}
	e, ok := collection[key]
	if !ok || c.expired(e.Timestamp) {
		return nil, false
	}
	return e.Data, true
}

func (c *Cache) readLocal(namespace string) map[string]entry {
	data, err := os.ReadFile(c.filePath(namespace))
	if err != nil {
		return nil
	}
	var collection map[string]entry
	if err := json.Unmarshal(data, &collection); err != nil {
		log.Printf("cache: failed to parse local %s cache: %v", namespace, err)
		return nil
	}
	return collection
}

func (c *Cache) readMirror(ctx context.Context, namespace string) map[string]entry {
	data := c.rawMirror(ctx, namespace)
	if data == nil {
		return nil
	}
	var collection map[string]entry
	if err := json.Unmarshal(data, &collection); err != nil {
		log.Printf("cache: failed to parse mirrored %s cache: %v", namespace, err)
		return nil
	}
	return collection
}

func (c *Cache) rawMirror(ctx context.Context, namespace string) []byte {
	data, err := c.mirror.Download(ctx, namespace+".json")
	if err != nil {
		return nil
	}
	return data
}

func (c *Cache) writeThrough(ctx context.Context, namespace string, collection map[string]entry) {
	data, err := json.MarshalIndent(collection, "", "  ")
	if err != nil {
		log.Printf("cache: failed to marshal %s cache: %v", namespace, err)
		return
	}
	if err := os.WriteFile(c.filePath(namespace), data, 0o644); err != nil {
		log.Printf("cache: failed to write local %s cache: %v", namespace, err)
	}
	c.mirrorUpload(ctx, namespace, data)
}

func (c *Cache) mirrorUpload(ctx context.Context, namespace string, data []byte) {
	if c.mirror == nil {
		return
	}
	if _, err := c.mirror.Upload(ctx, namespace+".json", bytes.NewReader(data), "application/json"); err != nil {
		log.Printf("cache: failed to mirror %s cache: %v", namespace, err)
	}
}
