package mx

import (
	"context"
	"errors"
	"net"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Resolver is the DNS surface the checker needs. *net.Resolver satisfies it.
type Resolver interface {
	LookupMX(ctx context.Context, domain string) ([]*net.MX, error)
}

const (
	lookupTimeout = 4 * time.Second
	cacheTTL      = time.Hour
	// maxInFlight bounds concurrent DNS lookups across all batches.
	maxInFlight = 200
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// ValidEmailFormat reports whether s looks like an email address. This is a
// cheap shape check, not RFC 5322 validation.
func ValidEmailFormat(s string) bool {
	return emailPattern.MatchString(strings.TrimSpace(s))
}

// Domain extracts the lowercased domain part of an email address.
func Domain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(email[at+1:]))
}

type cacheEntry struct {
	valid   bool
	expires time.Time
}

// Checker verifies that domains can receive mail by looking up MX records.
// Results are cached for an hour. Lookups that fail for infrastructure
// reasons (timeout, unreachable nameservers) count the domain as valid but
// are never cached, so a transient outage does not poison the cache.
type Checker struct {
	resolver Resolver
	sem      *semaphore.Weighted

	mu    sync.Mutex
	cache map[string]cacheEntry
}

func NewChecker(resolver Resolver) *Checker {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return &Checker{
		resolver: resolver,
		sem:      semaphore.NewWeighted(maxInFlight),
		cache:    make(map[string]cacheEntry),
	}
}

// CheckDomain reports whether the domain has at least one MX record.
func (c *Checker) CheckDomain(ctx context.Context, domain string) bool {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return false
	}

	c.mu.Lock()
	if e, ok := c.cache[domain]; ok && time.Now().Before(e.expires) {
		c.mu.Unlock()
		return e.valid
	}
	c.mu.Unlock()

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return false
	}
	defer c.sem.Release(1)

	lctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	records, err := c.resolver.LookupMX(lctx, domain)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) {
			if dnsErr.IsNotFound {
				c.store(domain, false)
				return false
			}
			if dnsErr.IsTimeout || dnsErr.IsTemporary {
				// DNS infrastructure problem, not proof the domain is
				// bad. Accept it without caching.
				return true
			}
		}
		if lctx.Err() != nil {
			return true
		}
		return false
	}

	valid := len(records) > 0
	c.store(domain, valid)
	return valid
}

func (c *Checker) store(domain string, valid bool) {
	c.mu.Lock()
	c.cache[domain] = cacheEntry{valid: valid, expires: time.Now().Add(cacheTTL)}
	c.mu.Unlock()
}

// CheckDomains resolves a batch of domains concurrently and returns a
// domain→valid map. Input order does not matter; duplicates are deduplicated
// by the cache.
func (c *Checker) CheckDomains(ctx context.Context, domains []string) map[string]bool {
	results := make(map[string]bool, len(domains))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, d := range domains {
		d := d
		g.Go(func() error {
			valid := c.CheckDomain(gctx, d)
			mu.Lock()
			results[d] = valid
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}
