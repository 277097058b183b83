package mx

import (
	"context"
	"net"
	"testing"
)

type fakeResolver struct {
	records map[string][]*net.MX
	errs    map[string]error
	calls   map[string]int
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		records: make(map[string][]*net.MX),
		errs:    make(map[string]error),
		calls:   make(map[string]int),
	}
}

func (f *fakeResolver) LookupMX(_ context.Context, domain string) ([]*net.MX, error) {
	f.calls[domain]++
	if err, ok := f.errs[domain]; ok {
		return nil, err
	}
	return f.records[domain], nil
}

func TestValidEmailFormat(t *testing.T) {
	valid := []string{"a@b.com", "first.last@sub.domain.io", " padded@x.co "}
	for _, e := range valid {
		if !ValidEmailFormat(e) {
			t.Errorf("expected %q to be valid", e)
		}
	}
	invalid := []string{"", "no-at-sign", "two@@x.com", "a@nodot", "spaces in@x.com"}
	for _, e := range invalid {
		if ValidEmailFormat(e) {
			t.Errorf("expected %q to be invalid", e)
		}
	}
}

func TestDomain(t *testing.T) {
	if d := Domain("User@Example.COM"); d != "example.com" {
		t.Errorf("expected example.com, got %q", d)
	}
	if d := Domain("no-at"); d != "" {
		t.Errorf("expected empty domain, got %q", d)
	}
}

func TestCheckDomainWithMX(t *testing.T) {
	r := newFakeResolver()
	r.records["good.com"] = []*net.MX{{Host: "mx.good.com", Pref: 10}}
	c := NewChecker(r)
	if !c.CheckDomain(context.Background(), "good.com") {
		t.Error("expected good.com to validate")
	}
}

func TestCheckDomainNotFound(t *testing.T) {
	r := newFakeResolver()
	r.errs["gone.com"] = &net.DNSError{Err: "no such host", Name: "gone.com", IsNotFound: true}
	c := NewChecker(r)
	if c.CheckDomain(context.Background(), "gone.com") {
		t.Error("expected gone.com to fail")
	}
	// Negative result is cached.
	c.CheckDomain(context.Background(), "gone.com")
	if r.calls["gone.com"] != 1 {
		t.Errorf("expected 1 lookup, got %d", r.calls["gone.com"])
	}
}

func TestCheckDomainNoRecords(t *testing.T) {
	r := newFakeResolver()
	r.records["empty.com"] = nil
	c := NewChecker(r)
	if c.CheckDomain(context.Background(), "empty.com") {
		t.Error("expected domain without MX records to fail")
	}
}

func TestCheckDomainTimeoutAcceptedNotCached(t *testing.T) {
	r := newFakeResolver()
	r.errs["slow.com"] = &net.DNSError{Err: "i/o timeout", Name: "slow.com", IsTimeout: true}
	c := NewChecker(r)
	if !c.CheckDomain(context.Background(), "slow.com") {
		t.Error("timeout should give the domain the benefit of the doubt")
	}
	c.CheckDomain(context.Background(), "slow.com")
	if r.calls["slow.com"] != 2 {
		t.Errorf("timeout result must not be cached, got %d lookups", r.calls["slow.com"])
	}
}

func TestCheckDomainCaseFolding(t *testing.T) {
	r := newFakeResolver()
	r.records["good.com"] = []*net.MX{{Host: "mx.good.com", Pref: 10}}
	c := NewChecker(r)
	c.CheckDomain(context.Background(), "GOOD.com")
	c.CheckDomain(context.Background(), " good.com ")
	if r.calls["good.com"] != 1 {
		t.Errorf("expected single lookup via cache, got %d", r.calls["good.com"])
	}
}

func TestCheckDomains(t *testing.T) {
	r := newFakeResolver()
	r.records["a.com"] = []*net.MX{{Host: "mx.a.com", Pref: 10}}
	r.errs["b.com"] = &net.DNSError{Err: "no such host", Name: "b.com", IsNotFound: true}
	c := NewChecker(r)

	results := c.CheckDomains(context.Background(), []string{"a.com", "b.com"})
	if !results["a.com"] || results["b.com"] {
		t.Errorf("unexpected results: %v", results)
	}
}
