// Package geo resolves client IPs to coarse locations used to enrich
// targeting contexts when a profile carries no location.
package geo

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/oschwald/geoip2-golang"
)

// Info holds the location attributes derived from an IP.
type Info struct {
	Country     string
	CountryCode string
	Region      string
	City        string
}

// Provider resolves an IP address to geographic information.
type Provider interface {
	Lookup(ip string) (*Info, error)
	Close() error
}

// MaxMindProvider implements Provider using a MaxMind GeoLite2 database.
type MaxMindProvider struct {
	reader *geoip2.Reader
}

// NewMaxMindProvider opens the GeoLite2 database at dbPath.
func NewMaxMindProvider(dbPath string) (*MaxMindProvider, error) {
	reader, err := geoip2.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open GeoIP database: %w", err)
	}
	return &MaxMindProvider{reader: reader}, nil
}

// Lookup returns geo information for an IP address.
func (m *MaxMindProvider) Lookup(ip string) (*Info, error) {
	parsedIP := net.ParseIP(ip)
	if parsedIP == nil {
		return nil, fmt.Errorf("invalid IP address: %s", ip)
	}

	record, err := m.reader.City(parsedIP)
	if err != nil {
		return nil, err
	}

	info := &Info{
		Country:     record.Country.Names["en"],
		CountryCode: record.Country.IsoCode,
		City:        record.City.Names["en"],
	}
	if len(record.Subdivisions) > 0 {
		info.Region = record.Subdivisions[0].Names["en"]
	}
	return info, nil
}

// Close closes the GeoIP database.
func (m *MaxMindProvider) Close() error {
	if m.reader != nil {
		return m.reader.Close()
	}
	return nil
}

// CachedProvider wraps a Provider with a TTL'd in-process cache. Lookups for
// the same IP within the TTL hit the cache; the cache evicts wholesale when
// it outgrows maxSize.
type CachedProvider struct {
	inner   Provider
	mu      sync.RWMutex
	entries map[string]cacheEntry
	maxSize int
	ttl     time.Duration
}

type cacheEntry struct {
	info      *Info
	expiresAt time.Time
}

// NewCachedProvider wraps inner with a lookup cache.
func NewCachedProvider(inner Provider, maxSize int, ttl time.Duration) *CachedProvider {
	return &CachedProvider{
		inner:   inner,
		entries: make(map[string]cacheEntry),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

func (c *CachedProvider) Lookup(ip string) (*Info, error) {
	c.mu.RLock()
	entry, ok := c.entries[ip]
	c.mu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return entry.info, nil
	}

	info, err := c.inner.Lookup(ip)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if len(c.entries) >= c.maxSize {
		c.entries = make(map[string]cacheEntry)
	}
	c.entries[ip] = cacheEntry{info: info, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()

	return info, nil
}

func (c *CachedProvider) Close() error {
	return c.inner.Close()
}
