package geoip

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/oschwald/geoip2-golang"
	"github.com/patrickmn/go-cache"
)

// ErrUnavailable is returned when the resolver is not initialized.
var ErrUnavailable = errors.New("geoip resolver unavailable")

// countryDB is the subset of the MaxMind reader the resolver needs.
type countryDB interface {
	Country(ip net.IP) (*geoip2.Country, error)
	Close() error
}

// Resolver maps client IPs to ISO country codes for locale detection.
// Lookups are memoized because one browser session issues many requests
// from the same address.
type Resolver struct {
	db    countryDB
	cache *cache.Cache
}

// NewResolver opens the GeoIP database at path. An empty path yields a nil
// resolver, which callers treat as "no country hint".
func NewResolver(path string) (*Resolver, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geoip: open database: %w", err)
	}
	return newResolver(reader), nil
}

func newResolver(db countryDB) *Resolver {
	return &Resolver{db: db, cache: cache.New(time.Hour, 10*time.Minute)}
}

// CountryCode returns the ISO country code for ip, or "" for private and
// loopback addresses.
func (r *Resolver) CountryCode(ip string) (string, error) {
	if r == nil || r.db == nil {
		return "", ErrUnavailable
	}
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return "", fmt.Errorf("geoip: invalid ip %q", ip)
	}
	if parsed.IsLoopback() || parsed.IsPrivate() || parsed.IsUnspecified() {
		return "", nil
	}
	key := parsed.String()
	if v, ok := r.cache.Get(key); ok {
		return v.(string), nil
	}
	record, err := r.db.Country(parsed)
	if err != nil {
		return "", fmt.Errorf("geoip: lookup country: %w", err)
	}
	code := ""
	if record != nil {
		code = strings.ToUpper(record.Country.IsoCode)
	}
	r.cache.SetDefault(key, code)
	return code, nil
}

// Close closes the underlying database reader.
func (r *Resolver) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}
