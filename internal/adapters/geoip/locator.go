package geoip

import (
	"context"
	"fmt"
	"net"
	"strings"

	"nearest-store-service/internal/domain"
	"nearest-store-service/internal/ports"

	"github.com/oschwald/geoip2-golang"
)

type cityReader interface {
	City(ip net.IP) (*geoip2.City, error)
}

// Locator resolves client IP addresses to approximate positions using a
// MaxMind GeoIP2 / GeoLite2 City database.
type Locator struct {
	reader cityReader
	closer func() error
}

// Open loads the City database at path.
func Open(path string) (*Locator, error) {
	r, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip database %q: %w", path, err)
	}
	return &Locator{reader: r, closer: r.Close}, nil
}

func (l *Locator) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}
	return l.closer()
}

// Lookup returns the city-level position of ip.
func (l *Locator) Lookup(ip net.IP) (domain.Position, error) {
	if l == nil || l.reader == nil {
		return domain.Position{}, domain.ErrPositionUnavailable
	}
	if ip == nil || ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() {
		return domain.Position{}, fmt.Errorf("%w: no public address", domain.ErrPositionUnavailable)
	}

	rec, err := l.reader.City(ip)
	if err != nil {
		return domain.Position{}, fmt.Errorf("%w: geoip lookup %s: %w", domain.ErrPositionUnavailable, ip, err)
	}

	// The database reports 0,0 for addresses it cannot place.
	p := domain.Position{Lat: rec.Location.Latitude, Lon: rec.Location.Longitude}
	if (p.Lat == 0 && p.Lon == 0) || !p.Valid() {
		return domain.Position{}, fmt.Errorf("%w: no location for %s", domain.ErrPositionUnavailable, ip)
	}
	return p, nil
}

// ForIP returns a PositionSource reading the position of a single client address.
func (l *Locator) ForIP(ip net.IP) ports.PositionSource {
	return ipSource{locator: l, ip: ip}
}

type ipSource struct {
	locator *Locator
	ip      net.IP
}

func (s ipSource) Locate(ctx context.Context) (domain.Position, error) {
	if err := ctx.Err(); err != nil {
		return domain.Position{}, fmt.Errorf("%w: %w", domain.ErrPositionUnavailable, err)
	}
	return s.locator.Lookup(s.ip)
}

// ClientIP extracts the caller address from X-Forwarded-For (first hop),
// X-Real-IP or the connection's remote address.
func ClientIP(remoteAddr, forwardedFor, realIP string) net.IP {
	if forwardedFor != "" {
		first, _, _ := strings.Cut(forwardedFor, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip
		}
	}
	if ip := net.ParseIP(strings.TrimSpace(realIP)); ip != nil {
		return ip
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	return net.ParseIP(host)
}
