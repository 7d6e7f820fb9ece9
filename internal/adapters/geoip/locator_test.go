package geoip

import (
	"context"
	"errors"
	"net"
	"testing"

	"nearest-store-service/internal/domain"

	"github.com/oschwald/geoip2-golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader map[string]*geoip2.City

func (f fakeReader) City(ip net.IP) (*geoip2.City, error) {
	if rec, ok := f[ip.String()]; ok {
		return rec, nil
	}
	return nil, errors.New("not found")
}

func cityAt(lat, lon float64) *geoip2.City {
	rec := &geoip2.City{}
	rec.Location.Latitude = lat
	rec.Location.Longitude = lon
	return rec
}

func TestLocator_Lookup(t *testing.T) {
	l := &Locator{reader: fakeReader{
		"190.12.0.1": cityAt(-12.0432, -77.0282),
		"190.12.0.2": cityAt(0, 0),
	}}

	p, err := l.Lookup(net.ParseIP("190.12.0.1"))
	require.NoError(t, err)
	assert.Equal(t, domain.Position{Lat: -12.0432, Lon: -77.0282}, p)

	_, err = l.Lookup(net.ParseIP("190.12.0.2"))
	assert.ErrorIs(t, err, domain.ErrPositionUnavailable)

	_, err = l.Lookup(net.ParseIP("190.12.0.9"))
	assert.ErrorIs(t, err, domain.ErrPositionUnavailable)

	_, err = l.Lookup(net.ParseIP("127.0.0.1"))
	assert.ErrorIs(t, err, domain.ErrPositionUnavailable)

	_, err = l.Lookup(net.ParseIP("10.1.2.3"))
	assert.ErrorIs(t, err, domain.ErrPositionUnavailable)
}

func TestLocator_ForIP(t *testing.T) {
	l := &Locator{reader: fakeReader{"190.12.0.1": cityAt(-12.0432, -77.0282)}}

	p, err := l.ForIP(net.ParseIP("190.12.0.1")).Locate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, -12.0432, p.Lat)

	var nilLocator *Locator
	_, err = nilLocator.ForIP(net.ParseIP("190.12.0.1")).Locate(context.Background())
	assert.ErrorIs(t, err, domain.ErrPositionUnavailable)
}

func TestClientIP(t *testing.T) {
	assert.Equal(t, "203.0.113.7", ClientIP("10.0.0.1:5555", "203.0.113.7, 10.0.0.1", "").String())
	assert.Equal(t, "198.51.100.4", ClientIP("10.0.0.1:5555", "", "198.51.100.4").String())
	assert.Equal(t, "192.0.2.10", ClientIP("192.0.2.10:41000", "", "").String())
	assert.Nil(t, ClientIP("garbage", "", ""))
}
