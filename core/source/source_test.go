package source

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gocircum/nordconnect/core/catalog"
	"github.com/gocircum/nordconnect/pkg/logging"
	"github.com/oschwald/geoip2-golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const apiBody = `[
 {"name":"United States #1","domain":"us1.nordvpn.com","ip_address":"192.0.2.1","flag":"US","country":"United States","load":12,
  "categories":[{"name":"Standard VPN servers"}],"features":{"openvpn_udp":true},"location":{"lat":40.7,"long":-74}},
 {"name":"Germany #2","domain":"de2.nordvpn.com","ip_address":"192.0.2.2","flag":"DE","country":"Germany","load":40,
  "categories":[{"name":"P2P"}],"features":{"openvpn_tcp":true},"location":{"lat":50.1,"long":8.6}}
]`

type fetchFunc func(ctx context.Context) ([]catalog.RawServer, error)

func (f fetchFunc) Fetch(ctx context.Context) ([]catalog.RawServer, error) { return f(ctx) }

func TestHTTP_FetchDecodesAndCaches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(apiBody))
	}))
	defer srv.Close()

	cache := filepath.Join(t.TempDir(), "nested", "servers.json")
	src := NewHTTP(srv.URL, 5*time.Second, cache, logging.NewNop())

	servers, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, servers, 2)
	assert.Equal(t, "us1.nordvpn.com", servers[0].Domain)
	assert.Equal(t, 40, servers[1].Load)
	assert.Equal(t, "P2P", servers[1].Categories[0].Name)

	cached, err := NewFile(cache).Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, servers, cached)
}

func TestHTTP_FetchErrors(t *testing.T) {
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		maxBytes int64
		errorMsg string
	}{
		{
			name:     "Bad_Status",
			handler:  func(w http.ResponseWriter, r *http.Request) { http.Error(w, "nope", http.StatusBadGateway) },
			errorMsg: "502",
		},
		{
			name:     "Malformed_JSON",
			handler:  func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("{not json")) },
			errorMsg: "malformed server list",
		},
		{
			name:     "Too_Large",
			handler:  func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(apiBody)) },
			maxBytes: 10,
			errorMsg: "exceeds 10 bytes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			src := NewHTTP(srv.URL, time.Second, "", logging.NewNop())
			if tt.maxBytes > 0 {
				src.MaxBytes = tt.maxBytes
			}
			_, err := src.Fetch(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}

func TestFile_MissingFile(t *testing.T) {
	_, err := NewFile(filepath.Join(t.TempDir(), "missing.json")).Fetch(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFallback(t *testing.T) {
	ok := fetchFunc(func(context.Context) ([]catalog.RawServer, error) {
		return []catalog.RawServer{{Domain: "us1.nordvpn.com"}}, nil
	})
	failA := fetchFunc(func(context.Context) ([]catalog.RawServer, error) { return nil, errors.New("api down") })
	failB := fetchFunc(func(context.Context) ([]catalog.RawServer, error) { return nil, errors.New("no cache") })

	t.Run("PrimaryWins", func(t *testing.T) {
		servers, err := (&Fallback{Primary: ok, Secondary: failB}).Fetch(context.Background())
		require.NoError(t, err)
		assert.Len(t, servers, 1)
	})

	t.Run("SecondaryUsed", func(t *testing.T) {
		servers, err := (&Fallback{Primary: failA, Secondary: ok}).Fetch(context.Background())
		require.NoError(t, err)
		assert.Len(t, servers, 1)
	})

	t.Run("BothFail", func(t *testing.T) {
		_, err := (&Fallback{Primary: failA, Secondary: failB}).Fetch(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "api down")
		assert.Contains(t, err.Error(), "no cache")
	})

	t.Run("NoSecondary", func(t *testing.T) {
		_, err := (&Fallback{Primary: failA}).Fetch(context.Background())
		assert.EqualError(t, err, "api down")
	})
}

type fakeCities map[string]string

func (f fakeCities) City(ip net.IP) (*geoip2.City, error) {
	name, ok := f[ip.String()]
	if !ok {
		return nil, errors.New("not found")
	}
	record := &geoip2.City{}
	record.City.Names = map[string]string{"en": name}
	return record, nil
}

func TestGeoEnricher_FillsMissingAreas(t *testing.T) {
	inner := fetchFunc(func(context.Context) ([]catalog.RawServer, error) {
		return []catalog.RawServer{
			{Domain: "de1.nordvpn.com", IPAddress: "192.0.2.10"},
			{Domain: "de2.nordvpn.com", IPAddress: "192.0.2.11", Area: "Berlin"},
			{Domain: "de3.nordvpn.com", IPAddress: "192.0.2.12"},
			{Domain: "de4.nordvpn.com", IPAddress: "not-an-ip"},
		}, nil
	})
	geo := NewGeoEnricher(inner, fakeCities{"192.0.2.10": "Frankfurt", "192.0.2.11": "Hamburg"}, logging.NewNop())

	servers, err := geo.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Frankfurt", servers[0].Area)
	assert.Equal(t, "Berlin", servers[1].Area, "existing areas are kept")
	assert.Equal(t, "", servers[2].Area)
	assert.Equal(t, "", servers[3].Area)
	assert.NoError(t, geo.Close())
}

func TestOpenGeoEnricher_MissingDatabase(t *testing.T) {
	_, err := OpenGeoEnricher(NewFile("x"), filepath.Join(t.TempDir(), "nope.mmdb"), logging.NewNop())
	assert.Error(t, err)
}
