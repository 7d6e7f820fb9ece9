package directory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nearest-store-service/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleResponse = `{
  "version": 0.6,
  "elements": [
    {"type": "node", "id": 101, "lat": -12.0470, "lon": -77.0430,
     "tags": {"name": "Tambo+ Centro", "phone": "(01) 111-2222", "opening_hours": "07:00-23:00"}},
    {"type": "way", "id": 202, "center": {"lat": -12.0500, "lon": -77.0400},
     "tags": {"name": "Tambo Plaza"}},
    {"type": "node", "id": 303, "lat": -12.0480, "lon": -77.0420,
     "tags": {"name": "Parque Limatambo"}},
    {"type": "node", "id": 404, "lat": -12.0490, "lon": -77.0410,
     "tags": {"name": "CAJATAMBO market"}},
    {"type": "way", "id": 505, "tags": {"name": "Tambo sin coordenadas"}},
    {"type": "node", "id": 606, "lat": -12.0460, "lon": -77.0440, "tags": {}}
  ]
}`

func newTestClient(url string, timeout time.Duration) *OverpassClient {
	return NewOverpassClient(Options{
		Endpoint:  url,
		UserAgent: "nearest-store-test",
		Timeout:   timeout,
		Excluded:  []string{"limatambo", "cajatambo"},
	})
}

func TestOverpassClient_SearchFiltersAndDecodes(t *testing.T) {
	var gotQuery, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		gotQuery = r.PostForm.Get("data")
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, time.Second)
	got, err := c.Search(context.Background(), domain.Position{Lat: -12.0464, Lon: -77.0428}, 1000, "Tambo")
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "node/101", got[0].ExternalID)
	assert.Equal(t, "Tambo+ Centro", got[0].Name)
	assert.Equal(t, domain.Position{Lat: -12.0470, Lon: -77.0430}, got[0].Position)
	assert.Equal(t, "(01) 111-2222", got[0].Phone())
	assert.Equal(t, "07:00-23:00", got[0].Hours())

	assert.Equal(t, "way/202", got[1].ExternalID)
	assert.Equal(t, domain.Position{Lat: -12.0500, Lon: -77.0400}, got[1].Position)
	assert.Equal(t, "No disponible", got[1].Phone())

	assert.Contains(t, gotQuery, `node["name"~"Tambo",i](around:1000,-12.0464,-77.0428);`)
	assert.Contains(t, gotQuery, `way["name"~"Tambo",i](around:1000,-12.0464,-77.0428);`)
	assert.Contains(t, gotQuery, "out center 25;")
	assert.Equal(t, "nearest-store-test", gotUA)
}

func TestOverpassClient_EmptyAnswerIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"elements": []}`))
	}))
	defer srv.Close()

	got, err := newTestClient(srv.URL, time.Second).Search(context.Background(), domain.Position{Lat: -12, Lon: -77}, 1000, "Tambo")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestOverpassClient_FailuresAreSearchFailed(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "overloaded", http.StatusTooManyRequests)
			},
		},
		{
			name: "malformed json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"elements": [`))
			},
		},
		{
			name: "missing elements",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"remark": "runtime error"}`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := newTestClient(srv.URL, time.Second).Search(context.Background(), domain.Position{Lat: -12, Lon: -77}, 1000, "Tambo")
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrDirectorySearchFailed)
		})
	}
}

func TestOverpassClient_TimeoutIsBounded(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	_, err := newTestClient(srv.URL, 100*time.Millisecond).Search(context.Background(), domain.Position{Lat: -12, Lon: -77}, 1000, "Tambo")
	elapsed := time.Since(start)

	require.ErrorIs(t, err, domain.ErrDirectorySearchFailed)
	assert.Less(t, elapsed, time.Second)
}

func TestBuildQuery(t *testing.T) {
	q := BuildQuery(domain.Position{Lat: -12.1, Lon: -77.05}, 500, `Ta"mbo`, 3*time.Second, 10)

	assert.True(t, strings.HasPrefix(q, "[out:json][timeout:3];"))
	assert.Contains(t, q, `node["name"~"Ta\"mbo",i](around:500,-12.1,-77.05);`)
	assert.True(t, strings.HasSuffix(q, "out center 10;"))
}
