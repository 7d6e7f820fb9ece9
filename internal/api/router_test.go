package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nearest-store-service/internal/adapters/mapsurface"
	"nearest-store-service/internal/api/dto"
	"nearest-store-service/internal/domain"
	"nearest-store-service/internal/ports"
	"nearest-store-service/internal/services"
	"nearest-store-service/internal/services/session"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func store(id, name, address string, p domain.Position, km float64) domain.RankedStore {
	return domain.RankedStore{
		EnrichedCandidate: domain.EnrichedCandidate{
			RawCandidate: domain.RawCandidate{ExternalID: id, Name: name, Position: p},
			Address:      address,
		},
		DistanceKm: km,
		ETAMinutes: services.EstimateMinutes(km, 3, 10),
	}
}

type twoStores struct{}

func (twoStores) Locate(_ context.Context, ref domain.Position) services.LocateResult {
	return services.LocateResult{
		Source: services.SourceDirectory,
		Stores: []domain.RankedStore{
			store("node/1", "Tambo+ Arequipa", "Av. Arequipa 2650, Lince", domain.Position{Lat: ref.Lat + 0.001, Lon: ref.Lon}, 0.11),
			store("node/2", "Tambo+ Petit Thouars", "Av. Petit Thouars 3000, San Isidro", domain.Position{Lat: ref.Lat + 0.01, Lon: ref.Lon}, 1.11),
		},
	}
}

type constAddress string

func (a constAddress) ResolveAddress(context.Context, domain.Position) string { return string(a) }

type fixedGeoIP domain.Position

func (f fixedGeoIP) ForIP(net.IP) ports.PositionSource { return ports.StaticSource(f) }

func newTestServer(t *testing.T) (*httptest.Server, *session.Manager) {
	t.Helper()
	mgr := session.NewManager(session.Options{
		Locator:   twoStores{},
		Addresses: constAddress("Av. Arequipa 2600, Lince, Lima"),
		Provider:  services.NewPositionProvider(services.DefaultPosition, 100*time.Millisecond, nil),
		IdleTTL:   time.Minute,
	})
	t.Cleanup(mgr.CloseAll)

	srv := httptest.NewServer(NewRouter(Deps{
		Sessions: mgr,
		GeoIP:    fixedGeoIP{Lat: -12.09, Lon: -77.03},
	}))
	t.Cleanup(srv.Close)
	return srv, mgr
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	var rdr *bytes.Reader
	if body != "" {
		rdr = bytes.NewReader([]byte(body))
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, rdr)
	require.NoError(t, err)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { res.Body.Close() })
	return res
}

func decode[T any](t *testing.T, res *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(res.Body).Decode(&v))
	return v
}

// poll fetches url for use inside Eventually conditions, which must not fail the test directly.
func poll[T any](url string) (T, bool) {
	var v T
	res, err := http.Get(url)
	if err != nil {
		return v, false
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return v, false
	}
	return v, json.NewDecoder(res.Body).Decode(&v) == nil
}

func createSession(t *testing.T, srv *httptest.Server, body string) dto.SessionResponse {
	t.Helper()
	res := do(t, http.MethodPost, srv.URL+"/sessions", body)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	return decode[dto.SessionResponse](t, res)
}

func waitStores(t *testing.T, srv *httptest.Server, id string) dto.ListStoresResponse {
	t.Helper()
	var out dto.ListStoresResponse
	require.Eventually(t, func() bool {
		got, ok := poll[dto.ListStoresResponse](srv.URL + "/sessions/" + id + "/stores")
		if !ok {
			return false
		}
		out = got
		return len(out.Stores) > 0
	}, 2*time.Second, 20*time.Millisecond)
	return out
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	res := do(t, http.MethodGet, srv.URL+"/health", "")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.NotEmpty(t, res.Header.Get("X-Request-ID"))
	assert.Equal(t, map[string]string{"status": "ok"}, decode[map[string]string](t, res))
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	do(t, http.MethodGet, srv.URL+"/health", "")

	res := do(t, http.MethodGet, srv.URL+"/metrics", "")
	require.Equal(t, http.StatusOK, res.StatusCode)

	var buf bytes.Buffer
	_, _ = buf.ReadFrom(res.Body)
	assert.Contains(t, buf.String(), "nearest_store_http_requests_total")
}

func TestSessionLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)

	sess := createSession(t, srv, `{"lat": -12.085, "lon": -77.035}`)
	assert.False(t, sess.Degraded)
	assert.Equal(t, dto.PositionResponse{Lat: -12.085, Lon: -77.035}, sess.Position)

	stores := waitStores(t, srv, sess.ID)
	require.Len(t, stores.Stores, 2)
	assert.Equal(t, 1, stores.Stores[0].Rank)
	assert.Equal(t, "node/1", stores.Stores[0].ID)
	assert.Equal(t, "No disponible", stores.Stores[0].Phone)
	assert.Equal(t, services.SourceDirectory, stores.Source)

	res := do(t, http.MethodGet, srv.URL+"/sessions/"+sess.ID+"/selected", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "node/1", decode[dto.StoreResponse](t, res).ID)

	res = do(t, http.MethodPost, srv.URL+"/sessions/"+sess.ID+"/selection", `{"store_id": "node/2"}`)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)

	res = do(t, http.MethodGet, srv.URL+"/sessions/"+sess.ID+"/selected", "")
	sel := decode[dto.StoreResponse](t, res)
	assert.Equal(t, "node/2", sel.ID)
	assert.Equal(t, 2, sel.Rank)

	res = do(t, http.MethodPost, srv.URL+"/sessions/"+sess.ID+"/selection", `{"store_id": "node/404"}`)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res = do(t, http.MethodDelete, srv.URL+"/sessions/"+sess.ID, "")
	assert.Equal(t, http.StatusNoContent, res.StatusCode)

	res = do(t, http.MethodGet, srv.URL+"/sessions/"+sess.ID, "")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestCreateSession_GeoIPAndValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	sess := createSession(t, srv, "")
	assert.Equal(t, dto.PositionResponse{Lat: -12.09, Lon: -77.03}, sess.Position)
	assert.False(t, sess.Degraded)

	res := do(t, http.MethodPost, srv.URL+"/sessions", `{"lat": 200, "lon": 0}`)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res = do(t, http.MethodPost, srv.URL+"/sessions", `{"lat": -12}`)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res = do(t, http.MethodPost, srv.URL+"/sessions", `{"unknown": 1}`)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestRelocate(t *testing.T) {
	srv, _ := newTestServer(t)
	sess := createSession(t, srv, `{"lat": -12.085, "lon": -77.035}`)
	waitStores(t, srv, sess.ID)

	res := do(t, http.MethodPost, srv.URL+"/sessions/"+sess.ID+"/position", `{"lat": -12.12, "lon": -77.03}`)
	require.Equal(t, http.StatusAccepted, res.StatusCode)
	assert.Equal(t, uint64(2), decode[map[string]uint64](t, res)["generation"])

	require.Eventually(t, func() bool {
		s, ok := poll[dto.SessionResponse](srv.URL + "/sessions/" + sess.ID)
		return ok && s.State == "ready" && s.Position.Lat == -12.12
	}, 2*time.Second, 20*time.Millisecond)

	res = do(t, http.MethodPost, srv.URL+"/sessions/"+sess.ID+"/position", `{"lat": -12.12}`)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res = do(t, http.MethodPost, srv.URL+"/sessions/"+sess.ID+"/position", `{"lat": 95, "lon": -77.03}`)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestControllerStopped_ReturnsGone(t *testing.T) {
	srv, mgr := newTestServer(t)
	sess := createSession(t, srv, `{"lat": -12.085, "lon": -77.035}`)
	waitStores(t, srv, sess.ID)

	s, err := mgr.Get(sess.ID)
	require.NoError(t, err)
	s.Controller.Close()
	<-s.Controller.Done()

	res := do(t, http.MethodPost, srv.URL+"/sessions/"+sess.ID+"/position", `{"lat": -12.12, "lon": -77.03}`)
	assert.Equal(t, http.StatusGone, res.StatusCode)

	res = do(t, http.MethodPost, srv.URL+"/sessions/"+sess.ID+"/selection", `{"store_id": "node/1"}`)
	assert.Equal(t, http.StatusGone, res.StatusCode)
}

func TestDeliveryLocation(t *testing.T) {
	srv, _ := newTestServer(t)
	sess := createSession(t, srv, `{"lat": -12.085, "lon": -77.035}`)
	waitStores(t, srv, sess.ID)

	res := do(t, http.MethodGet, srv.URL+"/sessions/"+sess.ID+"/delivery-location", "")
	require.Equal(t, http.StatusOK, res.StatusCode)

	loc := decode[dto.DeliveryLocationResponse](t, res)
	assert.Equal(t, "Av. Arequipa 2600, Lince, Lima", loc.Address)
	assert.Equal(t, "Lince", loc.District)
	assert.Equal(t, -12.085, loc.Lat)
	assert.False(t, loc.Timestamp.IsZero())
}

func TestStoresXLSX(t *testing.T) {
	srv, _ := newTestServer(t)
	sess := createSession(t, srv, `{"lat": -12.085, "lon": -77.035}`)
	waitStores(t, srv, sess.ID)

	res := do(t, http.MethodGet, srv.URL+"/sessions/"+sess.ID+"/stores.xlsx", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, res.Header.Get("Content-Type"), "spreadsheetml")

	f, err := excelize.OpenReader(res.Body)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Tiendas")
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestMapWebsocket_RedrawOnAttach(t *testing.T) {
	srv, _ := newTestServer(t)
	sess := createSession(t, srv, `{"lat": -12.085, "lon": -77.035}`)
	waitStores(t, srv, sess.ID)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/sessions/" + sess.ID + "/map"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	ops := map[string]int{}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for ops[mapsurface.OpFitBounds] == 0 {
		var cmd mapsurface.Command
		require.NoError(t, conn.ReadJSON(&cmd))
		ops[cmd.Op]++
	}
	assert.Equal(t, 3, ops[mapsurface.OpAddMarker])
	assert.Equal(t, 1, ops[mapsurface.OpDrawLine])

	require.NoError(t, conn.WriteJSON(mapsurface.Event{Type: mapsurface.EventMarkerClick, ID: "store:node/2"}))
	require.Eventually(t, func() bool {
		sel, ok := poll[dto.StoreResponse](srv.URL + "/sessions/" + sess.ID + "/selected")
		return ok && sel.ID == "node/2"
	}, 2*time.Second, 20*time.Millisecond)
}

func TestUnknownSession(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, path := range []string{"", "/stores", "/selected", "/delivery-location", "/stores.xlsx"} {
		res := do(t, http.MethodGet, srv.URL+"/sessions/missing"+path, "")
		assert.Equal(t, http.StatusNotFound, res.StatusCode, path)
	}
}
