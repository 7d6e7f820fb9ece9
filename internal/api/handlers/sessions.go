package handlers

import (
	"errors"
	"net"
	"net/http"
	"time"

	"nearest-store-service/internal/adapters/export"
	"nearest-store-service/internal/adapters/geoip"
	"nearest-store-service/internal/adapters/mapsurface"
	"nearest-store-service/internal/api/dto"
	"nearest-store-service/internal/domain"
	"nearest-store-service/internal/ports"
	"nearest-store-service/internal/services"
	"nearest-store-service/internal/services/mapsync"
	"nearest-store-service/internal/services/session"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// IPLocator maps a client address to a position source.
type IPLocator interface {
	ForIP(ip net.IP) ports.PositionSource
}

// SessionHandler exposes the map session endpoints.
type SessionHandler struct {
	Sessions  *session.Manager
	GeoIP     IPLocator
	Districts []string
	Log       *zap.Logger
}

func (h *SessionHandler) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := h.Sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			writeError(w, r, h.Log, http.StatusNotFound, "session not found")
			return nil, false
		}
		h.Log.Error("get session failed", zap.Error(err))
		writeError(w, r, h.Log, http.StatusInternalServerError, "internal server error")
		return nil, false
	}
	return s, true
}

// Create opens a map session. The body may carry an explicit {lat, lon};
// otherwise the client address is located through GeoIP.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.PositionRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		writeError(w, r, h.Log, http.StatusBadRequest, err.Error())
		return
	}

	var src ports.PositionSource = ports.UnavailableSource{}
	switch {
	case req.Lat != nil && req.Lon != nil:
		p := domain.Position{Lat: *req.Lat, Lon: *req.Lon}
		if !p.Valid() {
			writeError(w, r, h.Log, http.StatusBadRequest, "lat/lon out of range")
			return
		}
		src = ports.StaticSource(p)
	case req.Lat != nil || req.Lon != nil:
		writeError(w, r, h.Log, http.StatusBadRequest, "lat and lon must be given together")
		return
	case h.GeoIP != nil:
		src = h.GeoIP.ForIP(geoip.ClientIP(r.RemoteAddr, r.Header.Get("X-Forwarded-For"), r.Header.Get("X-Real-IP")))
	}

	s, _, _, err := h.Sessions.Create(r.Context(), src)
	if err != nil {
		h.Log.Error("create session failed", zap.Error(err))
		writeError(w, r, h.Log, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Location", "/sessions/"+s.ID)
	writeJSON(w, r, h.Log, http.StatusCreated, sessionResponse(s.ID, s.Controller.Snapshot()))
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, r, h.Log, http.StatusOK, sessionResponse(s.ID, s.Controller.Snapshot()))
}

func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Sessions.Close(chi.URLParam(r, "id")); err != nil {
		writeError(w, r, h.Log, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Stores lists the ranked stores of the last applied query cycle.
func (h *SessionHandler) Stores(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	snap := s.Controller.Snapshot()
	res := dto.ListStoresResponse{
		Generation: snap.Generation,
		Source:     snap.Source,
		Stores:     make([]dto.StoreResponse, 0, len(snap.Stores)),
	}
	for i, st := range snap.Stores {
		res.Stores = append(res.Stores, storeResponse(i+1, st))
	}

	writeJSON(w, r, h.Log, http.StatusOK, res)
}

// StoresXLSX exports the ranked stores as a spreadsheet.
func (h *SessionHandler) StoresXLSX(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="tiendas-cercanas.xlsx"`)
	if err := export.WriteRankedStores(w, s.Controller.CurrentRankedStores()); err != nil {
		h.Log.Error("export stores failed", zap.String("session", s.ID), zap.Error(err))
	}
}

func (h *SessionHandler) Selected(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	st, found := s.Controller.SelectedStore()
	if !found {
		writeError(w, r, h.Log, http.StatusNotFound, "no store selected")
		return
	}

	rank := 0
	for i, c := range s.Controller.CurrentRankedStores() {
		if c.ExternalID == st.ExternalID {
			rank = i + 1
			break
		}
	}
	writeJSON(w, r, h.Log, http.StatusOK, storeResponse(rank, st))
}

// Relocate moves the reference position; the new cycle runs asynchronously.
func (h *SessionHandler) Relocate(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req dto.PositionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.Log, http.StatusBadRequest, err.Error())
		return
	}
	if req.Lat == nil || req.Lon == nil {
		writeError(w, r, h.Log, http.StatusBadRequest, "lat and lon are required")
		return
	}

	if err := s.Controller.Relocate(domain.Position{Lat: *req.Lat, Lon: *req.Lon}); err != nil {
		h.controllerError(w, r, s.ID, "relocate", err)
		return
	}

	writeJSON(w, r, h.Log, http.StatusAccepted, map[string]uint64{"generation": s.Controller.Generation()})
}

func (h *SessionHandler) Select(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req dto.SelectionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.Log, http.StatusBadRequest, err.Error())
		return
	}
	if req.StoreID == "" {
		writeError(w, r, h.Log, http.StatusBadRequest, "store_id is required")
		return
	}

	if err := s.Controller.SelectStore(req.StoreID); err != nil {
		h.controllerError(w, r, s.ID, "select store", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeliveryLocation returns the confirmed delivery point handed to checkout.
func (h *SessionHandler) DeliveryLocation(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	snap := s.Controller.Snapshot()
	districts := h.Districts
	if len(districts) == 0 {
		districts = services.DefaultDistricts
	}

	writeJSON(w, r, h.Log, http.StatusOK, dto.DeliveryLocationResponse{
		Address:   snap.Address,
		Lat:       snap.Reference.Lat,
		Lon:       snap.Reference.Lon,
		District:  services.ExtractDistrict(snap.Address, districts),
		Timestamp: time.Now().UTC(),
	})
}

// Map upgrades to a websocket carrying map commands and click events.
// The full map state is redrawn on every attach.
func (h *SessionHandler) Map(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	conn, err := mapsurface.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Log.Warn("websocket upgrade failed", zap.String("session", s.ID), zap.Error(err))
		return
	}

	err = s.Surface.Serve(r.Context(), conn, func() {
		s.Touch()
		s.Controller.Redraw()
	})
	s.Touch()
	if err != nil {
		h.Log.Debug("map stream ended", zap.String("session", s.ID), zap.Error(err))
	}
}

// controllerError maps a controller failure to a response status.
// Only a bad position is the client's fault.
func (h *SessionHandler) controllerError(w http.ResponseWriter, r *http.Request, id, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidPosition):
		writeError(w, r, h.Log, http.StatusBadRequest, "lat/lon out of range")
	case errors.Is(err, domain.ErrUnknownStore):
		writeError(w, r, h.Log, http.StatusNotFound, "unknown store")
	case errors.Is(err, domain.ErrSessionClosed):
		writeError(w, r, h.Log, http.StatusGone, "session closed")
	default:
		h.Log.Error(op+" failed", zap.String("session", id), zap.Error(err))
		writeError(w, r, h.Log, http.StatusInternalServerError, "internal server error")
	}
}

func sessionResponse(id string, snap mapsync.Snapshot) dto.SessionResponse {
	return dto.SessionResponse{
		ID:              id,
		State:           snap.State.String(),
		Generation:      snap.Generation,
		Position:        dto.PositionResponse{Lat: snap.Reference.Lat, Lon: snap.Reference.Lon},
		Degraded:        snap.Degraded,
		Address:         snap.Address,
		Source:          snap.Source,
		SelectedStoreID: snap.SelectedStoreID,
		StoreCount:      len(snap.Stores),
	}
}

func storeResponse(rank int, s domain.RankedStore) dto.StoreResponse {
	return dto.StoreResponse{
		Rank:       rank,
		ID:         s.ExternalID,
		Name:       s.Name,
		Address:    s.Address,
		Lat:        s.Position.Lat,
		Lon:        s.Position.Lon,
		DistanceKm: s.DistanceKm,
		ETAMinutes: s.ETAMinutes,
		Phone:      s.Phone(),
		Hours:      s.Hours(),
	}
}
