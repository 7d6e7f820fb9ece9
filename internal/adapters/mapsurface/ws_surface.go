package mapsurface

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"nearest-store-service/internal/domain"
	"nearest-store-service/internal/ports"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 25 * time.Second
)

// Command ops sent to the browser.
const (
	OpAddMarker    = "add_marker"
	OpMoveMarker   = "move_marker"
	OpRemoveMarker = "remove_marker"
	OpDrawLine     = "draw_line"
	OpClearLine    = "clear_line"
	OpFitBounds    = "fit_bounds"
)

// Event types received from the browser.
const (
	EventClick       = "click"
	EventMarkerClick = "marker_click"
)

// Command is one map instruction serialized as JSON.
type Command struct {
	Op       string           `json:"op"`
	Marker   *ports.Marker    `json:"marker,omitempty"`
	ID       string           `json:"id,omitempty"`
	Position *domain.Position `json:"position,omitempty"`
	From     *domain.Position `json:"from,omitempty"`
	To       *domain.Position `json:"to,omitempty"`
}

// Event is a user interaction reported by the browser.
type Event struct {
	Type string  `json:"type"`
	Lat  float64 `json:"lat,omitempty"`
	Lon  float64 `json:"lon,omitempty"`
	ID   string  `json:"id,omitempty"`
}

var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WSSurface implements ports.MapSurface over a websocket to the browser page.
//
// At most one connection is attached at a time; attaching a new one closes the
// previous. While detached, commands are dropped and the owner is expected to
// redraw after the next Attach.
type WSSurface struct {
	log *zap.Logger

	mu   sync.Mutex // guards conn and writes
	conn *websocket.Conn

	cbMu          sync.RWMutex
	onClick       func(domain.Position)
	onMarkerClick func(string)
}

func NewWSSurface(log *zap.Logger) *WSSurface {
	if log == nil {
		log = zap.NewNop()
	}
	return &WSSurface{log: log}
}

func (s *WSSurface) AddMarker(m ports.Marker) error {
	return s.send(Command{Op: OpAddMarker, Marker: &m})
}

func (s *WSSurface) MoveMarker(id string, p domain.Position) error {
	return s.send(Command{Op: OpMoveMarker, ID: id, Position: &p})
}

func (s *WSSurface) RemoveMarker(id string) error {
	return s.send(Command{Op: OpRemoveMarker, ID: id})
}

func (s *WSSurface) DrawLine(from, to domain.Position) error {
	return s.send(Command{Op: OpDrawLine, From: &from, To: &to})
}

func (s *WSSurface) ClearLine() error {
	return s.send(Command{Op: OpClearLine})
}

func (s *WSSurface) FitBounds(a, b domain.Position) error {
	return s.send(Command{Op: OpFitBounds, From: &a, To: &b})
}

func (s *WSSurface) OnClick(fn func(domain.Position)) {
	s.cbMu.Lock()
	s.onClick = fn
	s.cbMu.Unlock()
}

func (s *WSSurface) OnMarkerClick(fn func(string)) {
	s.cbMu.Lock()
	s.onMarkerClick = fn
	s.cbMu.Unlock()
}

// Attached reports whether a browser connection is currently attached.
func (s *WSSurface) Attached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

func (s *WSSurface) send(cmd Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteJSON(cmd); err != nil {
		return fmt.Errorf("map surface %s: %w", cmd.Op, err)
	}
	return nil
}

// Serve attaches conn and reads browser events until the connection closes
// or ctx is done. onAttach runs once the connection is ready for commands.
func (s *WSSurface) Serve(ctx context.Context, conn *websocket.Conn, onAttach func()) error {
	s.attach(conn)
	defer s.detach(conn)

	if onAttach != nil {
		onAttach()
	}

	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	stop := make(chan struct{})
	defer close(stop)
	go s.keepalive(ctx, conn, stop)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
				errors.Is(err, websocket.ErrCloseSent) {
				return nil
			}
			return fmt.Errorf("map surface read: %w", err)
		}
		s.dispatch(data)
	}
}

func (s *WSSurface) dispatch(data []byte) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		s.log.Debug("ignoring malformed map event", zap.Error(err))
		return
	}

	s.cbMu.RLock()
	onClick, onMarkerClick := s.onClick, s.onMarkerClick
	s.cbMu.RUnlock()

	switch ev.Type {
	case EventClick:
		if onClick != nil {
			onClick(domain.Position{Lat: ev.Lat, Lon: ev.Lon})
		}
	case EventMarkerClick:
		if onMarkerClick != nil && ev.ID != "" {
			onMarkerClick(ev.ID)
		}
	default:
		s.log.Debug("ignoring unknown map event", zap.String("type", ev.Type))
	}
}

func (s *WSSurface) keepalive(ctx context.Context, conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			s.mu.Lock()
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
			s.mu.Unlock()
			_ = conn.Close()
			return
		case <-ticker.C:
			s.mu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			s.mu.Unlock()
			if err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}

func (s *WSSurface) attach(conn *websocket.Conn) {
	s.mu.Lock()
	prev := s.conn
	s.conn = conn
	s.mu.Unlock()

	if prev != nil {
		_ = prev.Close()
	}
}

func (s *WSSurface) detach(conn *websocket.Conn) {
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.mu.Unlock()
	_ = conn.Close()
}

// Close drops the attached connection, if any.
func (s *WSSurface) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}
