package mapsync

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"nearest-store-service/internal/domain"
	"nearest-store-service/internal/platform/obs"
	"nearest-store-service/internal/ports"
	"nearest-store-service/internal/services"

	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// StoreLocator runs one store resolution pipeline for a reference position.
type StoreLocator interface {
	Locate(ctx context.Context, reference domain.Position) services.LocateResult
}

// AddressResolver turns the reference position into the address shown to the user.
type AddressResolver interface {
	ResolveAddress(ctx context.Context, p domain.Position) string
}

type Options struct {
	Locator   StoreLocator
	Addresses AddressResolver
	Surface   ports.MapSurface
	Log       *zap.Logger
	// OnCycleSettled is invoked on the controller loop after a cycle result
	// has been applied (Completed) or discarded (Superseded).
	OnCycleSettled func(domain.QueryCycle)
}

// Controller orchestrates query cycles and keeps the map surface in sync.
//
// A single loop goroutine (Run) owns MapState and every piece of cycle
// bookkeeping; all mutations are funneled through it as closures. Pipeline
// runs happen on their own goroutines and post their result back to the loop,
// where results of superseded generations are dropped.
type Controller struct {
	locator   StoreLocator
	addresses AddressResolver
	surface   ports.MapSurface
	log       *zap.Logger
	onSettled func(domain.QueryCycle)

	ops      chan func()
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	generation atomic.Uint64
	state      atomic.Int32

	// Loop-owned.
	ctx       context.Context
	mapState  MapState
	cycle     *domain.QueryCycle
	reference domain.Position
	degraded  bool
	stores    []domain.RankedStore
	source    string
	address   string
}

func New(opts Options) *Controller {
	c := &Controller{
		locator:   opts.Locator,
		addresses: opts.Addresses,
		surface:   opts.Surface,
		log:       opts.Log,
		onSettled: opts.OnCycleSettled,
		ops:       make(chan func()),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		ctx:       context.Background(),
		mapState:  MapState{StoreMarkers: make(map[string]ports.Marker)},
		stores:    []domain.RankedStore{},
		address:   domain.PlaceholderAddress,
	}
	if c.surface == nil {
		c.surface = nopSurface{}
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	c.state.Store(int32(Initializing))

	c.surface.OnClick(func(p domain.Position) {
		if err := c.Relocate(p); err != nil {
			c.log.Warn("ignoring map click", zap.Error(err))
		}
	})
	c.surface.OnMarkerClick(func(markerID string) {
		id, ok := storeIDFromMarker(markerID)
		if !ok {
			return
		}
		if err := c.SelectStore(id); err != nil {
			c.log.Warn("ignoring marker click", zap.String("marker", markerID), zap.Error(err))
		}
	})

	return c
}

// Run drives the controller loop until ctx is cancelled or Close is called.
// In-flight pipeline runs are cancelled when Run returns.
func (c *Controller) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer close(c.done)

	c.ctx = ctx
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case op := <-c.ops:
			op()
		}
	}
}

// Close stops the loop and waits for it to exit.
func (c *Controller) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
	<-c.done
}

// Done is closed once the loop has exited.
func (c *Controller) Done() <-chan struct{} { return c.done }

// post hands op to the loop. It reports false when the loop is no longer running.
func (c *Controller) post(op func()) bool {
	select {
	case c.ops <- op:
		return true
	case <-c.done:
		return false
	case <-c.stop:
		return false
	}
}

// call runs op on the loop and waits for it to finish.
func (c *Controller) call(op func()) bool {
	finished := make(chan struct{})
	if !c.post(func() {
		defer close(finished)
		op()
	}) {
		return false
	}
	<-finished
	return true
}

// State returns the current state machine state.
func (c *Controller) State() State { return State(c.state.Load()) }

// Generation returns the generation of the most recently started cycle.
func (c *Controller) Generation() uint64 { return c.generation.Load() }

func (c *Controller) setState(s State) { c.state.Store(int32(s)) }

// Initialize locates the user once and starts the first query cycle.
// It blocks for at most the provider's timeout.
func (c *Controller) Initialize(ctx context.Context, provider *services.PositionProvider, src ports.PositionSource) (domain.Position, bool, error) {
	if !c.call(func() { c.setState(LocatingUser) }) {
		return domain.Position{}, false, fmt.Errorf("initialize: %w", domain.ErrSessionClosed)
	}

	pos, degraded := provider.Acquire(ctx, src)

	ok := c.call(func() {
		c.degraded = degraded
		c.placeUserMarker(pos)
		c.startCycle(pos)
	})
	if !ok {
		return domain.Position{}, false, fmt.Errorf("initialize: %w", domain.ErrSessionClosed)
	}
	return pos, degraded, nil
}

// Relocate moves the reference position (a map click or manual pin) and
// restarts the query cycle. Any cycle still running becomes superseded.
func (c *Controller) Relocate(p domain.Position) error {
	if !p.Valid() {
		return fmt.Errorf("relocate %v: %w", p, domain.ErrInvalidPosition)
	}

	ok := c.call(func() {
		c.setState(Relocating)
		c.degraded = false
		c.placeUserMarker(p)
		c.clearRoute()
		c.startCycle(p)
	})
	if !ok {
		return fmt.Errorf("relocate: %w", domain.ErrSessionClosed)
	}
	return nil
}

// SelectStore selects one of the currently ranked stores and redraws the
// route to it without starting a new query cycle.
func (c *Controller) SelectStore(id string) error {
	var err error
	ok := c.call(func() {
		store, found := c.findStore(id)
		if !found {
			err = fmt.Errorf("select store %q: %w", id, domain.ErrUnknownStore)
			return
		}
		c.selectStore(store)
	})
	if !ok {
		return fmt.Errorf("select store: %w", domain.ErrSessionClosed)
	}
	return err
}

// Redraw re-emits the whole map state, e.g. after a rendering surface reconnects.
func (c *Controller) Redraw() {
	c.post(func() {
		if m := c.mapState.UserMarker; m != nil {
			c.command("add user marker", c.surface.AddMarker(*m))
		}
		for _, id := range c.sortedMarkerIDs() {
			c.command("add store marker", c.surface.AddMarker(c.mapState.StoreMarkers[id]))
		}
		if l := c.mapState.RouteLine; l != nil {
			c.command("draw route", c.surface.DrawLine(l.From, l.To))
			c.command("fit bounds", c.surface.FitBounds(l.From, l.To))
		}
	})
}

// CurrentRankedStores returns the last applied ranked store list.
func (c *Controller) CurrentRankedStores() []domain.RankedStore {
	var out []domain.RankedStore
	if !c.call(func() { out = slices.Clone(c.stores) }) {
		return []domain.RankedStore{}
	}
	return out
}

// SelectedStore returns the selected store, if any.
func (c *Controller) SelectedStore() (domain.RankedStore, bool) {
	var (
		store domain.RankedStore
		found bool
	)
	c.call(func() {
		if c.mapState.SelectedStoreID == "" {
			return
		}
		store, found = c.findStore(c.mapState.SelectedStoreID)
	})
	return store, found
}

// CurrentAddress returns the address of the current reference position.
func (c *Controller) CurrentAddress() string {
	addr := domain.PlaceholderAddress
	c.call(func() { addr = c.address })
	return addr
}

// Snapshot returns a consistent copy of the controller's observable state.
func (c *Controller) Snapshot() Snapshot {
	snap := Snapshot{State: c.State(), Generation: c.Generation(), Stores: []domain.RankedStore{}}
	c.call(func() {
		snap = Snapshot{
			State:           c.State(),
			Generation:      c.Generation(),
			Reference:       c.reference,
			Degraded:        c.degraded,
			Address:         c.address,
			Stores:          slices.Clone(c.stores),
			SelectedStoreID: c.mapState.SelectedStoreID,
			Source:          c.source,
			MarkerIDs:       c.sortedMarkerIDs(),
			HasRoute:        c.mapState.RouteLine != nil,
		}
	})
	return snap
}

// startCycle must run on the loop.
func (c *Controller) startCycle(ref domain.Position) {
	gen := c.generation.Inc()
	if c.cycle != nil && c.cycle.Status == domain.CyclePending {
		c.cycle.Status = domain.CycleSuperseded
	}
	c.cycle = &domain.QueryCycle{Generation: gen, Reference: ref, Status: domain.CyclePending}
	c.reference = ref
	c.setState(QueryingStores)
	obs.CyclesStartedTotal.Inc()

	ctx := c.ctx
	go c.runCycle(ctx, gen, ref)
}

func (c *Controller) runCycle(ctx context.Context, gen uint64, ref domain.Position) {
	var (
		res  services.LocateResult
		addr = domain.PlaceholderAddress
	)

	var g errgroup.Group
	g.Go(func() error {
		if c.locator != nil {
			res = c.locator.Locate(ctx, ref)
		}
		return nil
	})
	g.Go(func() error {
		if c.addresses != nil {
			addr = c.addresses.ResolveAddress(ctx, ref)
		}
		return nil
	})
	_ = g.Wait()

	c.post(func() { c.applyResult(gen, ref, res, addr) })
}

// applyResult must run on the loop.
func (c *Controller) applyResult(gen uint64, ref domain.Position, res services.LocateResult, addr string) {
	if gen != c.generation.Load() {
		obs.CyclesSupersededTotal.Inc()
		c.log.Debug("discarding superseded cycle",
			zap.Uint64("generation", gen),
			zap.Uint64("current", c.generation.Load()),
			zap.Error(domain.ErrCycleSuperseded),
		)
		c.settled(domain.QueryCycle{Generation: gen, Reference: ref, Status: domain.CycleSuperseded})
		return
	}

	stores := res.Stores
	if stores == nil {
		stores = []domain.RankedStore{}
	}

	for _, id := range c.sortedMarkerIDs() {
		c.command("remove store marker", c.surface.RemoveMarker(storeMarkerID(id)))
		delete(c.mapState.StoreMarkers, id)
	}

	for i, s := range stores {
		m := ports.Marker{
			ID:       storeMarkerID(s.ExternalID),
			Kind:     ports.MarkerKindStore,
			Position: s.Position,
			Label:    fmt.Sprintf("%d", i+1),
			Title:    s.Name,
			Detail:   fmt.Sprintf("%s · %.2f km · %d min", s.Address, s.DistanceKm, s.ETAMinutes),
		}
		c.command("add store marker", c.surface.AddMarker(m))
		c.mapState.StoreMarkers[s.ExternalID] = m
	}

	c.stores = stores
	c.source = res.Source
	c.address = addr

	c.clearRoute()

	previous := c.mapState.SelectedStoreID
	c.mapState.SelectedStoreID = ""
	if s, ok := c.findStore(previous); ok && previous != "" {
		c.selectStore(s)
	} else if len(stores) > 0 {
		c.selectStore(stores[0])
	}

	c.cycle.Status = domain.CycleCompleted
	c.setState(Ready)

	c.log.Info("cycle applied",
		zap.Uint64("generation", gen),
		zap.String("source", res.Source),
		zap.Int("stores", len(stores)),
		zap.String("selected", c.mapState.SelectedStoreID),
	)
	c.settled(*c.cycle)
}

func (c *Controller) settled(cycle domain.QueryCycle) {
	if c.onSettled != nil {
		c.onSettled(cycle)
	}
}

func (c *Controller) placeUserMarker(p domain.Position) {
	if c.mapState.UserMarker != nil {
		c.mapState.UserMarker.Position = p
		c.command("move user marker", c.surface.MoveMarker(userMarkerID, p))
		return
	}
	m := ports.Marker{ID: userMarkerID, Kind: ports.MarkerKindUser, Position: p, Title: "Tu ubicación"}
	c.mapState.UserMarker = &m
	c.command("add user marker", c.surface.AddMarker(m))
}

func (c *Controller) selectStore(s domain.RankedStore) {
	c.mapState.SelectedStoreID = s.ExternalID
	c.clearRoute()
	c.mapState.RouteLine = &Line{From: c.reference, To: s.Position}
	c.command("draw route", c.surface.DrawLine(c.reference, s.Position))
	c.command("fit bounds", c.surface.FitBounds(c.reference, s.Position))
}

func (c *Controller) clearRoute() {
	if c.mapState.RouteLine == nil {
		return
	}
	c.command("clear route", c.surface.ClearLine())
	c.mapState.RouteLine = nil
}

func (c *Controller) findStore(id string) (domain.RankedStore, bool) {
	for _, s := range c.stores {
		if s.ExternalID == id {
			return s, true
		}
	}
	return domain.RankedStore{}, false
}

func (c *Controller) sortedMarkerIDs() []string {
	ids := make([]string, 0, len(c.mapState.StoreMarkers))
	for id := range c.mapState.StoreMarkers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Surface failures never abort a state transition.
func (c *Controller) command(name string, err error) {
	if err != nil {
		c.log.Warn("map surface command failed", zap.String("command", name), zap.Error(err))
	}
}
