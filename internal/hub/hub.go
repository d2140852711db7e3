package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"delivery/internal/domain"
	"delivery/internal/logging"
	"delivery/internal/observability"
)

const (
	// DefaultInactivityWindow is how long a rider may stay silent before the
	// session is evicted.
	DefaultInactivityWindow = 60 * time.Second
	// DefaultSubscriberBuffer is the per-subscriber event queue length.
	DefaultSubscriberBuffer = 32
	// HistorySize caps the samples kept per session.
	HistorySize = 10

	releasedRetention = 24 * time.Hour
	relayQueueSize    = 256
)

var (
	ErrInvalidSample = errors.New("invalid location sample")
	ErrOutOfOrder    = errors.New("sample older than last accepted sample")
	ErrInvalidTopic  = errors.New("invalid subscription topic")
	ErrClosed        = errors.New("hub is closed")
)

// RiderDirectory resolves display names for new sessions.
type RiderDirectory interface {
	RiderName(ctx context.Context, riderID string) (string, error)
}

// OrderLookup confirms an order id carried by a sample that the hub has not
// bound to the rider yet.
type OrderLookup interface {
	GetByID(ctx context.Context, id string) (*domain.Order, error)
}

// Relay forwards locally produced events to other hub instances.
type Relay interface {
	Publish(ctx context.Context, ev domain.TrackingEvent) error
}

// SessionSnapshot is a read-only copy of a rider session.
type SessionSnapshot struct {
	RiderID    string
	RiderName  string
	OrderID    string
	LastSample domain.LocationSample
	History    []domain.LocationSample
	LastSeen   time.Time
}

type session struct {
	mu        sync.Mutex
	riderID   string
	riderName string
	orderID   string
	last      domain.LocationSample
	hasSample bool
	history   []domain.LocationSample
	lastSeen  time.Time
	removed   bool
}

func (s *session) snapshot() SessionSnapshot {
	history := make([]domain.LocationSample, len(s.history))
	copy(history, s.history)
	return SessionSnapshot{
		RiderID:    s.riderID,
		RiderName:  s.riderName,
		OrderID:    s.orderID,
		LastSample: s.last,
		History:    history,
		LastSeen:   s.lastSeen,
	}
}

// Hub aggregates rider sessions and fans out tracking events to subscribers.
// Session state is guarded per rider; the registry lock is only held to look
// sessions up, add or remove them. Lock order is session, then registry.
type Hub struct {
	logger     *slog.Logger
	clock      func() time.Time
	directory  RiderDirectory
	orders     OrderLookup
	relay      Relay
	onStop     func(riderID string, reason domain.StopReason)
	instanceID string
	inactivity time.Duration
	buffer     int

	mu       sync.RWMutex
	sessions map[string]*session

	subMu  sync.RWMutex
	subs   map[Topic]map[string]*Subscription
	closed bool

	bindMu      sync.RWMutex
	assignments map[string]string    // rider id -> bound order id
	released    map[string]time.Time // order id -> release time
	rejected    map[string]string    // rider id -> last sample order id refused

	relayQueue chan domain.TrackingEvent
}

// Option customizes hub construction.
type Option func(*Hub)

func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithClock allows tests to control time.
func WithClock(clock func() time.Time) Option {
	return func(h *Hub) {
		if clock != nil {
			h.clock = clock
		}
	}
}

func WithDirectory(d RiderDirectory) Option {
	return func(h *Hub) {
		h.directory = d
	}
}

// WithOrderLookup lets samples bind the rider to an order the hub has not
// heard about, provided the order is delivering with that rider.
func WithOrderLookup(l OrderLookup) Option {
	return func(h *Hub) {
		h.orders = l
	}
}

func WithRelay(r Relay) Option {
	return func(h *Hub) {
		h.relay = r
	}
}

func WithInactivityWindow(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.inactivity = d
		}
	}
}

func WithSubscriberBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithStopHook registers fn to run after a session ends, outside any hub lock.
func WithStopHook(fn func(riderID string, reason domain.StopReason)) Option {
	return func(h *Hub) {
		h.onStop = fn
	}
}

// WithInstanceID overrides the generated instance id used to tag relayed events.
func WithInstanceID(id string) Option {
	return func(h *Hub) {
		if id != "" {
			h.instanceID = id
		}
	}
}

// New creates a hub with no sessions.
func New(opts ...Option) *Hub {
	h := &Hub{
		logger:      logging.Discard(),
		clock:       func() time.Time { return time.Now().UTC() },
		instanceID:  uuid.NewString(),
		inactivity:  DefaultInactivityWindow,
		buffer:      DefaultSubscriberBuffer,
		sessions:    make(map[string]*session),
		subs:        make(map[Topic]map[string]*Subscription),
		assignments: make(map[string]string),
		released:    make(map[string]time.Time),
		rejected:    make(map[string]string),
		relayQueue:  make(chan domain.TrackingEvent, relayQueueSize),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// InstanceID identifies this hub to relay peers.
func (h *Hub) InstanceID() string { return h.instanceID }

// InactivityWindow returns the configured eviction threshold.
func (h *Hub) InactivityWindow() time.Duration { return h.inactivity }

// Ingest accepts a sample pushed directly to this instance.
func (h *Hub) Ingest(ctx context.Context, sample domain.LocationSample) error {
	return h.IngestFrom(ctx, "direct", sample)
}

// IngestFrom applies a sample to its rider session and broadcasts it to the
// rider's subscribers, the subscribers of the associated order, and the live
// view. Invalid samples and samples strictly older than the last accepted one
// are dropped.
func (h *Hub) IngestFrom(ctx context.Context, source string, sample domain.LocationSample) error {
	if reason := sample.Validate(); reason != "" {
		observability.SamplesDropped.WithLabelValues(reason).Inc()
		h.logger.Warn("dropping location sample", "rider_id", sample.RiderID, "reason", reason, "source", source)
		return fmt.Errorf("%w: %s", ErrInvalidSample, reason)
	}

	h.confirmOrder(ctx, sample.RiderID, sample.OrderID)

	sess := h.lockSession(ctx, sample.RiderID)
	defer sess.mu.Unlock()

	if sess.hasSample && sample.TimestampMillis < sess.last.TimestampMillis {
		observability.SamplesDropped.WithLabelValues("out_of_order").Inc()
		h.logger.Debug("dropping out-of-order sample",
			"rider_id", sample.RiderID,
			"timestamp", sample.TimestampMillis,
			"last_timestamp", sess.last.TimestampMillis)
		return ErrOutOfOrder
	}

	orderID := h.resolveOrder(sample.RiderID, sample.OrderID)
	now := h.clock()

	sess.orderID = orderID
	sess.last = sample
	sess.hasSample = true
	sess.lastSeen = now
	sess.history = append(sess.history, sample)
	if len(sess.history) > HistorySize {
		sess.history = append(sess.history[:0:0], sess.history[len(sess.history)-HistorySize:]...)
	}

	stored := sample
	ev := domain.TrackingEvent{
		Type:      domain.TrackingEventLocation,
		RiderID:   sess.riderID,
		RiderName: sess.riderName,
		OrderID:   orderID,
		Sample:    &stored,
		EmittedAt: now,
	}
	// Broadcasting under the rider lock keeps per-rider FIFO; sends never block.
	h.broadcast(ev)
	h.enqueueRelay(ev)

	observability.SamplesIngested.WithLabelValues(source).Inc()
	return nil
}

// lockSession returns the rider's session locked, creating it on first use.
func (h *Hub) lockSession(ctx context.Context, riderID string) *session {
	for {
		h.mu.RLock()
		sess, ok := h.sessions[riderID]
		h.mu.RUnlock()

		if !ok {
			name := h.lookupName(ctx, riderID)
			h.mu.Lock()
			sess, ok = h.sessions[riderID]
			if !ok {
				sess = &session{riderID: riderID, riderName: name, lastSeen: h.clock()}
				h.sessions[riderID] = sess
				observability.ActiveSessions.Inc()
				h.logger.Info("tracking session started", "rider_id", riderID)
			}
			h.mu.Unlock()
		}

		sess.mu.Lock()
		if !sess.removed {
			return sess
		}
		// Evicted or stopped between lookup and lock; start a fresh session.
		sess.mu.Unlock()
	}
}

func (h *Hub) lookupName(ctx context.Context, riderID string) string {
	if h.directory == nil {
		return ""
	}
	name, err := h.directory.RiderName(ctx, riderID)
	if err != nil {
		h.logger.Debug("rider name lookup failed", "rider_id", riderID, "error", err)
		return ""
	}
	return name
}

// confirmOrder binds riderID to orderID when the order lookup shows it is
// delivering with that rider. Refusals are remembered per rider so a device
// that keeps sending a stale order id costs one lookup.
func (h *Hub) confirmOrder(ctx context.Context, riderID, orderID string) {
	if orderID == "" {
		return
	}
	h.bindMu.RLock()
	bound := h.assignments[riderID]
	_, gone := h.released[orderID]
	refused := h.rejected[riderID] == orderID
	h.bindMu.RUnlock()
	if bound == orderID || gone || refused {
		return
	}

	if h.orders != nil {
		order, err := h.orders.GetByID(ctx, orderID)
		switch {
		case err != nil:
			h.logger.Debug("order lookup failed", "rider_id", riderID, "order_id", orderID, "error", err)
		case order.Status == domain.OrderStatusDelivering && order.RiderID == riderID:
			h.BindOrder(riderID, orderID)
			return
		}
	}

	h.bindMu.Lock()
	h.rejected[riderID] = orderID
	h.bindMu.Unlock()
	observability.OrderMismatches.Inc()
	h.logger.Warn("ignoring order id not linked to rider",
		"rider_id", riderID,
		"sample_order_id", orderID,
		"linked_order_id", bound)
}

// resolveOrder returns the order bound to riderID. A sample's own order id
// only counts once it has been bound.
func (h *Hub) resolveOrder(riderID, sampleOrder string) string {
	h.bindMu.RLock()
	defer h.bindMu.RUnlock()
	bound := h.assignments[riderID]
	if sampleOrder != "" && sampleOrder != bound {
		h.logger.Debug("sample order differs from linked order",
			"rider_id", riderID,
			"sample_order_id", sampleOrder,
			"linked_order_id", bound)
	}
	return bound
}

// BindOrder associates riderID's future samples with orderID.
func (h *Hub) BindOrder(riderID, orderID string) {
	if riderID == "" || orderID == "" {
		return
	}
	h.bindMu.Lock()
	var replaced []string
	for rider, bound := range h.assignments {
		if bound == orderID && rider != riderID {
			delete(h.assignments, rider)
			replaced = append(replaced, rider)
		}
	}
	h.assignments[riderID] = orderID
	delete(h.released, orderID)
	delete(h.rejected, riderID)
	h.bindMu.Unlock()

	// An order has one rider; a reassigned order leaves the previous session.
	for _, rider := range replaced {
		h.setSessionOrder(rider, orderID, "")
	}
	h.mu.RLock()
	sess, ok := h.sessions[riderID]
	h.mu.RUnlock()
	if ok {
		sess.mu.Lock()
		sess.orderID = orderID
		sess.mu.Unlock()
	}
	h.logger.Info("order bound to rider", "rider_id", riderID, "order_id", orderID)
}

// setSessionOrder replaces riderID's session order when it is still from.
func (h *Hub) setSessionOrder(riderID, from, to string) {
	h.mu.RLock()
	sess, ok := h.sessions[riderID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	sess.mu.Lock()
	if sess.orderID == from {
		sess.orderID = to
	}
	sess.mu.Unlock()
}

// ReleaseOrder stops associating samples with orderID. riderID may be empty
// when the previous rider is unknown.
func (h *Hub) ReleaseOrder(orderID, riderID string) {
	if orderID == "" {
		return
	}
	now := h.clock()
	h.bindMu.Lock()
	h.released[orderID] = now
	for rider, bound := range h.assignments {
		if bound == orderID {
			delete(h.assignments, rider)
		}
	}
	for id, at := range h.released {
		if now.Sub(at) > releasedRetention {
			delete(h.released, id)
		}
	}
	h.bindMu.Unlock()

	h.mu.RLock()
	candidates := make([]*session, 0, 1)
	if riderID != "" {
		if sess, ok := h.sessions[riderID]; ok {
			candidates = append(candidates, sess)
		}
	} else {
		for _, sess := range h.sessions {
			candidates = append(candidates, sess)
		}
	}
	h.mu.RUnlock()

	for _, sess := range candidates {
		sess.mu.Lock()
		if sess.orderID == orderID {
			sess.orderID = ""
		}
		sess.mu.Unlock()
	}
	h.logger.Info("order released", "order_id", orderID, "rider_id", riderID)
}

// StopTracking removes the rider's session and notifies subscribers. It
// reports whether a session existed.
func (h *Hub) StopTracking(riderID string) bool {
	h.mu.RLock()
	sess, ok := h.sessions[riderID]
	h.mu.RUnlock()
	if !ok {
		return false
	}

	sess.mu.Lock()
	if sess.removed {
		sess.mu.Unlock()
		return false
	}
	h.removeLocked(sess, domain.StopReasonStopped)
	sess.mu.Unlock()

	h.logger.Info("tracking stopped", "rider_id", riderID)
	h.afterStop(riderID, domain.StopReasonStopped)
	return true
}

// Sweep evicts sessions that have been silent for longer than the inactivity
// window, measured in server receive time. It returns the evicted rider ids.
func (h *Hub) Sweep(now time.Time) []string {
	h.mu.RLock()
	all := make([]*session, 0, len(h.sessions))
	for _, sess := range h.sessions {
		all = append(all, sess)
	}
	h.mu.RUnlock()

	var evicted []string
	for _, sess := range all {
		sess.mu.Lock()
		if sess.removed || now.Sub(sess.lastSeen) <= h.inactivity {
			sess.mu.Unlock()
			continue
		}
		h.removeLocked(sess, domain.StopReasonStale)
		sess.mu.Unlock()

		observability.Evictions.Inc()
		h.logger.Info("evicted stale tracking session", "rider_id", sess.riderID, "last_seen", sess.lastSeen)
		h.afterStop(sess.riderID, domain.StopReasonStale)
		evicted = append(evicted, sess.riderID)
	}
	sort.Strings(evicted)
	return evicted
}

// removeLocked unregisters sess and emits tracking_stopped. The caller holds sess.mu.
func (h *Hub) removeLocked(sess *session, reason domain.StopReason) {
	h.mu.Lock()
	if h.sessions[sess.riderID] == sess {
		delete(h.sessions, sess.riderID)
	}
	h.mu.Unlock()

	sess.removed = true
	observability.ActiveSessions.Dec()

	ev := domain.TrackingEvent{
		Type:      domain.TrackingEventStopped,
		RiderID:   sess.riderID,
		RiderName: sess.riderName,
		OrderID:   sess.orderID,
		Reason:    reason,
		EmittedAt: h.clock(),
	}
	h.broadcast(ev)
	h.enqueueRelay(ev)
}

func (h *Hub) afterStop(riderID string, reason domain.StopReason) {
	if h.onStop != nil {
		h.onStop(riderID, reason)
	}
}

// Sessions returns a snapshot of active sessions ordered by rider id.
func (h *Hub) Sessions() []SessionSnapshot {
	h.mu.RLock()
	all := make([]*session, 0, len(h.sessions))
	for _, sess := range h.sessions {
		all = append(all, sess)
	}
	h.mu.RUnlock()

	out := make([]SessionSnapshot, 0, len(all))
	for _, sess := range all {
		sess.mu.Lock()
		if !sess.removed {
			out = append(out, sess.snapshot())
		}
		sess.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RiderID < out[j].RiderID })
	return out
}

// Session returns a snapshot of one rider's session.
func (h *Hub) Session(riderID string) (SessionSnapshot, bool) {
	h.mu.RLock()
	sess, ok := h.sessions[riderID]
	h.mu.RUnlock()
	if !ok {
		return SessionSnapshot{}, false
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.removed {
		return SessionSnapshot{}, false
	}
	return sess.snapshot(), true
}

// Subscribe registers a subscriber on topic.
func (h *Hub) Subscribe(topic Topic) (*Subscription, error) {
	if !topic.valid() {
		return nil, ErrInvalidTopic
	}
	sub := &Subscription{
		id:     uuid.NewString(),
		topic:  topic,
		events: make(chan domain.TrackingEvent, h.buffer),
		hub:    h,
	}

	h.subMu.Lock()
	defer h.subMu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}
	if h.subs[topic] == nil {
		h.subs[topic] = make(map[string]*Subscription)
	}
	h.subs[topic][sub.id] = sub
	observability.Subscribers.Inc()
	return sub, nil
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.subMu.Lock()
	defer h.subMu.Unlock()
	byID, ok := h.subs[sub.topic]
	if !ok {
		return
	}
	if _, ok := byID[sub.id]; !ok {
		return
	}
	delete(byID, sub.id)
	if len(byID) == 0 {
		delete(h.subs, sub.topic)
	}
	close(sub.events)
	observability.Subscribers.Dec()
}

// SubscriberCount returns the number of open subscriptions on topic.
func (h *Hub) SubscriberCount(topic Topic) int {
	h.subMu.RLock()
	defer h.subMu.RUnlock()
	return len(h.subs[topic])
}

// DeliverRemote hands an event received from a relay peer to local
// subscribers. It never touches session state.
func (h *Hub) DeliverRemote(ev domain.TrackingEvent) {
	h.broadcast(ev)
}

func (h *Hub) broadcast(ev domain.TrackingEvent) {
	h.subMu.RLock()
	defer h.subMu.RUnlock()

	deliver := func(topic Topic) {
		for _, sub := range h.subs[topic] {
			if sub.offer(ev) {
				observability.BroadcastsDelivered.Inc()
				continue
			}
			observability.BroadcastsDropped.Inc()
			h.logger.Debug("subscriber full, dropping event", "subscription_id", sub.id, "rider_id", ev.RiderID)
		}
	}
	deliver(RiderTopic(ev.RiderID))
	if ev.OrderID != "" {
		deliver(OrderTopic(ev.OrderID))
	}
	deliver(AllTopic())
}

func (h *Hub) enqueueRelay(ev domain.TrackingEvent) {
	if h.relay == nil {
		return
	}
	select {
	case h.relayQueue <- ev:
	default:
		h.logger.Warn("relay queue full, dropping event", "rider_id", ev.RiderID)
	}
}

// Run sweeps stale sessions and drains the relay queue until ctx is done.
// On return every open subscription is closed.
func (h *Hub) Run(ctx context.Context) error {
	interval := h.inactivity / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			h.Sweep(h.clock())
		case ev := <-h.relayQueue:
			if err := h.relay.Publish(ctx, ev); err != nil {
				h.logger.Warn("relay publish failed", "rider_id", ev.RiderID, "error", err)
			}
		}
	}
}

func (h *Hub) shutdown() {
	h.subMu.Lock()
	defer h.subMu.Unlock()
	h.closed = true
	for topic, byID := range h.subs {
		for id, sub := range byID {
			close(sub.events)
			delete(byID, id)
			observability.Subscribers.Dec()
		}
		delete(h.subs, topic)
	}
}
