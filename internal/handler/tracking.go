package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"delivery/internal/domain"
	"delivery/internal/hub"
	"delivery/internal/logging"
	"delivery/internal/middleware"
	"delivery/internal/service"
	"delivery/internal/tracking"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096

	defaultNearbyRadiusKm = 5.0
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are enforced by the gateway in front of the service.
	CheckOrigin: func(*http.Request) bool { return true },
}

// TrackingHandler serves rider location ingestion and live tracking streams.
type TrackingHandler struct {
	riderService *service.RiderService
	hub          *hub.Hub
	logger       *slog.Logger
	now          func() time.Time
}

// NewTrackingHandler creates a new TrackingHandler.
func NewTrackingHandler(riderService *service.RiderService, h *hub.Hub, logger *slog.Logger) *TrackingHandler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &TrackingHandler{
		riderService: riderService,
		hub:          h,
		logger:       logger,
		now:          time.Now,
	}
}

// IngestMessage is one frame on the rider ingestion stream.
type IngestMessage struct {
	Type   string                 `json:"type"` // "location" or "stop"
	Sample *domain.LocationSample `json:"sample,omitempty"`
}

// SessionsResponse is the HTTP response for the live tracking view.
type SessionsResponse struct {
	Riders []tracking.Row `json:"riders"`
	Total  int            `json:"total"`
}

// StopTrackingResponse reports whether a session was open.
type StopTrackingResponse struct {
	RiderID string `json:"riderId"`
	Stopped bool   `json:"stopped"`
}

// NearbyRiderResponse is one rider returned by a proximity search.
type NearbyRiderResponse struct {
	RiderID    string  `json:"riderId"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	DistanceKm float64 `json:"distanceKm"`
}

// PushLocation handles POST /v1/riders/:id/location
func (h *TrackingHandler) PushLocation(c *gin.Context) {
	riderID := c.Param("id")
	if !h.mayActAsRider(c, riderID) {
		return
	}

	var sample domain.LocationSample
	if err := c.ShouldBindJSON(&sample); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	sample.RiderID = riderID

	if err := h.ingest(c.Request.Context(), service.SourceHTTP, sample); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

// StreamLocation handles GET /v1/riders/:id/location/stream. The rider pushes
// location frames; nothing is sent back besides pings.
func (h *TrackingHandler) StreamLocation(c *gin.Context) {
	riderID := c.Param("id")
	if !h.mayActAsRider(c, riderID) {
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "rider_id", riderID, "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go h.pingLoop(ctx, conn)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg IngestMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("rider stream closed", "rider_id", riderID, "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		switch msg.Type {
		case "stop":
			if _, err := h.riderService.StopTracking(ctx, riderID); err != nil {
				h.logger.Warn("stop tracking failed", "rider_id", riderID, "error", err)
			}
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "tracking stopped"),
				time.Now().Add(writeWait))
			return
		case "location", "":
			if msg.Sample == nil {
				continue
			}
			sample := *msg.Sample
			sample.RiderID = riderID
			// Fire-and-forget: rejected samples are logged and counted by the hub.
			_ = h.ingest(ctx, service.SourceWebsocket, sample)
		}
	}
}

// StopTracking handles DELETE /v1/riders/:id/tracking
func (h *TrackingHandler) StopTracking(c *gin.Context) {
	riderID := c.Param("id")
	if !h.mayActAsRider(c, riderID) {
		return
	}

	stopped, err := h.riderService.StopTracking(c.Request.Context(), riderID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, StopTrackingResponse{RiderID: riderID, Stopped: stopped})
}

// Sessions handles GET /v1/tracking/sessions?q=&movement=
func (h *TrackingHandler) Sessions(c *gin.Context) {
	filter, err := tracking.ParseFilter(c.Query("q"), c.Query("movement"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	now := h.now()
	rows := make([]tracking.Row, 0)
	for _, s := range h.hub.Sessions() {
		row := tracking.NewRow(s.RiderID, s.RiderName, s.OrderID, s.LastSample, now)
		if filter.Match(row) {
			rows = append(rows, row)
		}
	}
	respondJSON(c, http.StatusOK, SessionsResponse{Riders: rows, Total: len(rows)})
}

// NearbyRiders handles GET /v1/riders/nearby?lat=&lng=&radiusKm=
func (h *TrackingHandler) NearbyRiders(c *gin.Context) {
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
	if errLat != nil || errLng != nil {
		badRequest(c, "lat and lng are required")
		return
	}
	radius := defaultNearbyRadiusKm
	if raw := c.Query("radiusKm"); raw != "" {
		r, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			badRequest(c, "invalid radiusKm")
			return
		}
		radius = r
	}

	riders, err := h.riderService.NearbyRiders(c.Request.Context(), lat, lng, radius)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := make([]NearbyRiderResponse, 0, len(riders))
	for _, r := range riders {
		resp = append(resp, NearbyRiderResponse{
			RiderID:    r.RiderID,
			Latitude:   r.Lat,
			Longitude:  r.Lng,
			DistanceKm: r.DistanceKm,
		})
	}
	respondJSON(c, http.StatusOK, resp)
}

// SubscribeRider handles GET /v1/tracking/riders/:id/ws
func (h *TrackingHandler) SubscribeRider(c *gin.Context) {
	h.serveSubscription(c, hub.RiderTopic(c.Param("id")), tracking.Filter{})
}

// SubscribeOrder handles GET /v1/tracking/orders/:id/ws
func (h *TrackingHandler) SubscribeOrder(c *gin.Context) {
	h.serveSubscription(c, hub.OrderTopic(c.Param("id")), tracking.Filter{})
}

// SubscribeLive handles GET /v1/tracking/live/ws?q=&movement=
func (h *TrackingHandler) SubscribeLive(c *gin.Context) {
	filter, err := tracking.ParseFilter(c.Query("q"), c.Query("movement"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	h.serveSubscription(c, hub.AllTopic(), filter)
}

func (h *TrackingHandler) serveSubscription(c *gin.Context, topic hub.Topic, filter tracking.Filter) {
	sub, err := h.hub.Subscribe(topic)
	if err != nil {
		if errors.Is(err, hub.ErrInvalidTopic) {
			badRequest(c, err.Error())
			return
		}
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
		return
	}
	defer sub.Close()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "topic", topic.Kind, "id", topic.ID, "error", err)
		return
	}
	defer conn.Close()

	// The reader only exists to process pongs and notice the client leaving.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadLimit(maxMessageSize)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for _, ev := range h.initialEvents(topic) {
		if !filter.MatchEvent(ev, h.now()) {
			continue
		}
		if err := writeEvent(conn, ev); err != nil {
			return
		}
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-gone:
			return
		case <-c.Request.Context().Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(writeWait))
				return
			}
			if !filter.MatchEvent(ev, h.now()) {
				continue
			}
			if err := writeEvent(conn, ev); err != nil {
				h.logger.Debug("subscriber write failed", "subscription_id", sub.ID(), "error", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// initialEvents replays the last known position of every rider the topic covers.
func (h *TrackingHandler) initialEvents(topic hub.Topic) []domain.TrackingEvent {
	var snaps []hub.SessionSnapshot
	switch topic.Kind {
	case hub.TopicRider:
		if s, ok := h.hub.Session(topic.ID); ok {
			snaps = append(snaps, s)
		}
	default:
		for _, s := range h.hub.Sessions() {
			if topic.Kind == hub.TopicAll || s.OrderID == topic.ID {
				snaps = append(snaps, s)
			}
		}
	}

	out := make([]domain.TrackingEvent, 0, len(snaps))
	for _, s := range snaps {
		sample := s.LastSample
		out = append(out, domain.TrackingEvent{
			Type:      domain.TrackingEventLocation,
			RiderID:   s.RiderID,
			RiderName: s.RiderName,
			OrderID:   s.OrderID,
			Sample:    &sample,
			EmittedAt: s.LastSeen,
		})
	}
	return out
}

func (h *TrackingHandler) ingest(ctx context.Context, source string, sample domain.LocationSample) error {
	err := h.riderService.UpdateLocation(ctx, source, sample)
	if errors.Is(err, hub.ErrOutOfOrder) {
		return nil
	}
	return err
}

func (h *TrackingHandler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// mayActAsRider allows the rider themselves and admins. It writes the error
// response when access is denied.
func (h *TrackingHandler) mayActAsRider(c *gin.Context, riderID string) bool {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		respondError(c, service.ErrInvalidActor)
		return false
	}
	if actor.Role.IsAdmin() || (actor.Role == domain.RoleRider && actor.ID == riderID) {
		return true
	}
	c.JSON(http.StatusForbidden, ErrorResponse{Error: "only the rider or an admin may report this rider's location"})
	return false
}

func writeEvent(conn *websocket.Conn, ev domain.TrackingEvent) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(ev)
}
