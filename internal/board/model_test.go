package board

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"delivery/internal/domain"
)

var boardNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func locationEvent(riderID, name, orderID string, age time.Duration, speed float64) EventMsg {
	sample := domain.LocationSample{
		RiderID:              riderID,
		OrderID:              orderID,
		Latitude:             6.45,
		Longitude:            3.39,
		SpeedMetersPerSecond: &speed,
		TimestampMillis:      boardNow.Add(-age).UnixMilli(),
	}
	return EventMsg{Type: domain.TrackingEventLocation, RiderID: riderID, RiderName: name, OrderID: orderID, Sample: &sample}
}

func feed(t *testing.T, m Model, msgs ...tea.Msg) Model {
	t.Helper()
	var model tea.Model = m
	for _, msg := range msgs {
		model, _ = model.Update(msg)
	}
	return model.(Model)
}

func typeQuery(t *testing.T, m Model, q string) Model {
	t.Helper()
	for _, r := range q {
		m = feed(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	return m
}

func TestBoard_RowsFollowEvents(t *testing.T) {
	t.Parallel()

	m := New(WithClock(func() time.Time { return boardNow }))
	m = feed(t, m,
		locationEvent("rider-1", "Ada Obi", "order-1", 10*time.Second, 4),
		locationEvent("rider-2", "Tunde Bello", "", 5*time.Minute, 0),
	)

	rows := m.Rows()
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].RiderID != "rider-1" || rows[0].Freshness != "Just now" {
		t.Errorf("unexpected first row %+v", rows[0])
	}
	if rows[1].Freshness != "5m ago" || rows[1].Movement != domain.MovementIdle {
		t.Errorf("unexpected second row %+v", rows[1])
	}

	m = feed(t, m, EventMsg{Type: domain.TrackingEventStopped, RiderID: "rider-1", Reason: domain.StopReasonStale})
	if rows := m.Rows(); len(rows) != 1 || rows[0].RiderID != "rider-2" {
		t.Errorf("expected only rider-2 after stop, got %+v", rows)
	}
}

func TestBoard_KeepsNewestSample(t *testing.T) {
	t.Parallel()

	m := New(WithClock(func() time.Time { return boardNow }))
	m = feed(t, m,
		locationEvent("rider-1", "Ada", "order-2", time.Second, 3),
		locationEvent("rider-1", "Ada", "order-1", time.Minute, 0),
	)

	rows := m.Rows()
	if len(rows) != 1 || rows[0].OrderID != "order-2" {
		t.Errorf("older sample must not replace newer one, got %+v", rows)
	}
}

func TestBoard_Filters(t *testing.T) {
	t.Parallel()

	m := New(WithClock(func() time.Time { return boardNow }))
	m = feed(t, m,
		locationEvent("rider-1", "Ada Obi", "order-77", time.Second, 4),
		locationEvent("rider-2", "Tunde Bello", "", time.Second, 0),
		locationEvent("rider-3", "Adaeze Eze", "", time.Second, 0),
	)

	m = typeQuery(t, m, "ada")
	if rows := m.Rows(); len(rows) != 2 {
		t.Fatalf("expected 2 rows for name query, got %+v", rows)
	}

	// Tab cycles all -> moving -> idle.
	m = feed(t, m, tea.KeyMsg{Type: tea.KeyTab})
	if rows := m.Rows(); len(rows) != 1 || rows[0].RiderID != "rider-1" {
		t.Errorf("expected moving Ada only, got %+v", rows)
	}
	m = feed(t, m, tea.KeyMsg{Type: tea.KeyTab})
	if rows := m.Rows(); len(rows) != 1 || rows[0].RiderID != "rider-3" {
		t.Errorf("expected idle Adaeze only, got %+v", rows)
	}
	m = feed(t, m, tea.KeyMsg{Type: tea.KeyTab})
	if m.Filter().Movement != "" {
		t.Errorf("expected filter back to all, got %q", m.Filter().Movement)
	}

	m = New(WithClock(func() time.Time { return boardNow }))
	m = feed(t, m, locationEvent("rider-1", "Ada Obi", "order-77", time.Second, 4))
	m = typeQuery(t, m, "ORDER-7")
	if rows := m.Rows(); len(rows) != 1 {
		t.Errorf("expected case-insensitive order match, got %+v", rows)
	}
}

func TestBoard_View(t *testing.T) {
	t.Parallel()

	m := New(WithClock(func() time.Time { return boardNow }), WithSource("localhost:8080"))
	if !strings.Contains(m.View(), "No riders match.") {
		t.Error("expected empty state")
	}

	m = feed(t, m, locationEvent("rider-1", "Ada Obi", "order-1", 2*time.Hour, 4))
	view := m.View()
	for _, want := range []string{"localhost:8080", "rider-1", "Ada Obi", "order-1", "2h ago", "1 of 1 riders"} {
		if !strings.Contains(view, want) {
			t.Errorf("expected %q in view:\n%s", want, view)
		}
	}

	m = feed(t, m, StreamClosedMsg{Err: errors.New("connection reset")})
	if !strings.Contains(m.View(), "stream closed: connection reset") {
		t.Error("expected closed stream notice")
	}
}

func TestBoard_QuitKeys(t *testing.T) {
	t.Parallel()

	m := New()
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}
