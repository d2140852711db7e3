// Package board is a terminal view of live rider tracking. It consumes hub
// events from the all-riders stream and renders one row per tracked rider,
// with the text query and movement filter applied on the client.
package board

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"delivery/internal/domain"
	"delivery/internal/tracking"
)

// refreshInterval re-renders freshness labels between events.
const refreshInterval = 15 * time.Second

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#CCCCCC"))
	movingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	idleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	footerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0")).Padding(1, 0, 0, 0)
	movementKeys = []domain.MovementStatus{"", domain.MovementMoving, domain.MovementIdle}
)

// EventMsg carries one hub event into the model.
type EventMsg domain.TrackingEvent

// StreamClosedMsg reports that the event stream ended.
type StreamClosedMsg struct {
	Err error
}

type tickMsg time.Time

// entry is the latest known state of one rider.
type entry struct {
	name    string
	orderID string
	sample  domain.LocationSample
}

// Model is the bubbletea model for the tracking board.
type Model struct {
	riders   map[string]entry
	query    textinput.Model
	movement int
	now      func() time.Time
	source   string
	err      error
	closed   bool
	width    int
}

// Option customizes a Model.
type Option func(*Model)

// WithClock overrides the clock used for freshness labels.
func WithClock(now func() time.Time) Option {
	return func(m *Model) {
		if now != nil {
			m.now = now
		}
	}
}

// WithSource labels the stream in the header.
func WithSource(source string) Option {
	return func(m *Model) {
		m.source = source
	}
}

// New creates an empty board with the query input focused.
func New(opts ...Option) Model {
	query := textinput.New()
	query.Placeholder = "rider name, rider id or order id"
	query.Prompt = "search: "
	query.CharLimit = 64
	query.Focus()

	m := Model{
		riders: make(map[string]entry),
		query:  query,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init starts the cursor blink and the freshness refresh.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, tick())
}

// Update applies one message.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyTab:
			m.movement = (m.movement + 1) % len(movementKeys)
			return m, nil
		}

	case EventMsg:
		m.apply(domain.TrackingEvent(msg))
		return m, nil

	case StreamClosedMsg:
		m.closed = true
		m.err = msg.Err
		return m, nil

	case tickMsg:
		return m, tick()
	}

	var cmd tea.Cmd
	m.query, cmd = m.query.Update(msg)
	return m, cmd
}

func (m *Model) apply(ev domain.TrackingEvent) {
	switch ev.Type {
	case domain.TrackingEventStopped:
		delete(m.riders, ev.RiderID)
	case domain.TrackingEventLocation:
		if ev.Sample == nil {
			return
		}
		// Events can arrive from several hub instances; keep the newest.
		if cur, ok := m.riders[ev.RiderID]; ok && cur.sample.TimestampMillis > ev.Sample.TimestampMillis {
			return
		}
		m.riders[ev.RiderID] = entry{name: ev.RiderName, orderID: ev.OrderID, sample: *ev.Sample}
	}
}

// Filter returns the filter the board currently applies.
func (m Model) Filter() tracking.Filter {
	return tracking.Filter{
		Query:    strings.TrimSpace(m.query.Value()),
		Movement: movementKeys[m.movement],
	}
}

// Rows returns the visible rows, most recently updated first.
func (m Model) Rows() []tracking.Row {
	now := m.now()
	filter := m.Filter()

	rows := make([]tracking.Row, 0, len(m.riders))
	for id, e := range m.riders {
		row := tracking.NewRow(id, e.name, e.orderID, e.sample, now)
		if filter.Match(row) {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].TimestampMillis != rows[j].TimestampMillis {
			return rows[i].TimestampMillis > rows[j].TimestampMillis
		}
		return rows[i].RiderID < rows[j].RiderID
	})
	return rows
}

// View renders the board.
func (m Model) View() string {
	var b strings.Builder

	title := "Live riders"
	if m.source != "" {
		title += " · " + m.source
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")
	b.WriteString(m.query.View())
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render("movement: " + movementLabel(movementKeys[m.movement])))
	b.WriteString("\n\n")

	rows := m.Rows()
	if len(rows) == 0 {
		b.WriteString(mutedStyle.Render("No riders match."))
	} else {
		b.WriteString(headerStyle.Render(formatLine("RIDER", "NAME", "ORDER", "STATE", "POSITION", "BATTERY", "UPDATED")))
		for _, r := range rows {
			b.WriteString("\n")
			b.WriteString(renderRow(r))
		}
	}

	if m.closed {
		b.WriteString("\n\n")
		if m.err != nil {
			b.WriteString(errorStyle.Render("stream closed: " + m.err.Error()))
		} else {
			b.WriteString(errorStyle.Render("stream closed"))
		}
	}

	footer := fmt.Sprintf("%d of %d riders · tab: movement filter · esc: quit", len(rows), len(m.riders))
	b.WriteString("\n")
	b.WriteString(footerStyle.Render(footer))

	if m.width > 0 {
		return lipgloss.NewStyle().MaxWidth(m.width).Render(b.String())
	}
	return b.String()
}

func movementLabel(s domain.MovementStatus) string {
	if s == "" {
		return "all"
	}
	return string(s)
}

func formatLine(rider, name, order, state, position, battery, updated string) string {
	return fmt.Sprintf("%-14s %-18s %-14s %-7s %-22s %-8s %s", rider, name, order, state, position, battery, updated)
}

func renderRow(r tracking.Row) string {
	order := r.OrderID
	if order == "" {
		order = "-"
	}
	battery := "-"
	if r.BatteryPercent != nil {
		battery = fmt.Sprintf("%d%%", *r.BatteryPercent)
	}
	state := string(r.Movement)
	position := fmt.Sprintf("%.5f,%.5f", r.Latitude, r.Longitude)
	line := formatLine(truncate(r.RiderID, 14), truncate(r.RiderName, 18), truncate(order, 14), state, position, battery, r.Freshness)
	if r.Movement == domain.MovementMoving {
		return movingStyle.Render(line)
	}
	return idleStyle.Render(line)
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
