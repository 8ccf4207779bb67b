package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ageapps/chatfeed/internal/session"
)

// chrome is the header, footer and border rows around the viewport.
const chrome = 4

// Controller is the part of the session controller the viewer drives.
type Controller interface {
	LoadMore() bool
	Scrolled(session.Metrics) bool
}

type edgeMsg struct {
	seq int
}

type keyMap struct {
	LoadMore key.Binding
	Latest   key.Binding
	Oldest   key.Binding
	Quit     key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		LoadMore: key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "load more")),
		Latest:   key.NewBinding(key.WithKeys("G", "end"), key.WithHelp("G", "latest")),
		Oldest:   key.NewBinding(key.WithKeys("g", "home"), key.WithHelp("g", "oldest")),
		Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) short() []key.Binding {
	return []key.Binding{
		key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("↑/k", "scroll")),
		k.LoadMore,
		k.Latest,
		k.Oldest,
		k.Quit,
	}
}

// Option configures a Model.
type Option func(*Model)

// WithTheme sets the palette.
func WithTheme(theme Theme) Option {
	return func(m *Model) {
		m.renderer.theme = theme
		m.renderer.senders = NewSenderColors(theme.SenderPalette)
	}
}

// WithLocation sets the zone record times are shown in.
func WithLocation(loc *time.Location) Option {
	return func(m *Model) {
		m.renderer.location = loc
	}
}

// Model is the bubbletea model of the feed viewer.
type Model struct {
	ctrl     Controller
	renderer renderer
	keys     keyMap
	help     help.Model
	viewport viewport.Model
	ready    bool
	width    int
	height   int

	frame   session.Frame
	layout  layout
	edgeSeq int
	last    session.Metrics
	err     error
}

// New returns a viewer driving ctrl.
func New(ctrl Controller, opts ...Option) *Model {
	m := &Model{
		ctrl: ctrl,
		renderer: renderer{
			theme:   DefaultTheme,
			senders: NewSenderColors(DefaultTheme.SenderPalette),
		},
		keys: defaultKeys(),
		help: help.New(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Model) Init() tea.Cmd {
	return nil
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, m.report()

	case frameMsg:
		m.frame = msg.frame
		m.relayout()
		return m, m.report()

	case intentMsg:
		return m, m.apply(msg.intent)

	case errorMsg:
		m.err = msg.err
		return m, nil

	case edgeMsg:
		if msg.seq != m.edgeSeq {
			return m, nil
		}
		m.viewport.GotoBottom()
		return m, m.report()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.LoadMore):
			m.err = nil
			ctrl := m.ctrl
			return m, func() tea.Msg {
				ctrl.LoadMore()
				return nil
			}
		case key.Matches(msg, m.keys.Latest):
			m.viewport.GotoBottom()
			return m, m.report()
		case key.Matches(msg, m.keys.Oldest):
			m.viewport.GotoTop()
			return m, m.report()
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, tea.Batch(cmd, m.report())
}

func (m *Model) View() string {
	if !m.ready {
		return "loading…"
	}
	theme := m.renderer.theme

	room := m.frame.Room
	if room == "" {
		room = "(no room)"
	}
	status := m.frame.Label
	if m.frame.State.FetchingHistory {
		status = "loading history…"
	}
	if m.err != nil {
		status = theme.pending().Render("error: " + m.err.Error())
	}
	header := theme.header().Render(room) + "  " + theme.muted().Render(status)

	footer := m.help.ShortHelpView(m.keys.short())
	if n := m.frame.State.PendingNew; n > 0 {
		footer = theme.pending().Render(fmt.Sprintf("New messages (%d)", n)) + "  " + footer
	}

	body := theme.border().Render(m.viewport.View())
	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height
	w, h := maxInt(1, width-2), maxInt(1, height-chrome)
	if !m.ready {
		m.viewport = viewport.New(w, h)
		m.ready = true
	} else {
		m.viewport.Width = w
		m.viewport.Height = h
	}
	m.help.Width = width
	m.relayout()
}

func (m *Model) relayout() {
	m.layout = m.renderer.layout(m.frame.Entries, m.viewport.Width)
	m.viewport.SetContent(m.layout.content())
}

func (m *Model) apply(intent session.Intent) tea.Cmd {
	switch intent.Kind {
	case session.ScrollToEdge:
		m.edgeSeq++
		if intent.Delay <= 0 {
			m.viewport.GotoBottom()
			return m.report()
		}
		seq := m.edgeSeq
		return tea.Tick(intent.Delay, func(time.Time) tea.Msg {
			return edgeMsg{seq: seq}
		})
	case session.PreserveAnchor:
		if line, ok := m.layout.start(intent.AnchorIndex); ok {
			m.viewport.SetYOffset(line)
			return m.report()
		}
	}
	return nil
}

// metrics returns the viewport position in lines.
func (m *Model) metrics() session.Metrics {
	return session.Metrics{
		ScrollTop:    m.viewport.YOffset,
		ScrollHeight: m.viewport.TotalLineCount(),
		ClientHeight: m.viewport.Height,
	}
}

// report sends the scroll position to the controller when it changed. The
// call runs as a command so the event loop never blocks on the controller.
func (m *Model) report() tea.Cmd {
	if !m.ready || m.ctrl == nil {
		return nil
	}
	current := m.metrics()
	if current == m.last {
		return nil
	}
	m.last = current
	ctrl := m.ctrl
	return func() tea.Msg {
		ctrl.Scrolled(current)
		return nil
	}
}
