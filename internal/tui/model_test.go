package tui

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/ageapps/chatfeed/internal/chat"
	"github.com/ageapps/chatfeed/internal/feed"
	"github.com/ageapps/chatfeed/internal/session"
)

type fakeController struct {
	mu       sync.Mutex
	loads    int
	scrolled []session.Metrics
}

func (f *fakeController) LoadMore() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	return true
}

func (f *fakeController) Scrolled(m session.Metrics) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scrolled = append(f.scrolled, m)
	return true
}

func (f *fakeController) lastScroll() session.Metrics {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.scrolled) == 0 {
		return session.Metrics{}
	}
	return f.scrolled[len(f.scrolled)-1]
}

type recordingSender struct {
	msgs []tea.Msg
}

func (r *recordingSender) Send(msg tea.Msg) {
	r.msgs = append(r.msgs, msg)
}

func run(cmd tea.Cmd) {
	if cmd != nil {
		cmd()
	}
}

func testEntries(n int) []feed.Entry {
	base := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	msgs := make([]chat.Message, n)
	for i := range msgs {
		msgs[i] = chat.Message{
			ID:   fmt.Sprintf("m%d", i),
			From: []string{"ana", "bo"}[i%2],
			Time: base.Add(time.Duration(i) * time.Minute),
			Kind: chat.KindChat,
			Text: fmt.Sprintf("message %d", i),
		}
	}
	rules := feed.DefaultRules()
	rules.Location = time.UTC
	return rules.Build(msgs)
}

func sizedModel(t *testing.T, ctrl Controller) *Model {
	t.Helper()
	m := New(ctrl, WithLocation(time.UTC))
	_, cmd := m.Update(tea.WindowSizeMsg{Width: 60, Height: 14})
	run(cmd)
	return m
}

func keyPress(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestModelRendersFrame(t *testing.T) {
	ctrl := &fakeController{}
	m := sizedModel(t, ctrl)

	_, cmd := m.Update(frameMsg{frame: session.Frame{
		Room:    "general",
		Entries: testEntries(3),
		State:   session.State{RoomID: "general", MoreHistoryAvailable: true},
		Label:   session.LabelMoreHistory,
	}})
	run(cmd)

	view := m.View()
	require.Contains(t, view, "general")
	require.Contains(t, view, session.LabelMoreHistory)
	require.Contains(t, view, "message 2")
	require.Contains(t, view, "Sun, Mar 10 2024")
	require.NotContains(t, view, "New messages")

	require.Len(t, m.layout.starts, 3)
	require.Equal(t, 0, m.layout.starts[0])
	require.Greater(t, m.layout.starts[1], m.layout.starts[0])
}

func TestModelPendingIndicator(t *testing.T) {
	m := sizedModel(t, &fakeController{})
	m.Update(frameMsg{frame: session.Frame{
		Room:  "general",
		State: session.State{RoomID: "general", ReadingChat: true, PendingNew: 3},
	}})
	require.Contains(t, m.View(), "New messages (3)")

	m.Update(frameMsg{frame: session.Frame{
		Room:  "general",
		State: session.State{RoomID: "general", FetchingHistory: true},
	}})
	view := m.View()
	require.NotContains(t, view, "New messages")
	require.Contains(t, view, "loading history…")
}

func TestModelScrollToEdge(t *testing.T) {
	ctrl := &fakeController{}
	m := sizedModel(t, ctrl)
	m.Update(frameMsg{frame: session.Frame{Room: "general", Entries: testEntries(30)}})
	require.Zero(t, m.viewport.YOffset)

	_, cmd := m.Update(intentMsg{intent: session.Intent{Kind: session.ScrollToEdge}})
	run(cmd)
	require.True(t, m.viewport.AtBottom())

	got := ctrl.lastScroll()
	require.Equal(t, m.viewport.YOffset, got.ScrollTop)
	require.Equal(t, m.viewport.TotalLineCount(), got.ScrollHeight)
	require.Equal(t, m.viewport.Height, got.ClientHeight)
	require.False(t, session.DefaultScrollTracker().Reading(got))
}

func TestModelDelayedEdgeHonorsLatestIntent(t *testing.T) {
	m := sizedModel(t, &fakeController{})
	m.Update(frameMsg{frame: session.Frame{Room: "general", Entries: testEntries(30)}})

	_, cmd := m.Update(intentMsg{intent: session.Intent{Kind: session.ScrollToEdge, Delay: time.Millisecond}})
	require.NotNil(t, cmd)
	first := m.edgeSeq
	m.Update(intentMsg{intent: session.Intent{Kind: session.ScrollToEdge, Delay: time.Millisecond}})

	m.Update(edgeMsg{seq: first})
	require.False(t, m.viewport.AtBottom(), "superseded timer is ignored")

	m.Update(edgeMsg{seq: m.edgeSeq})
	require.True(t, m.viewport.AtBottom())
}

func TestModelPreserveAnchor(t *testing.T) {
	ctrl := &fakeController{}
	m := sizedModel(t, ctrl)
	m.Update(frameMsg{frame: session.Frame{Room: "general", Entries: testEntries(30)}})

	line, ok := m.layout.start(10)
	require.True(t, ok)
	require.Positive(t, line)
	_, cmd := m.Update(intentMsg{intent: session.Intent{Kind: session.PreserveAnchor, AnchorIndex: 10, AnchorID: "m10"}})
	run(cmd)
	require.Equal(t, line, m.viewport.YOffset)
	require.Equal(t, line, ctrl.lastScroll().ScrollTop)

	_, cmd = m.Update(intentMsg{intent: session.Intent{Kind: session.PreserveAnchor, AnchorIndex: 99}})
	require.Nil(t, cmd)
	require.Equal(t, line, m.viewport.YOffset)
}

func TestModelPreserveAnchorWithoutIDs(t *testing.T) {
	ctrl := &fakeController{}
	m := sizedModel(t, ctrl)
	entries := testEntries(30)
	for i := range entries {
		entries[i].Message.ID = ""
	}
	m.Update(frameMsg{frame: session.Frame{Room: "general", Entries: entries}})
	require.Len(t, m.layout.starts, 30)

	m.viewport.GotoBottom()
	_, cmd := m.Update(intentMsg{intent: session.Intent{Kind: session.PreserveAnchor, AnchorIndex: 0}})
	run(cmd)
	require.Zero(t, m.viewport.YOffset)
}

func TestModelKeys(t *testing.T) {
	ctrl := &fakeController{}
	m := sizedModel(t, ctrl)
	m.Update(frameMsg{frame: session.Frame{Room: "general", Entries: testEntries(30)}})

	_, cmd := m.Update(keyPress("m"))
	run(cmd)
	require.Equal(t, 1, ctrl.loads)

	_, cmd = m.Update(keyPress("G"))
	run(cmd)
	require.True(t, m.viewport.AtBottom())

	_, cmd = m.Update(keyPress("g"))
	run(cmd)
	require.Zero(t, m.viewport.YOffset)
	require.True(t, session.DefaultScrollTracker().Reading(ctrl.lastScroll()))

	_, cmd = m.Update(keyPress("q"))
	require.NotNil(t, cmd)
	_, ok := cmd().(tea.QuitMsg)
	require.True(t, ok)
}

func TestModelReportsOnlyChanges(t *testing.T) {
	ctrl := &fakeController{}
	m := sizedModel(t, ctrl)
	m.Update(frameMsg{frame: session.Frame{Room: "general", Entries: testEntries(30)}})

	_, cmd := m.Update(keyPress("G"))
	run(cmd)
	_, cmd = m.Update(keyPress("G"))
	require.Nil(t, cmd)
}

func TestSurfaceForwardsInOrder(t *testing.T) {
	s := NewSurface()
	s.Render(session.Frame{Room: "dropped"})

	sender := &recordingSender{}
	s.Attach(sender)
	s.Render(session.Frame{Room: "general"})
	s.Apply(session.Intent{Kind: session.ScrollToEdge})

	require.Len(t, sender.msgs, 2)
	require.Equal(t, frameMsg{frame: session.Frame{Room: "general"}}, sender.msgs[0])
	require.Equal(t, intentMsg{intent: session.Intent{Kind: session.ScrollToEdge}}, sender.msgs[1])
}

func TestRendererLayout(t *testing.T) {
	r := renderer{theme: DefaultTheme, senders: NewSenderColors(nil), location: time.UTC}
	entries := testEntries(2)
	entries = append(entries, feed.Entry{
		Message: chat.Message{ID: "a1", Kind: chat.KindActivity, Time: entries[1].Message.Time.Add(24 * time.Hour)},
		Text:    "bo joined",
	})
	entries = feed.DefaultRules().Annotate(entries)

	l := r.layout(entries, 40)
	content := l.content()
	require.Contains(t, content, "ana")
	require.Contains(t, content, "bo joined")
	require.Equal(t, 2, strings.Count(content, "2024"), "one divider per day")
	require.Len(t, l.starts, 3)
}

func TestThemeByName(t *testing.T) {
	require.Equal(t, "high-contrast", ThemeByName(" High-Contrast ").Name)
	require.Equal(t, "default", ThemeByName("unknown").Name)

	colors := NewSenderColors(nil)
	require.Equal(t, colors.ColorCode("Ana"), colors.ColorCode("ana"))
	require.Contains(t, SenderColorPalette, colors.ColorCode("bo"))
}

func TestModelShowsErrorUntilRetry(t *testing.T) {
	ctrl := &fakeController{}
	m := sizedModel(t, ctrl)
	m.Update(frameMsg{frame: session.Frame{Room: "general", Label: session.LabelMoreHistory}})

	s := NewSurface()
	sender := &recordingSender{}
	s.Attach(sender)
	s.Report(nil)
	s.Report(errors.New("history unavailable"))
	require.Len(t, sender.msgs, 1)

	m.Update(sender.msgs[0])
	require.Contains(t, m.View(), "error: history unavailable")

	_, cmd := m.Update(keyPress("m"))
	run(cmd)
	require.Equal(t, 1, ctrl.loads)
	require.NotContains(t, m.View(), "error:")
}
