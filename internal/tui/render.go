package tui

import (
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/ageapps/chatfeed/internal/feed"
)

const (
	bodyIndent   = "  "
	systemSender = "system"
)

// layout is rendered viewport content plus the first line of every entry,
// indexed like the entries.
type layout struct {
	lines  []string
	starts []int
}

// start returns the first line of entry i.
func (l layout) start(i int) (int, bool) {
	if i < 0 || i >= len(l.starts) {
		return 0, false
	}
	return l.starts[i], true
}

func (l layout) content() string {
	return strings.Join(l.lines, "\n")
}

type renderer struct {
	theme    Theme
	senders  *SenderColors
	location *time.Location
}

func (r renderer) in(t time.Time) time.Time {
	if r.location == nil {
		return t
	}
	return t.In(r.location)
}

// layout renders entries for a viewport width. Collapsed entries omit the
// sender header; entries opening a new day are preceded by a divider.
func (r renderer) layout(entries []feed.Entry, width int) layout {
	out := layout{starts: make([]int, 0, len(entries))}
	if width <= 0 {
		width = 80
	}
	body := lipgloss.NewStyle().Width(maxInt(1, width-len(bodyIndent)))

	for _, e := range entries {
		out.starts = append(out.starts, len(out.lines))
		if e.OtherDay {
			out.lines = append(out.lines, r.dayDivider(e.Message.Time, width))
		}

		if e.Message.IsActivity() {
			line := "· " + r.in(e.Message.Time).Format("15:04") + " " + e.Text
			for _, wrapped := range strings.Split(r.theme.activity().Width(width).Render(line), "\n") {
				out.lines = append(out.lines, strings.TrimRight(wrapped, " "))
			}
			continue
		}

		if !e.Collapse {
			sender := e.Message.From
			if strings.TrimSpace(sender) == "" {
				sender = systemSender
			}
			header := r.senders.Style(sender).Render(sender) + "  " +
				r.theme.muted().Render(r.in(e.Message.Time).Format("15:04"))
			out.lines = append(out.lines, header)
		}
		for _, line := range strings.Split(body.Render(e.Text), "\n") {
			out.lines = append(out.lines, bodyIndent+strings.TrimRight(line, " "))
		}
	}
	return out
}

func (r renderer) dayDivider(t time.Time, width int) string {
	label := " " + r.in(t).Format("Mon, Jan 2 2006") + " "
	if t.IsZero() {
		label = " unknown date "
	}
	side := (width - lipgloss.Width(label)) / 2
	if side < 2 {
		side = 2
	}
	rule := strings.Repeat("─", side)
	return r.theme.divider().Render(rule + label + rule)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
