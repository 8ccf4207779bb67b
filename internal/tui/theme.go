package tui

import (
	"hash/fnv"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// BaseColors defines global UI colors.
type BaseColors struct {
	Background string
	Foreground string
	Muted      string
	Accent     string
	Border     string
}

// FeedColors defines colors for display entries.
type FeedColors struct {
	Activity string
	Mention  string
	Divider  string
	Pending  string
}

// Theme defines the viewer style tokens.
type Theme struct {
	Name          string
	SenderPalette []string // ANSI-256 codes for sender identity colors

	Base BaseColors
	Feed FeedColors
}

// SenderColorPalette is an ANSI 256 palette for stable sender colors.
// Red and yellow slots stay free for mentions and the pending indicator.
var SenderColorPalette = []string{
	"33", "39", "45", "69", "75", "81", "87", "99",
	"111", "117", "123", "147", "153", "159", "183", "189",
}

// DefaultTheme is the baseline dark palette.
var DefaultTheme = Theme{
	Name:          "default",
	SenderPalette: SenderColorPalette,
	Base: BaseColors{
		Background: "234",
		Foreground: "252",
		Muted:      "245",
		Accent:     "75",
		Border:     "240",
	},
	Feed: FeedColors{
		Activity: "243",
		Mention:  "203",
		Divider:  "238",
		Pending:  "220",
	},
}

// HighContrastTheme maximizes foreground contrast.
var HighContrastTheme = Theme{
	Name:          "high-contrast",
	SenderPalette: []string{"15", "14", "11", "10", "13", "12"},
	Base: BaseColors{
		Background: "0",
		Foreground: "15",
		Muted:      "250",
		Accent:     "14",
		Border:     "15",
	},
	Feed: FeedColors{
		Activity: "250",
		Mention:  "9",
		Divider:  "15",
		Pending:  "11",
	},
}

// Themes lists available palettes by name.
var Themes = map[string]Theme{
	DefaultTheme.Name:      DefaultTheme,
	HighContrastTheme.Name: HighContrastTheme,
}

// ThemeByName resolves a palette, falling back to DefaultTheme.
func ThemeByName(name string) Theme {
	if theme, ok := Themes[strings.ToLower(strings.TrimSpace(name))]; ok {
		return theme
	}
	return DefaultTheme
}

func (t Theme) base() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(t.Base.Foreground))
}

func (t Theme) muted() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(t.Base.Muted))
}

func (t Theme) header() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(t.Base.Accent)).Bold(true)
}

func (t Theme) activity() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(t.Feed.Activity)).Italic(true)
}

func (t Theme) divider() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(t.Feed.Divider))
}

func (t Theme) pending() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(t.Feed.Pending)).Bold(true)
}

func (t Theme) border() lipgloss.Style {
	return lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(t.Base.Border))
}

// MentionMarkup returns a mention wrapper for feed.Rules that highlights
// "@name" tokens in the theme's mention color.
func (t Theme) MentionMarkup() func(string) string {
	style := lipgloss.NewStyle().Foreground(lipgloss.Color(t.Feed.Mention)).Bold(true)
	return func(token string) string {
		return style.Render(token)
	}
}

// SenderColors resolves deterministic per-sender styles and caches them.
type SenderColors struct {
	palette []string

	mu    sync.RWMutex
	cache map[string]lipgloss.Style
}

// NewSenderColors returns a mapper over palette, or SenderColorPalette when
// palette is empty.
func NewSenderColors(palette []string) *SenderColors {
	if len(palette) == 0 {
		palette = SenderColorPalette
	}
	return &SenderColors{
		palette: append([]string(nil), palette...),
		cache:   make(map[string]lipgloss.Style, 64),
	}
}

// Style returns the cached foreground style for sender.
func (c *SenderColors) Style(sender string) lipgloss.Style {
	key := strings.ToLower(strings.TrimSpace(sender))

	c.mu.RLock()
	if style, ok := c.cache[key]; ok {
		c.mu.RUnlock()
		return style
	}
	c.mu.RUnlock()

	style := lipgloss.NewStyle().Foreground(lipgloss.Color(c.ColorCode(key))).Bold(true)

	c.mu.Lock()
	c.cache[key] = style
	c.mu.Unlock()
	return style
}

// ColorCode returns the palette entry for sender.
func (c *SenderColors) ColorCode(sender string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToLower(strings.TrimSpace(sender))))
	return c.palette[int(h.Sum32()%uint32(len(c.palette)))]
}
