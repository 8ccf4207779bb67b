// Package tui renders a chat feed session in the terminal.
package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ageapps/chatfeed/internal/session"
)

// Sender delivers messages to a running program. *tea.Program satisfies it.
type Sender interface {
	Send(msg tea.Msg)
}

type frameMsg struct {
	frame session.Frame
}

type intentMsg struct {
	intent session.Intent
}

type errorMsg struct {
	err error
}

// Surface implements session.Surface by forwarding frames and scroll intents
// to the program event loop, which keeps them in order.
type Surface struct {
	mu     sync.RWMutex
	sender Sender
}

// NewSurface returns a surface with no program attached. Output is dropped
// until Attach.
func NewSurface() *Surface {
	return &Surface{}
}

// Attach sets the program that receives controller output.
func (s *Surface) Attach(sender Sender) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sender = sender
}

// Render implements session.Surface.
func (s *Surface) Render(f session.Frame) {
	s.send(frameMsg{frame: f})
}

// Apply implements session.Surface.
func (s *Surface) Apply(i session.Intent) {
	s.send(intentMsg{intent: i})
}

// Report shows err in the status line until the next load-more.
func (s *Surface) Report(err error) {
	if err != nil {
		s.send(errorMsg{err: err})
	}
}

func (s *Surface) send(msg tea.Msg) {
	s.mu.RLock()
	sender := s.sender
	s.mu.RUnlock()
	if sender != nil {
		sender.Send(msg)
	}
}
