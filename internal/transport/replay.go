package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ageapps/chatfeed/internal/chat"
)

// Publisher accepts transport events.
type Publisher interface {
	Publish(ctx context.Context, e chat.Event) error
}

// Replay reads newline-delimited transport events from r and publishes them
// to p, waiting interval between events. Blank lines and lines starting with
// # are skipped; events of unknown kind are skipped too. It returns the number
// of events published.
func Replay(ctx context.Context, r io.Reader, p Publisher, interval time.Duration) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	published := 0
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		e, err := chat.DecodeEvent([]byte(text))
		if errors.Is(err, chat.ErrUnknownKind) {
			continue
		}
		if err != nil {
			return published, fmt.Errorf("line %d: %w", line, err)
		}
		if published > 0 && interval > 0 {
			timer := time.NewTimer(interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return published, ctx.Err()
			case <-timer.C:
			}
		}
		if err := p.Publish(ctx, e); err != nil {
			return published, err
		}
		published++
	}
	if err := scanner.Err(); err != nil {
		return published, fmt.Errorf("read events: %w", err)
	}
	return published, nil
}
