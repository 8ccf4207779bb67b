package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/ageapps/chatfeed/internal/chat"
	"github.com/ageapps/chatfeed/internal/config"
	"github.com/ageapps/chatfeed/internal/history"
	"github.com/ageapps/chatfeed/internal/logging"
	"github.com/ageapps/chatfeed/internal/transport"
)

var errReadOnlyBackend = errors.New("history backend is read-only")

// store is a history backend that accepts new records.
type store interface {
	history.Service
	Append(ctx context.Context, msgs ...chat.Message) ([]chat.Message, error)
	Close() error
}

func openStore(ctx context.Context, cfg *config.Config) (store, error) {
	h := cfg.History
	logger := logging.Component("cli")

	switch h.Backend {
	case "sqlite":
		if err := cfg.EnsureDirectories(); err != nil {
			return nil, err
		}
		s, err := history.Open(h.SQLitePath, h.PageSize)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
		logger.Debug().Str("path", h.SQLitePath).Msg("sqlite history opened")
		return s, nil
	case "redis":
		s, err := history.NewRedisStore(ctx, h.RedisURL, history.RedisOptions{PageSize: h.PageSize})
		if err != nil {
			return nil, err
		}
		logger.Debug().Str("url", logging.RedactURL(h.RedisURL)).Msg("redis history connected")
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %s", errReadOnlyBackend, h.Backend)
	}
}

// openService returns the configured history service behind the response
// cache and the request limiter, and a func releasing the backend.
func openService(ctx context.Context, cfg *config.Config) (history.Service, func() error, error) {
	h := cfg.History

	var (
		base    history.Service
		release = func() error { return nil }
	)
	if h.Backend == "file" {
		pages, err := history.LoadFile(h.File)
		if err != nil {
			return nil, nil, err
		}
		base = history.NewStatic(pages, h.PageSize)
	} else {
		s, err := openStore(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		base, release = s, s.Close
	}

	limited := history.NewLimited(base, h.RatePerSecond, h.Burst)
	return history.NewCached(limited, h.CacheTTL, h.CacheCapacity), release, nil
}

func connectNATS(cfg *config.Config) (*transport.NATS, error) {
	t := cfg.Transport
	if t.Backend != "nats" {
		return nil, fmt.Errorf("transport backend %q has no live events; set transport.backend to nats", t.Backend)
	}
	nc, err := transport.ConnectNATS(t.NATSURL, t.SubjectPrefix)
	if err != nil {
		return nil, err
	}
	logging.Component("cli").Debug().Str("url", logging.RedactURL(t.NATSURL)).Msg("nats connected")
	return nc, nil
}
