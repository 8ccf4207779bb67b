package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ageapps/chatfeed/internal/chat"
	"github.com/ageapps/chatfeed/internal/config"
	"github.com/ageapps/chatfeed/internal/logging"
	"github.com/ageapps/chatfeed/internal/metrics"
	"github.com/ageapps/chatfeed/internal/session"
	"github.com/ageapps/chatfeed/internal/transport"
	"github.com/ageapps/chatfeed/internal/tui"
)

const shutdownTimeout = 3 * time.Second

type viewOptions struct {
	replay         string
	replayInterval time.Duration
	theme          string
	contextFile    string
}

func newViewCmd(a *app) *cobra.Command {
	opts := &viewOptions{}
	cmd := &cobra.Command{
		Use:   "view [room]",
		Short: "Open a room in the terminal viewer",
		Long: "Open a room's history in the terminal viewer and follow live messages.\n" +
			"Without a room argument the last viewed room is reopened.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runView(cmd, a, opts, args)
		},
	}
	cmd.Flags().StringVar(&opts.replay, "replay", "", "replay newline-delimited events from a file as live traffic")
	cmd.Flags().DurationVar(&opts.replayInterval, "replay-interval", 500*time.Millisecond, "delay between replayed events")
	cmd.Flags().StringVar(&opts.theme, "theme", "default", "color theme (default, high-contrast)")
	cmd.Flags().StringVar(&opts.contextFile, "context-file", "", "file remembering the last viewed room")
	return cmd
}

// resolveRoom picks the room argument or falls back to the remembered one.
func resolveRoom(args []string, contexts *config.ContextStore) (string, error) {
	raw := ""
	if len(args) > 0 {
		raw = args[0]
	} else {
		last, err := contexts.Load()
		if err != nil {
			return "", err
		}
		if last.IsEmpty() {
			return "", Exitf(ExitCodeUsage, "no room given and no previous room to reopen")
		}
		raw = last.Room
	}
	room, err := chat.NormalizeRoom(raw)
	if err != nil {
		return "", Exitf(ExitCodeUsage, "invalid room %q: %w", raw, err)
	}
	return room, nil
}

func controllerConfig(cfg *config.Config) (session.Config, error) {
	rules, err := cfg.Feed.Rules()
	if err != nil {
		return session.Config{}, err
	}
	return session.Config{
		Rules: rules,
		Scroll: session.ScrollTracker{
			ReadingFactor: cfg.Scroll.ReadingFactor,
			EdgeDelay:     cfg.Scroll.EdgeDelay,
		},
		PageSize:     cfg.History.PageSize,
		FetchTimeout: cfg.History.FetchTimeout,
	}, nil
}

func runView(cmd *cobra.Command, a *app, opts *viewOptions, args []string) error {
	contexts := config.NewContextStore(opts.contextFile)
	room, err := resolveRoom(args, contexts)
	if err != nil {
		return err
	}

	// The viewer owns the terminal: logs go to the configured file or nowhere.
	if a.cfg.Logging.File == "" {
		logging.Init(logging.Config{Level: "disabled"})
	}
	logger := logging.WithRoom(logging.Component("cli"), room)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	svc, release, err := openService(ctx, a.cfg)
	if err != nil {
		return Exitf(ExitCodeFailure, "open history: %w", err)
	}
	defer func() { _ = release() }()

	sessionCfg, err := controllerConfig(a.cfg)
	if err != nil {
		return Exitf(ExitCodeUsage, "feed rules: %w", err)
	}
	theme := tui.ThemeByName(opts.theme)
	// Stock HTML mention markup is replaced by the theme color on a terminal.
	if a.cfg.Feed.MentionOpen == config.DefaultConfig().Feed.MentionOpen {
		sessionCfg.Rules.MentionMarkup = theme.MentionMarkup()
	}

	bus := transport.NewBus()
	live, err := subscribeLive(ctx, a.cfg, bus)
	if err != nil {
		return Exitf(ExitCodeFailure, "%w", err)
	}
	defer live.Close()

	var replay *os.File
	if opts.replay != "" {
		replay, err = os.Open(opts.replay)
		if err != nil {
			return Exitf(ExitCodeFailure, "open replay file: %w", err)
		}
		defer replay.Close()
	}

	surface := tui.NewSurface()
	errs := make(chan error, 16)
	ctrl := session.New(sessionCfg, svc, surface,
		session.WithLogger(logging.Component("session")),
		session.WithErrors(errs),
	)
	model := tui.New(ctrl, tui.WithTheme(theme), tui.WithLocation(sessionCfg.Rules.Location))
	program := tea.NewProgram(model,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)
	surface.Attach(program)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return ctrl.Run(gctx)
	})
	g.Go(func() error {
		return forward(gctx, live.bus.Events(), ctrl.Deliver)
	})
	for _, src := range live.upstream {
		g.Go(func() error {
			return forward(gctx, src.Events(), func(e chat.Event) bool {
				return bus.Publish(gctx, e) == nil
			})
		})
	}
	if replay != nil {
		g.Go(func() error {
			n, err := transport.Replay(gctx, replay, bus, opts.replayInterval)
			logger.Info().Int("events", n).Msg("replay finished")
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case err := <-errs:
				surface.Report(err)
			}
		}
	})
	if a.cfg.Metrics.Enabled {
		server := metrics.NewServer(a.cfg.Metrics.Addr)
		g.Go(func() error {
			return serveMetrics(gctx, server)
		})
	}
	g.Go(func() error {
		defer cancel()
		_, err := program.Run()
		if errors.Is(err, tea.ErrProgramKilled) {
			return nil
		}
		return err
	})

	ctrl.Deliver(chat.RoomOpenEvent{Room: room, At: time.Now()})

	last, err := contexts.Load()
	if err != nil {
		logger.Warn().Err(err).Msg("read last room")
		last = &config.Context{}
	}
	last.SetRoom(room, time.Now())
	if err := contexts.Save(last); err != nil {
		logger.Warn().Err(err).Msg("remember last room")
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return Exitf(ExitCodeFailure, "view %s: %w", room, err)
	}
	return nil
}

// liveSources are the subscriptions feeding the controller: the bus it reads
// and the upstream sources relayed onto that bus.
type liveSources struct {
	bus      transport.Source
	upstream []transport.Source
	closers  []func() error
}

func (l *liveSources) Close() {
	for i := len(l.closers) - 1; i >= 0; i-- {
		_ = l.closers[i]()
	}
}

// subscribeLive follows every room, on the bus and with the nats backend on
// the wildcard subject. A room-open from the transport switches the
// controller's room, and the controller drops records of other rooms itself.
func subscribeLive(ctx context.Context, cfg *config.Config, bus *transport.Bus) (*liveSources, error) {
	live := &liveSources{bus: bus.Source(transport.Filter{})}
	live.closers = append(live.closers, live.bus.Close)

	if cfg.Transport.Backend != "nats" {
		return live, nil
	}
	nc, err := connectNATS(cfg)
	if err != nil {
		live.Close()
		return nil, fmt.Errorf("connect transport: %w", err)
	}
	live.closers = append(live.closers, nc.Close)
	src, err := nc.Subscribe(ctx, "")
	if err != nil {
		live.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	live.closers = append(live.closers, src.Close)
	live.upstream = append(live.upstream, src)
	return live, nil
}

// forward hands events to deliver until the source closes or ctx ends.
func forward(ctx context.Context, events <-chan chat.Event, deliver func(chat.Event) bool) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			if !deliver(e) {
				return nil
			}
		}
	}
}

// serveMetrics runs server until ctx ends.
func serveMetrics(ctx context.Context, server *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	logging.Component("cli").Info().Str("addr", server.Addr).Msg("serving metrics")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown metrics server: %w", err)
		}
		return nil
	}
}
