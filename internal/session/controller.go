package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ageapps/chatfeed/internal/chat"
	"github.com/ageapps/chatfeed/internal/feed"
	"github.com/ageapps/chatfeed/internal/history"
	"github.com/ageapps/chatfeed/internal/logging"
	"github.com/ageapps/chatfeed/internal/metrics"
)

const (
	DefaultFetchTimeout = 10 * time.Second
	inboxSize           = 64
	errorBuffer         = 16
)

// Config tunes a Controller.
type Config struct {
	Rules        feed.Rules
	Scroll       ScrollTracker
	PageSize     int
	FetchTimeout time.Duration
}

// DefaultConfig returns the stock controller configuration.
func DefaultConfig() Config {
	return Config{
		Rules:        feed.DefaultRules(),
		Scroll:       DefaultScrollTracker(),
		PageSize:     history.DefaultPageSize,
		FetchTimeout: DefaultFetchTimeout,
	}
}

// Frame is what the surface renders.
type Frame struct {
	Room    string
	Entries []feed.Entry
	State   State
	Label   string
}

// Surface presents frames and executes scroll intents. Both calls happen on
// the controller loop; Apply always follows the Render it belongs to.
type Surface interface {
	Render(Frame)
	Apply(Intent)
}

// Snapshot is a copy of the controller's view of the session.
type Snapshot struct {
	State   State
	Entries []feed.Entry
	Pages   int
	Live    int
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithErrors routes fetch failures to ch instead of the internal channel
// returned by Errors.
func WithErrors(ch chan<- error) Option {
	return func(c *Controller) {
		c.errOut = ch
	}
}

type (
	eventCmd    struct{ event chat.Event }
	loadMoreCmd struct{}
	scrollCmd   struct{ metrics Metrics }
	snapshotCmd struct{ reply chan Snapshot }
	fetchResult struct {
		op    Op
		room  string
		epoch uint64
		pages []chat.HistoryPage
		err   error
	}
)

// Controller serializes transport events, fetch completions, and scroll
// samples onto one loop. All session state is owned by that loop.
type Controller struct {
	cfg     Config
	svc     history.Service
	surface Surface
	logger  zerolog.Logger
	pager   Pager
	router  Router

	inbox   chan any
	errs    chan error
	errOut  chan<- error
	done    chan struct{}
	running atomic.Bool
	fetches sync.WaitGroup

	// Loop-owned.
	runCtx     context.Context
	roomCancel context.CancelFunc
	roomCtx    context.Context
	state      State
	pages      []chat.HistoryPage
	live       []chat.Message
	entries    []feed.Entry
}

// New creates a controller. Call Run to start it.
func New(cfg Config, svc history.Service, surface Surface, opts ...Option) *Controller {
	if cfg.PageSize <= 0 {
		cfg.PageSize = history.DefaultPageSize
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if surface == nil {
		surface = discardSurface{}
	}

	c := &Controller{
		cfg:     cfg,
		svc:     svc,
		surface: surface,
		logger:  logging.Component("session"),
		inbox:   make(chan any, inboxSize),
		errs:    make(chan error, errorBuffer),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.errOut == nil {
		c.errOut = c.errs
	}
	c.router = Router{
		OnChat:     c.onLive,
		OnActivity: c.onLive,
		OnRoomOpen: c.onRoomOpen,
	}
	return c
}

// Run processes commands until ctx ends. It may be called once.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return errors.New("controller already running")
	}
	c.runCtx = ctx
	c.roomCtx = ctx
	defer func() {
		if c.roomCancel != nil {
			c.roomCancel()
		}
		close(c.done)
		c.fetches.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-c.inbox:
			c.handle(cmd)
		}
	}
}

// Deliver queues a transport event. It returns false once the controller
// has stopped.
func (c *Controller) Deliver(e chat.Event) bool {
	return c.send(eventCmd{event: e})
}

// LoadMore requests the next page of older history. It is ignored while a
// fetch is in flight or the history is exhausted.
func (c *Controller) LoadMore() bool {
	return c.send(loadMoreCmd{})
}

// Scrolled reports a scroll sample from the surface.
func (c *Controller) Scrolled(m Metrics) bool {
	return c.send(scrollCmd{metrics: m})
}

// Errors returns the channel fetch failures are reported on. It is nil when
// WithErrors supplied a channel.
func (c *Controller) Errors() <-chan error {
	if c.errOut != c.errs {
		return nil
	}
	return c.errs
}

// Snapshot returns the session as seen after every previously queued
// command has been handled. A stopped controller returns the zero Snapshot.
func (c *Controller) Snapshot() Snapshot {
	reply := make(chan Snapshot, 1)
	if !c.send(snapshotCmd{reply: reply}) {
		return Snapshot{}
	}
	select {
	case snap := <-reply:
		return snap
	case <-c.done:
		return Snapshot{}
	}
}

func (c *Controller) send(cmd any) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.inbox <- cmd:
		return true
	case <-c.done:
		return false
	}
}

func (c *Controller) handle(cmd any) {
	switch cmd := cmd.(type) {
	case eventCmd:
		c.handleEvent(cmd.event)
	case loadMoreCmd:
		c.loadMore()
	case scrollCmd:
		c.scrolled(cmd.metrics)
	case fetchResult:
		c.handleResult(cmd)
	case snapshotCmd:
		cmd.reply <- c.snapshot()
	}
}

func (c *Controller) handleEvent(e chat.Event) {
	if e == nil {
		metrics.EventsSkipped.WithLabelValues("unknown_kind").Inc()
		return
	}
	metrics.EventsTotal.WithLabelValues(string(e.Kind())).Inc()
	if err := c.router.Dispatch(e); err != nil {
		c.logger.Warn().Err(err).Str("kind", string(e.Kind())).Msg("event dropped")
	}
}

func (c *Controller) onRoomOpen(e chat.RoomOpenEvent) error {
	room, err := chat.NormalizeRoom(e.Room)
	if err != nil {
		return err
	}

	if c.roomCancel != nil {
		c.roomCancel()
	}
	c.roomCtx, c.roomCancel = context.WithCancel(c.runCtx)

	c.state = c.pager.Opening(c.state.Open(room))
	c.pages, c.live, c.entries = nil, nil, nil
	metrics.DisplayedEntries.Set(0)
	c.logger.Info().Str("room_id", room).Uint64("epoch", c.state.Epoch).Msg("room opened")
	c.render()
	c.fetchRoom()
	return nil
}

// fetchRoom requests the latest page of the current room.
func (c *Controller) fetchRoom() {
	room := c.state.RoomID
	c.fetch(fetchResult{op: OpRoomHistory, room: room, epoch: c.state.Epoch}, func(ctx context.Context) ([]chat.HistoryPage, error) {
		h, err := c.svc.RoomHistory(ctx, room)
		if err != nil {
			return nil, err
		}
		return h.Pages(room), nil
	})
}

func (c *Controller) onLive(msg chat.Message) error {
	if msg.Room != "" && c.state.RoomID != "" && msg.Room != c.state.RoomID {
		metrics.EventsSkipped.WithLabelValues("other_room").Inc()
		c.logger.Debug().Str("room_id", msg.Room).Str("current", c.state.RoomID).Msg("ignoring record for another room")
		return nil
	}

	entries, err := c.cfg.Rules.Append(c.entries, msg)
	if errors.Is(err, feed.ErrEmptySequence) {
		metrics.EventsSkipped.WithLabelValues("empty_sequence").Inc()
		c.logger.Warn().Str("room_id", c.state.RoomID).Str("record_id", msg.ID).Msg("activity before any record, skipping")
		return nil
	}
	if err != nil {
		return err
	}

	c.entries = entries
	c.live = append(c.live, msg)
	metrics.DisplayedEntries.Set(float64(len(c.entries)))
	if c.state.ReadingChat {
		c.state.PendingNew++
	}
	c.publish(c.cfg.Scroll.Decide(c.state, Change{Cause: CauseLive}))
	return nil
}

func (c *Controller) loadMore() {
	state, err := c.pager.Begin(c.state)
	if err != nil {
		c.logger.Debug().Err(err).Str("room_id", c.state.RoomID).Msg("load more ignored")
		return
	}
	c.state = state
	if c.state.Reload {
		c.logger.Debug().Str("room_id", c.state.RoomID).Msg("retrying room history")
		c.render()
		c.fetchRoom()
		return
	}

	before, ok := c.oldest()
	if !ok {
		// Nothing displayed carries a timestamp, so no older page can be
		// addressed.
		c.logger.Debug().Str("room_id", c.state.RoomID).Msg("no history cursor, history exhausted")
		c.state = c.pager.Exhausted(c.state)
		c.render()
		return
	}
	c.render()

	q := history.Query{Room: c.state.RoomID, Before: before, Limit: c.cfg.PageSize}
	c.fetch(fetchResult{op: OpMoreHistory, room: q.Room, epoch: c.state.Epoch}, func(ctx context.Context) ([]chat.HistoryPage, error) {
		return c.svc.MoreHistory(ctx, q)
	})
}

func (c *Controller) scrolled(m Metrics) {
	prev := c.state
	c.state = c.cfg.Scroll.Sample(c.state, m)
	if prev.ReadingChat != c.state.ReadingChat || prev.PendingNew != c.state.PendingNew {
		c.logger.Debug().Stringer("mode", c.state.Mode()).Msg("reading state changed")
		c.render()
	}
}

// fetch runs call off the loop and posts its result back onto it.
func (c *Controller) fetch(res fetchResult, call func(context.Context) ([]chat.HistoryPage, error)) {
	parent := c.roomCtx
	c.fetches.Add(1)
	go func() {
		defer c.fetches.Done()
		ctx, cancel := context.WithTimeout(parent, c.cfg.FetchTimeout)
		defer cancel()
		res.pages, res.err = call(ctx)
		select {
		case c.inbox <- res:
		case <-c.done:
		}
	}()
}

func (c *Controller) handleResult(res fetchResult) {
	if res.room != c.state.RoomID || res.epoch != c.state.Epoch {
		metrics.StaleResponses.Inc()
		c.logger.Debug().Str("room_id", res.room).Str("op", string(res.op)).Msg("discarding stale history response")
		return
	}

	if res.err != nil {
		metrics.FetchesTotal.WithLabelValues(string(res.op), "error").Inc()
		if res.op == OpRoomHistory {
			c.state = c.pager.OpenFailed(c.state)
		} else {
			c.state = c.pager.Failed(c.state)
		}
		c.report(&FetchError{Op: res.op, Room: res.room, Err: res.err})
		c.render()
		return
	}

	var ok bool
	switch res.op {
	case OpRoomHistory:
		c.state, ok = c.pager.Opened(c.state, res.pages)
	case OpMoreHistory:
		c.state, ok = c.pager.Complete(c.state, res.pages)
	}
	if !ok {
		metrics.FetchesTotal.WithLabelValues(string(res.op), "empty").Inc()
		c.render()
		return
	}
	metrics.FetchesTotal.WithLabelValues(string(res.op), "ok").Inc()

	change := Change{Cause: CauseRoomOpen}
	previous := c.entries
	c.pages = append(c.pages, chat.ClonePages(res.pages)...)
	c.rebuild()
	if res.op == OpMoreHistory {
		change.Cause = CauseHistory
		change.Prepended = prepended(previous, c.entries)
		if change.Prepended > 0 {
			change.AnchorID = c.entries[0].ID()
		}
	}

	intent := c.cfg.Scroll.Decide(c.state, change)
	c.state = c.pager.Rendered(c.state)
	c.publish(intent)
}

// rebuild re-runs the full pipeline over every history page plus the live
// records received since the room opened.
func (c *Controller) rebuild() {
	start := time.Now()
	all := make([]chat.HistoryPage, 0, len(c.pages)+1)
	all = append(all, c.pages...)
	if len(c.live) > 0 {
		all = append(all, chat.HistoryPage{Room: c.state.RoomID, Data: c.live})
	}
	c.entries = c.cfg.Rules.Build(feed.Dedupe(feed.Normalize(all)))
	metrics.ObserveAnnotation(start)
	metrics.DisplayedEntries.Set(float64(len(c.entries)))
}

// oldest returns the cursor for the next page: the earliest known record
// time, skipping records without a timestamp. It reports false when no
// displayed record has one.
func (c *Controller) oldest() (time.Time, bool) {
	for _, e := range c.entries {
		if !e.Message.Time.IsZero() {
			return e.Message.Time, true
		}
	}
	return time.Time{}, false
}

// prepended counts the entries of after that precede the first entry of
// before. The old first entry is found by id; records without ids are
// matched by count, since a page only adds older records.
func prepended(before, after []feed.Entry) int {
	if len(before) == 0 {
		return len(after)
	}
	if id := before[0].ID(); id != "" {
		for i, e := range after {
			if e.ID() == id {
				return i
			}
		}
	}
	return max(0, len(after)-len(before))
}

func (c *Controller) render() {
	c.surface.Render(Frame{
		Room:    c.state.RoomID,
		Entries: c.entries,
		State:   c.state,
		Label:   c.state.HistoryLabel(),
	})
}

func (c *Controller) publish(intent Intent) {
	c.render()
	if intent.Kind != ScrollNone {
		c.surface.Apply(intent)
	}
}

func (c *Controller) report(err error) {
	c.logger.Warn().Err(err).Msg("history fetch failed")
	select {
	case c.errOut <- err:
	default:
		c.logger.Warn().Msg("error channel full, dropping fetch error")
	}
}

func (c *Controller) snapshot() Snapshot {
	entries := make([]feed.Entry, len(c.entries))
	copy(entries, c.entries)
	return Snapshot{
		State:   c.state,
		Entries: entries,
		Pages:   len(c.pages),
		Live:    len(c.live),
	}
}

type discardSurface struct{}

func (discardSurface) Render(Frame) {}
func (discardSurface) Apply(Intent) {}
