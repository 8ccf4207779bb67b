package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ageapps/chatfeed/internal/chat"
	"github.com/ageapps/chatfeed/internal/feed"
	"github.com/ageapps/chatfeed/internal/history"
)

type dumpOptions struct {
	room     string
	pages    int
	jsonOut  bool
	timezone string
}

// dumpEntry is the JSON shape of one annotated entry.
type dumpEntry struct {
	ID                 string    `json:"id,omitempty"`
	Room               string    `json:"room,omitempty"`
	From               string    `json:"from,omitempty"`
	Time               time.Time `json:"time"`
	Kind               chat.Kind `json:"kind"`
	Text               string    `json:"text"`
	Collapse           bool      `json:"collapse"`
	OtherDay           bool      `json:"other_day"`
	MentionHighlighted bool      `json:"mention_highlighted"`
}

func newDumpCmd(a *app) *cobra.Command {
	opts := &dumpOptions{}
	cmd := &cobra.Command{
		Use:   "dump [file]",
		Short: "Print a room's annotated history",
		Long: "Print annotated history entries. With a file argument the JSON history\n" +
			"file is annotated; otherwise --room is read from the configured backend.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(cmd, a, opts, args)
		},
	}
	cmd.Flags().StringVar(&opts.room, "room", "", "room to dump")
	cmd.Flags().IntVar(&opts.pages, "pages", 1, "history pages to read from the backend")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "output as JSON")
	cmd.Flags().StringVar(&opts.timezone, "timezone", "", "override feed.timezone")
	return cmd
}

func runDump(cmd *cobra.Command, a *app, opts *dumpOptions, args []string) error {
	feedCfg := a.cfg.Feed
	if opts.timezone != "" {
		feedCfg.Timezone = opts.timezone
	}
	rules, err := feedCfg.Rules()
	if err != nil {
		return Exitf(ExitCodeUsage, "feed rules: %w", err)
	}

	var pages []chat.HistoryPage
	switch {
	case len(args) == 1:
		pages, err = history.LoadFile(args[0])
		if err != nil {
			return Exitf(ExitCodeFailure, "%w", err)
		}
		if opts.room != "" {
			pages = filterRoom(pages, opts.room)
		}
	case opts.room != "":
		svc, release, err := openService(cmd.Context(), a.cfg)
		if err != nil {
			return Exitf(ExitCodeFailure, "open history: %w", err)
		}
		defer func() { _ = release() }()
		pages, err = collectHistory(cmd.Context(), svc, opts.room, opts.pages, a.cfg.History.PageSize)
		if err != nil {
			return Exitf(ExitCodeFailure, "read history: %w", err)
		}
	default:
		return Exitf(ExitCodeUsage, "dump needs a history file or --room")
	}

	entries := rules.Build(feed.Dedupe(feed.Normalize(pages)))
	if opts.jsonOut {
		return writeDumpJSON(cmd.OutOrStdout(), entries)
	}
	return writeDumpText(cmd.OutOrStdout(), entries, rules.Location)
}

// filterRoom keeps the records of room. Records without a room take the room
// of their page.
func filterRoom(pages []chat.HistoryPage, room string) []chat.HistoryPage {
	var out []chat.HistoryPage
	for _, page := range pages {
		kept := chat.HistoryPage{Room: room}
		for _, msg := range page.Data {
			r := msg.Room
			if r == "" {
				r = page.Room
			}
			if r == room {
				kept.Data = append(kept.Data, msg)
			}
		}
		if len(kept.Data) > 0 {
			out = append(out, kept)
		}
	}
	return out
}

// collectHistory reads the latest page of room and up to maxPages-1 older
// pages, stopping early once the history is exhausted.
func collectHistory(ctx context.Context, svc history.Service, room string, maxPages, pageSize int) ([]chat.HistoryPage, error) {
	h, err := svc.RoomHistory(ctx, room)
	if err != nil {
		return nil, err
	}
	pages := chat.ClonePages(h.Pages(room))
	if history.CountRecords(pages) == 0 {
		return nil, nil
	}

	for read := 1; read < maxPages; read++ {
		before := oldestTime(pages)
		if before.IsZero() {
			break
		}
		more, err := svc.MoreHistory(ctx, history.Query{Room: room, Before: before, Limit: pageSize})
		if err != nil {
			return nil, err
		}
		if history.CountRecords(more) == 0 {
			break
		}
		pages = append(pages, more...)
	}
	return pages, nil
}

func oldestTime(pages []chat.HistoryPage) time.Time {
	var oldest time.Time
	for _, page := range pages {
		for _, msg := range page.Data {
			if msg.Time.IsZero() {
				continue
			}
			if oldest.IsZero() || msg.Time.Before(oldest) {
				oldest = msg.Time
			}
		}
	}
	return oldest
}

func writeDumpJSON(w io.Writer, entries []feed.Entry) error {
	out := make([]dumpEntry, len(entries))
	for i, e := range entries {
		out[i] = dumpEntry{
			ID:                 e.Message.ID,
			Room:               e.Message.Room,
			From:               e.Message.From,
			Time:               e.Message.Time,
			Kind:               e.Message.Kind,
			Text:               e.Text,
			Collapse:           e.Collapse,
			OtherDay:           e.OtherDay,
			MentionHighlighted: e.MentionHighlighted,
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func writeDumpText(w io.Writer, entries []feed.Entry, loc *time.Location) error {
	writer := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	for _, e := range entries {
		t := e.Message.Time
		if loc != nil {
			t = t.In(loc)
		}
		if e.OtherDay {
			day := "unknown date"
			if !t.IsZero() {
				day = t.Format("Mon, Jan 2 2006")
			}
			fmt.Fprintf(writer, "-- %s --\t\t\t\n", day)
		}
		sender := e.Message.From
		if e.Collapse {
			sender = ""
		}
		if e.Message.IsActivity() {
			sender = "*"
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n", t.Format("15:04"), sender, flags(e), e.Text)
	}
	return writer.Flush()
}

func flags(e feed.Entry) string {
	var b strings.Builder
	if e.Collapse {
		b.WriteByte('c')
	}
	if e.OtherDay {
		b.WriteByte('d')
	}
	if e.MentionHighlighted {
		b.WriteByte('m')
	}
	if b.Len() == 0 {
		return "-"
	}
	return b.String()
}
