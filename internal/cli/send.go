package cli

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ageapps/chatfeed/internal/chat"
	"github.com/ageapps/chatfeed/internal/history"
	"github.com/ageapps/chatfeed/internal/transport"
)

var mentionPattern = regexp.MustCompile(`@([A-Za-z0-9_.-]+)`)

type sendOptions struct {
	from     string
	activity bool
	open     bool
	store    bool
}

func newSendCmd(a *app) *cobra.Command {
	opts := &sendOptions{}
	cmd := &cobra.Command{
		Use:   "send <room> [text]",
		Short: "Publish a live event to a room",
		Long: "Publish a chat or activity record, or a room-open event, on the live\n" +
			"transport. @name tokens in the text become mentions.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd, a, opts, args)
		},
	}
	cmd.Flags().StringVar(&opts.from, "from", "", "sender id")
	cmd.Flags().BoolVar(&opts.activity, "activity", false, "send an activity record instead of a chat message")
	cmd.Flags().BoolVar(&opts.open, "open", false, "send a room-open event")
	cmd.Flags().BoolVar(&opts.store, "store", false, "also append the record to the history backend")
	return cmd
}

func runSend(cmd *cobra.Command, a *app, opts *sendOptions, args []string) error {
	text := ""
	if len(args) > 1 {
		text = args[1]
	}
	event, err := buildEvent(args[0], text, opts, time.Now())
	if err != nil {
		return Exitf(ExitCodeUsage, "%w", err)
	}

	nc, err := connectNATS(a.cfg)
	if err != nil {
		return Exitf(ExitCodeFailure, "connect transport: %w", err)
	}
	defer func() { _ = nc.Close() }()

	room := transport.EventRoom(event)
	if err := nc.Publish(cmd.Context(), room, event); err != nil {
		return Exitf(ExitCodeFailure, "publish: %w", err)
	}

	if opts.store {
		if err := storeEvent(cmd.Context(), a, event); err != nil {
			return Exitf(ExitCodeFailure, "store: %w", err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Sent %s to %s\n", event.Kind(), room)
	return nil
}

// buildEvent assembles the event described by the send flags.
func buildEvent(room, text string, opts *sendOptions, now time.Time) (chat.Event, error) {
	normalized, err := chat.NormalizeRoom(room)
	if err != nil {
		return nil, err
	}
	if opts.open {
		if opts.activity {
			return nil, errors.New("--open and --activity are exclusive")
		}
		return chat.RoomOpenEvent{Room: normalized, At: now}, nil
	}

	mentions, err := chat.NormalizeMentions(parseMentions(text))
	if err != nil {
		return nil, err
	}
	kind := chat.KindChat
	if opts.activity {
		kind = chat.KindActivity
	}
	msg, err := chat.NormalizeMessage(chat.Message{
		ID:       history.NewID(now),
		Room:     normalized,
		From:     opts.from,
		Time:     now,
		Kind:     kind,
		Text:     text,
		Mentions: mentions,
	})
	if err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	if opts.activity {
		return chat.NewActivity(msg), nil
	}
	return chat.NewChat(msg), nil
}

// parseMentions returns one mention per distinct @name token in text.
func parseMentions(text string) []chat.Mention {
	var mentions []chat.Mention
	seen := make(map[string]struct{})
	for _, match := range mentionPattern.FindAllStringSubmatch(text, -1) {
		name := strings.TrimRight(match[1], ".")
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		mentions = append(mentions, chat.Mention{Name: name})
	}
	return mentions
}

func storeEvent(ctx context.Context, a *app, e chat.Event) error {
	var msg chat.Message
	switch e := e.(type) {
	case chat.ChatEvent:
		msg = e.Message
	case chat.ActivityEvent:
		msg = e.Message
	default:
		return nil
	}
	s, err := openStore(ctx, a.cfg)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	_, err = s.Append(ctx, msg)
	return err
}
