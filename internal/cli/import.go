package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ageapps/chatfeed/internal/chat"
	"github.com/ageapps/chatfeed/internal/history"
	"github.com/ageapps/chatfeed/internal/logging"
)

const importBatch = 500

func newImportCmd(a *app) *cobra.Command {
	var room string
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Load a JSON history file into the history backend",
		Long: "Load a JSON history file into the sqlite or redis backend. Records\n" +
			"without an id get a time-ordered one; records already stored are skipped.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, a, args[0], room)
		},
	}
	cmd.Flags().StringVar(&room, "room", "", "assign records without a room to this room")
	return cmd
}

func runImport(cmd *cobra.Command, a *app, path, room string) error {
	pages, err := loadImport(path, room)
	if err != nil {
		return err
	}

	s, err := openStore(cmd.Context(), a.cfg)
	if err != nil {
		return Exitf(ExitCodeFailure, "open history: %w", err)
	}
	defer func() { _ = s.Close() }()

	logger := logging.Component("cli")
	imported := 0
	for _, page := range pages {
		for start := 0; start < len(page.Data); start += importBatch {
			end := min(start+importBatch, len(page.Data))
			stored, err := s.Append(cmd.Context(), page.Data[start:end]...)
			if err != nil {
				return Exitf(ExitCodeFailure, "import room %s: %w", page.Room, err)
			}
			imported += len(stored)
		}
		logger.Debug().Str("room_id", page.Room).Int("records", len(page.Data)).Msg("page imported")
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d records from %s into %s history\n", imported, path, a.cfg.History.Backend)
	return nil
}

// loadImport reads path and fills in the room of records that carry none:
// the page room first, then room.
func loadImport(path, room string) ([]chat.HistoryPage, error) {
	pages, err := history.LoadFile(path)
	if err != nil {
		return nil, Exitf(ExitCodeFailure, "%w", err)
	}
	if room != "" {
		normalized, err := chat.NormalizeRoom(room)
		if err != nil {
			return nil, Exitf(ExitCodeUsage, "invalid room %q: %w", room, err)
		}
		room = normalized
	}
	for i := range pages {
		if pages[i].Room == "" {
			pages[i].Room = room
		}
		for j := range pages[i].Data {
			if pages[i].Data[j].Room == "" {
				pages[i].Data[j].Room = pages[i].Room
			}
		}
	}
	return pages, nil
}
