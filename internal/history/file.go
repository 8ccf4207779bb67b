package history

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/ageapps/chatfeed/internal/chat"
)

// LoadFile reads a JSON history file. The file holds either an array of
// history pages or a room history object ({"room": {"history": [...]}}).
func LoadFile(path string) ([]chat.HistoryPage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read history file: %w", err)
	}
	pages, err := DecodePages(data)
	if err != nil {
		return nil, fmt.Errorf("parse history file %s: %w", path, err)
	}
	return pages, nil
}

// DecodePages decodes either history JSON shape accepted by LoadFile.
func DecodePages(data []byte) ([]chat.HistoryPage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var pages []chat.HistoryPage
		if err := json.Unmarshal(trimmed, &pages); err != nil {
			return nil, err
		}
		return pages, nil
	}

	var rooms chat.RoomHistory
	if err := json.Unmarshal(trimmed, &rooms); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(rooms))
	for name := range rooms {
		names = append(names, name)
	}
	sort.Strings(names)

	var pages []chat.HistoryPage
	for _, name := range names {
		for _, page := range rooms[name].History {
			if page.Room == "" {
				page.Room = name
			}
			pages = append(pages, page)
		}
	}
	return pages, nil
}
