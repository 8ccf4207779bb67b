package feed

import (
	"sort"
	"strings"

	"github.com/ageapps/chatfeed/internal/chat"
)

// Normalize flattens history pages into one record slice sorted ascending by
// timestamp. The sort is stable: records with equal timestamps keep the order
// in which they were first seen across pages. Records without a timestamp
// sort first. The input is never modified.
func Normalize(pages []chat.HistoryPage) []chat.Message {
	total := 0
	for _, page := range pages {
		total += len(page.Data)
	}
	out := make([]chat.Message, 0, total)
	for _, page := range pages {
		for _, msg := range page.Data {
			out = append(out, chat.CloneMessage(msg))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Time.Before(out[j].Time)
	})
	return out
}

// Dedupe drops records whose non-empty ID was already seen; the first
// occurrence wins. Records without an ID are always kept.
func Dedupe(messages []chat.Message) []chat.Message {
	seen := make(map[string]struct{}, len(messages))
	out := make([]chat.Message, 0, len(messages))
	for _, msg := range messages {
		id := strings.TrimSpace(msg.ID)
		if id != "" {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
		}
		out = append(out, msg)
	}
	return out
}
