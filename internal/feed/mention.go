package feed

import (
	"sort"
	"strings"

	"github.com/ageapps/chatfeed/internal/chat"
)

type span struct {
	start, end int
}

// HighlightMentions wraps, for each mention in order, the first literal
// "@name" in text that no earlier mention already claimed. Offsets are taken
// from the raw text, so a token is never wrapped twice within one call.
func (r Rules) HighlightMentions(text string, mentions []chat.Mention) string {
	if text == "" || len(mentions) == 0 {
		return text
	}

	claimed := make([]span, 0, len(mentions))
	for _, mention := range mentions {
		if mention.Name == "" {
			continue
		}
		token := "@" + mention.Name
		if s, ok := firstFree(text, token, claimed); ok {
			claimed = append(claimed, s)
		}
	}
	if len(claimed) == 0 {
		return text
	}
	sort.Slice(claimed, func(i, j int) bool { return claimed[i].start < claimed[j].start })

	wrap := r.markup()
	var b strings.Builder
	b.Grow(len(text) + len(claimed)*32)
	last := 0
	for _, s := range claimed {
		b.WriteString(text[last:s.start])
		b.WriteString(wrap(text[s.start:s.end]))
		last = s.end
	}
	b.WriteString(text[last:])
	return b.String()
}

func firstFree(text, token string, claimed []span) (span, bool) {
	from := 0
	for from <= len(text)-len(token) {
		idx := strings.Index(text[from:], token)
		if idx < 0 {
			return span{}, false
		}
		s := span{start: from + idx, end: from + idx + len(token)}
		if !overlaps(s, claimed) {
			return s, true
		}
		from = s.start + 1
	}
	return span{}, false
}

func overlaps(s span, claimed []span) bool {
	for _, c := range claimed {
		if s.start < c.end && c.start < s.end {
			return true
		}
	}
	return false
}

// highlight renders mentions once; entries already highlighted are returned
// untouched so repeated passes never wrap markup again.
func (r Rules) highlight(e Entry) Entry {
	if e.MentionHighlighted || len(e.Message.Mentions) == 0 {
		return e
	}
	e.Text = r.HighlightMentions(e.Text, e.Message.Mentions)
	e.MentionHighlighted = true
	return e
}
