package feed

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ageapps/chatfeed/internal/chat"
)

func TestHighlightMentions(t *testing.T) {
	bracket := Rules{MentionMarkup: WrapMention("[", "]")}

	tests := []struct {
		name     string
		text     string
		mentions []string
		want     string
	}{
		{name: "single", text: "hello @bob", mentions: []string{"bob"}, want: "hello [@bob]"},
		{name: "first occurrence only", text: "@bob and @bob", mentions: []string{"bob"}, want: "[@bob] and @bob"},
		{name: "repeated mention claims next", text: "@bob and @bob", mentions: []string{"bob", "bob"}, want: "[@bob] and [@bob]"},
		{name: "order independent of text order", text: "@amy then @bob", mentions: []string{"bob", "amy"}, want: "[@amy] then [@bob]"},
		{name: "missing token", text: "hello bob", mentions: []string{"bob"}, want: "hello bob"},
		{name: "blank name ignored", text: "hi @", mentions: []string{""}, want: "hi @"},
		{name: "literal prefix match", text: "@bobby", mentions: []string{"bob"}, want: "[@bob]by"},
		{name: "unicode", text: "¡hola @zoë!", mentions: []string{"zoë"}, want: "¡hola [@zoë]!"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mentions := make([]chat.Mention, 0, len(tt.mentions))
			for _, name := range tt.mentions {
				mentions = append(mentions, chat.Mention{Name: name})
			}
			require.Equal(t, tt.want, bracket.HighlightMentions(tt.text, mentions))
		})
	}
}

func TestHighlightSkipsAlreadyHighlighted(t *testing.T) {
	r := DefaultRules()
	e := Entry{
		Message:            chat.Message{Text: "hi @bob", Mentions: []chat.Mention{{Name: "bob"}}},
		Text:               "hi <span class='mention'>@bob</span>",
		MentionHighlighted: true,
	}
	require.Equal(t, e, r.highlight(e))
}

func TestHighlightWithoutMentionsLeavesFlagUnset(t *testing.T) {
	e := NewEntry(chat.Message{Text: "hi @bob"})
	out := DefaultRules().highlight(e)
	require.False(t, out.MentionHighlighted)
	require.Equal(t, "hi @bob", out.Text)
}
