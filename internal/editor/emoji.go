package editor

import (
	"github.com/tmarten/inkwell/internal/document"
	"github.com/tmarten/inkwell/internal/suggest"
)

// emojiEntry is one catalog row: the emoji itself plus its searchable
// names.
type emojiEntry struct {
	Emoji    string
	Name     string
	Keywords []string
}

// emojiCatalog is the built-in picker catalog, in menu order.
var emojiCatalog = []emojiEntry{
	{"😀", "grinning", []string{"smile", "happy", "face"}},
	{"😂", "joy", []string{"laugh", "tears", "funny"}},
	{"😍", "heart eyes", []string{"love", "adore"}},
	{"🤔", "thinking", []string{"hmm", "consider"}},
	{"😎", "cool", []string{"sunglasses", "awesome"}},
	{"😢", "cry", []string{"sad", "tear"}},
	{"👍", "thumbs up", []string{"yes", "approve", "ok"}},
	{"👎", "thumbs down", []string{"no", "reject"}},
	{"👏", "clap", []string{"applause", "bravo"}},
	{"🙏", "pray", []string{"thanks", "please"}},
	{"❤️", "heart", []string{"love", "red"}},
	{"🔥", "fire", []string{"hot", "lit"}},
	{"🎉", "party", []string{"celebrate", "tada"}},
	{"🚀", "rocket", []string{"launch", "ship", "fast"}},
	{"💡", "bulb", []string{"idea", "light"}},
}

// emojiSource feeds the emoji picker. Selecting an entry replaces the
// trigger span (colon plus query) with the emoji.
func emojiSource(s *Session) suggest.Source {
	return func(query string) []suggest.Item {
		items := make([]suggest.Item, 0, len(emojiCatalog))
		for _, e := range emojiCatalog {
			e := e
			items = append(items, suggest.Item{
				ID:       e.Name,
				Title:    e.Emoji + " " + e.Name,
				Keywords: e.Keywords,
				Run: func(span document.Span) {
					err := s.Apply(document.ReplaceRange{Range: span, Text: e.Emoji})
					if err != nil {
						s.log.Warn("emoji insert failed: %v", err)
					}
				},
			})
		}
		return suggest.FilterItems(items, query)
	}
}
