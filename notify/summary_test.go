package notify

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func TestSummarize(t *testing.T) {
	t.Run("should keep a short message intact", func(t *testing.T) {
		req := require.New(t)

		req.Equal("coucou", Summarize("coucou"))
	})

	t.Run("should truncate on runes, never mid-character", func(t *testing.T) {
		req := require.New(t)
		long := strings.Repeat("é", 200)

		out := Summarize(long)

		req.True(utf8.ValidString(out))
		req.Equal(maxSummaryRunes+1, len([]rune(out)))
		req.True(strings.HasSuffix(out, "…"))
	})
}

func TestTitle(t *testing.T) {
	t.Run("should localize to the message language", func(t *testing.T) {
		req := require.New(t)

		title := Title("alice", "Bonjour, comment vas-tu aujourd'hui ? J'espère que tout va bien.")

		req.Equal("Nouveau message de alice", title)
	})

	t.Run("should default to English", func(t *testing.T) {
		req := require.New(t)

		title := Title("alice", "Hey, are you coming to the meeting later today?")

		req.Equal("New message from alice", title)
	})
}
