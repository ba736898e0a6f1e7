package service

import (
	"context"
	"testing"
	"unicode/utf8"

	"blogforge/internal/llm"
	"blogforge/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "Kubernetes Basics", "kubernetes basics"},
		{"heading markers", "## Kubernetes Basics", "kubernetes basics"},
		{"title prefix", "Title: Kubernetes Basics", "kubernetes basics"},
		{"title prefix case", "TITLE:   Kubernetes Basics", "kubernetes basics"},
		{"whitespace runs", "Kubernetes    \t Basics ", "kubernetes basics"},
		{"empty", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeTitle(tt.input))
		})
	}
}

func TestParseDraft(t *testing.T) {
	t.Run("h1 title", func(t *testing.T) {
		draft, err := ParseDraft("# My Title\n\nSome body text.")
		require.NoError(t, err)
		assert.Equal(t, "My Title", draft.Title)
		assert.Equal(t, "Some body text.", draft.Content)
		assert.Empty(t, draft.Tags)
	})

	t.Run("first line fallback", func(t *testing.T) {
		draft, err := ParseDraft("My Title\nSome body text.")
		require.NoError(t, err)
		assert.Equal(t, "My Title", draft.Title)
		assert.Equal(t, "Some body text.", draft.Content)
	})

	t.Run("trailing tags line", func(t *testing.T) {
		draft, err := ParseDraft("# T\n\nBody.\n\nTags: #Docker, networking, Cloud-Init")
		require.NoError(t, err)
		assert.Equal(t, "Body.", draft.Content)
		assert.Equal(t, []string{"docker", "networking", "Cloud-Init"}, draft.Tags)
	})

	t.Run("empty output", func(t *testing.T) {
		_, err := ParseDraft("   ")
		require.Error(t, err)
		assert.True(t, models.IsCode(err, models.CodeGeneration))
	})

	t.Run("title without body", func(t *testing.T) {
		_, err := ParseDraft("# Only a Title")
		require.Error(t, err)
		assert.True(t, models.IsCode(err, models.CodeGeneration))
	})
}

func TestCleanTag(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"#docker", "docker"},
		{"Networking", "networking"},
		{"OpenVPN", "OpenVPN"},
		{"ci/cd pipelines", "cicd pipelines"},
		{"  spaced   out  ", "spaced out"},
		{"", ""},
		{"###", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanTag(tt.input), "input %q", tt.input)
	}
}

func TestSuggestTopicTakesFirstLine(t *testing.T) {
	g := NewGenerator(&stubCompleter{fn: func(messages []llm.Message) (string, error) {
		return "\"Zero Trust Networking\"\nHere is why this is a great topic...", nil
	}})

	topic, err := g.SuggestTopic(context.Background(), "key", models.PostTypeGeneral, nil)
	require.NoError(t, err)
	assert.Equal(t, "Zero Trust Networking", topic)
}

func TestGenerateDraftUsesOverrideTemplate(t *testing.T) {
	var prompt string
	g := NewGenerator(&stubCompleter{fn: func(messages []llm.Message) (string, error) {
		prompt = messages[len(messages)-1].Content
		return "# T\n\nBody.", nil
	}})

	_, err := g.GenerateDraft(context.Background(), "key", models.PostTypeGuide, "WireGuard",
		PromptOverrides{Guide: "Write a guide about %s with diagrams."})
	require.NoError(t, err)
	assert.Equal(t, "Write a guide about WireGuard with diagrams.", prompt)

	// Overrides without a placeholder get the topic appended.
	_, err = g.GenerateDraft(context.Background(), "key", models.PostTypeGuide, "WireGuard",
		PromptOverrides{Guide: "Write a detailed guide."})
	require.NoError(t, err)
	assert.Contains(t, prompt, "Topic: WireGuard")
}

func TestCategorizeFallsBack(t *testing.T) {
	g := NewGenerator(&stubCompleter{fn: func(messages []llm.Message) (string, error) {
		return "Something Unrecognized", nil
	}})
	assert.Equal(t, "Uncategorized", g.Categorize(context.Background(), "key", "T", "C"))

	g = NewGenerator(&stubCompleter{fn: func(messages []llm.Message) (string, error) {
		return "security & monitoring", nil
	}})
	assert.Equal(t, "Security & Monitoring", g.Categorize(context.Background(), "key", "T", "C"))
}

func TestTruncateKeepsRunesIntact(t *testing.T) {
	tests := []struct {
		name  string
		input string
		n     int
		want  string
	}{
		{"shorter than limit", "hello", 10, "hello"},
		{"ascii cut", "hello", 3, "hel"},
		{"multibyte at boundary", "héllo", 2, "h"},
		{"multibyte kept whole", "héllo", 3, "hé"},
		{"emoji split", "ab\U0001F600cd", 4, "ab"},
		{"zero limit", "héllo", 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.input, tt.n)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}

func TestGenerateTagsSwallowsErrors(t *testing.T) {
	g := NewGenerator(&stubCompleter{fn: func(messages []llm.Message) (string, error) {
		return "", models.NewUpstreamError("completion", 500, nil)
	}})
	assert.Nil(t, g.GenerateTags(context.Background(), "key", "content"))
}
