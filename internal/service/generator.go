package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"blogforge/internal/llm"
	"blogforge/internal/models"
)

// Categories the classifier may assign, with "Uncategorized" as fallback.
var Categories = []string{
	"Networking & Infrastructure",
	"Security & Monitoring",
	"Automation & DevOps",
	"Storage & Backup",
	"Web & CMS",
}

const (
	writerSystemPrompt    = "You are a professional blog writer."
	suggesterSystemPrompt = "You are a professional blog topic generator."
)

var topicPrompts = map[string]string{
	models.PostTypeToolReview: "Suggest ONE useful IT tool for a blog post that is NOT in this list. Only return the tool name.",
	models.PostTypeGeneral:    "Suggest ONE technology or IT topic for a blog post that is NOT in this list. Only return the topic name.",
	models.PostTypeGuide:      "Suggest ONE IT-related task or guide topic for a blog post that is NOT in this list. Only return the topic name.",
}

var draftPrompts = map[string]string{
	models.PostTypeToolReview: "Write a blog post about %s. Focus on its practical applications, benefits, and how to get started with it. Include code examples or configuration steps where relevant. Start with a markdown H1 title.",
	models.PostTypeGeneral:    "Write a blog post about %s. Focus on explaining complex concepts in simple terms, providing real-world examples, and offering practical insights. Start with a markdown H1 title.",
	models.PostTypeGuide:      "Write a step-by-step guide for %s. Include clear instructions, code snippets or commands where needed, and explain each step thoroughly. Start with a markdown H1 title.",
}

const tagsPromptTemplate = `Generate 8-12 relevant keyword tags for a technology blog post. Focus on IT, networking, cybersecurity, and infrastructure terms.
Return one tag per line with no numbering or bullets.

%s`

const categoryPromptTemplate = `Based on the following blog post title and content, categorize it into one of these categories:
%s

Title: %s
Content: %s

Return ONLY the category name that best fits this post. Do not include any explanation or additional text.`

var (
	h1Line       = regexp.MustCompile(`(?m)^#\s*(.+)$`)
	tagsMarker   = regexp.MustCompile(`(?mi)^tags:\s*(.+)$`)
	tagStripper  = regexp.MustCompile(`[^\w\s-]`)
	tagCollapser = regexp.MustCompile(`\s+`)
)

// Draft is a parsed generation result. Pure data, nothing persisted.
type Draft struct {
	Title   string
	Content string
	Tags    []string
}

// Generator turns topics into drafts and drafts into tags and categories.
// It holds no state beyond the completion client.
type Generator struct {
	completer llm.Completer
}

func NewGenerator(completer llm.Completer) *Generator {
	return &Generator{completer: completer}
}

// PromptOverrides are the user's per-type prompt template replacements.
type PromptOverrides struct {
	ToolReview string
	General    string
	Guide      string
}

func (o PromptOverrides) forType(postType string) string {
	switch postType {
	case models.PostTypeToolReview:
		return o.ToolReview
	case models.PostTypeGuide:
		return o.Guide
	default:
		return o.General
	}
}

// SuggestTopic asks the model for one topic not covered by existingTitles.
func (g *Generator) SuggestTopic(ctx context.Context, apiKey, postType string, existingTitles []string) (string, error) {
	base, ok := topicPrompts[postType]
	if !ok {
		base = "Suggest ONE relevant topic for a blog post that is NOT in this list. Only return the topic name."
	}

	var sb strings.Builder
	sb.WriteString("I have already written about the following topics:\n")
	for _, title := range existingTitles {
		sb.WriteString("- ")
		sb.WriteString(title)
		sb.WriteString("\n")
	}
	sb.WriteString(base)

	out, err := g.completer.Complete(ctx, apiKey, []llm.Message{
		{Role: "system", Content: suggesterSystemPrompt},
		{Role: "user", Content: sb.String()},
	})
	if err != nil {
		return "", err
	}

	// Keep only the first line; models occasionally add commentary.
	topic := strings.TrimSpace(strings.SplitN(strings.TrimSpace(out), "\n", 2)[0])
	topic = strings.Trim(topic, `"'`)
	if topic == "" {
		return "", models.NewGenerationError("model returned an empty topic", nil)
	}
	return topic, nil
}

// GenerateDraft writes a full post about topic and parses it into a Draft.
func (g *Generator) GenerateDraft(ctx context.Context, apiKey, postType, topic string, overrides PromptOverrides) (*Draft, error) {
	template := overrides.forType(postType)
	if template == "" {
		var ok bool
		template, ok = draftPrompts[postType]
		if !ok {
			template = "Write a blog post about %s. Start with a markdown H1 title."
		}
	}

	prompt := template
	if strings.Contains(template, "%s") {
		prompt = fmt.Sprintf(template, topic)
	} else {
		prompt = template + "\n\nTopic: " + topic
	}

	out, err := g.completer.Complete(ctx, apiKey, []llm.Message{
		{Role: "system", Content: writerSystemPrompt},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return nil, err
	}

	return ParseDraft(out)
}

// ParseDraft extracts title, body, and an optional trailing tag list from raw
// model output. The title is the first markdown H1, falling back to the first
// line. A missing title or empty body is a GenerationError.
func ParseDraft(raw string) (*Draft, error) {
	content := strings.TrimSpace(raw)
	if content == "" {
		return nil, models.NewGenerationError("model returned empty output", nil)
	}

	var title string
	if m := h1Line.FindStringSubmatch(content); m != nil {
		title = strings.TrimSpace(m[1])
		content = strings.TrimSpace(h1Line.ReplaceAllString(content, ""))
	} else {
		parts := strings.SplitN(content, "\n", 2)
		title = strings.TrimSpace(parts[0])
		if len(parts) > 1 {
			content = strings.TrimSpace(parts[1])
		} else {
			content = ""
		}
	}

	var tags []string
	if m := tagsMarker.FindStringSubmatch(content); m != nil {
		for _, t := range strings.Split(m[1], ",") {
			if cleaned := CleanTag(t); cleaned != "" {
				tags = append(tags, cleaned)
			}
		}
		content = strings.TrimSpace(tagsMarker.ReplaceAllString(content, ""))
	}

	if NormalizeTitle(title) == "" {
		return nil, models.NewGenerationError("generated output has no title", nil)
	}
	if content == "" {
		return nil, models.NewGenerationError("generated output has no body", nil)
	}

	return &Draft{Title: title, Content: content, Tags: tags}, nil
}

// GenerateTags asks the model for keyword tags describing content.
// Failures are swallowed into an empty list; tags are decorative.
func (g *Generator) GenerateTags(ctx context.Context, apiKey, content string) []string {
	out, err := g.completer.Complete(ctx, apiKey, []llm.Message{
		{Role: "user", Content: fmt.Sprintf(tagsPromptTemplate, truncate(content, 2000))},
	})
	if err != nil {
		return nil
	}

	var tags []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.Trim(strings.TrimSpace(line), "•-* ")
		if cleaned := CleanTag(line); cleaned != "" {
			tags = append(tags, cleaned)
		}
	}
	return tags
}

// Categorize classifies a post into one of Categories, defaulting to
// "Uncategorized" on any error or unknown answer.
func (g *Generator) Categorize(ctx context.Context, apiKey, title, content string) string {
	prompt := fmt.Sprintf(categoryPromptTemplate, strings.Join(Categories, ", "), title, truncate(content, 500))
	out, err := g.completer.Complete(ctx, apiKey, []llm.Message{
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return "Uncategorized"
	}

	answer := strings.TrimSpace(out)
	for _, c := range Categories {
		if strings.EqualFold(answer, c) {
			return c
		}
	}
	return "Uncategorized"
}

// CleanTag strips hashes and punctuation from a tag and lowercases it unless
// it looks like a proper noun.
func CleanTag(tag string) string {
	tag = strings.TrimSpace(strings.Trim(tag, "#"))
	if tag == "" {
		return ""
	}
	if !hasInnerUpper(tag) {
		tag = strings.ToLower(tag)
	}
	tag = tagStripper.ReplaceAllString(tag, "")
	tag = tagCollapser.ReplaceAllString(tag, " ")
	return strings.TrimSpace(tag)
}

func hasInnerUpper(s string) bool {
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			return true
		}
	}
	return false
}

// truncate cuts s to at most n bytes without splitting a UTF-8 rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
