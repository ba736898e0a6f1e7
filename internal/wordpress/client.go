// Package wordpress provides a client for the WordPress REST API and helpers
// for maintaining the blog listing page markup.
package wordpress

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"blogforge/internal/middleware"
	"blogforge/internal/models"
)

const DefaultTimeout = 30 * time.Second

// Credentials identify a WordPress site and an application password.
type Credentials struct {
	BaseURL  string
	Username string
	Password string
}

// RemotePost is the subset of the WordPress post resource we consume.
type RemotePost struct {
	ID      int      `json:"id"`
	Link    string   `json:"link"`
	DateGMT string   `json:"date_gmt"`
	Title   Rendered `json:"title"`
	Content Rendered `json:"content"`
}

// Rendered holds WordPress rendered/raw content fields.
type Rendered struct {
	Rendered string `json:"rendered"`
	Raw      string `json:"raw,omitempty"`
}

type remotePage struct {
	ID      int      `json:"id"`
	Content Rendered `json:"content"`
}

type remoteTag struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Client talks to a single WordPress site. Instances are cheap and are
// created per request from the user's stored credentials.
type Client struct {
	httpClient *http.Client
	creds      Credentials
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Used by tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a WordPress REST client for the given site.
func NewClient(creds Credentials, opts ...Option) *Client {
	creds.BaseURL = strings.TrimRight(creds.BaseURL, "/")
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		creds:      creds,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, []byte, error) {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.creds.BaseURL+path, reqBody)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.SetBasicAuth(c.creds.Username, c.creds.Password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		middleware.UpstreamRequests.WithLabelValues("wordpress", "error").Inc()
		return nil, nil, models.NewUpstreamError("wordpress", 0, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		middleware.UpstreamRequests.WithLabelValues("wordpress", "error").Inc()
		return resp, nil, models.NewUpstreamError("wordpress", resp.StatusCode, err)
	}

	middleware.UpstreamRequests.WithLabelValues("wordpress", "ok").Inc()
	return resp, respBody, nil
}

// CreatePost publishes a new post and returns the remote resource.
func (c *Client) CreatePost(ctx context.Context, title, content string, tagIDs []int) (*RemotePost, error) {
	payload := map[string]any{
		"title":   title,
		"content": content,
		"status":  "publish",
	}
	if len(tagIDs) > 0 {
		payload["tags"] = tagIDs
	}

	resp, body, err := c.do(ctx, http.MethodPost, "/wp-json/wp/v2/posts", payload)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusCreated {
		return nil, models.NewPublishError(resp.StatusCode, string(body))
	}

	var post RemotePost
	if err := json.Unmarshal(body, &post); err != nil {
		return nil, models.NewUpstreamError("wordpress", resp.StatusCode, fmt.Errorf("decode post: %w", err))
	}
	return &post, nil
}

// ListPosts fetches the published posts, up to 100 per page.
func (c *Client) ListPosts(ctx context.Context) ([]RemotePost, error) {
	resp, body, err := c.do(ctx, http.MethodGet, "/wp-json/wp/v2/posts?per_page=100", nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, models.NewUpstreamError("wordpress", resp.StatusCode, fmt.Errorf("%s", string(body)))
	}

	var posts []RemotePost
	if err := json.Unmarshal(body, &posts); err != nil {
		return nil, models.NewUpstreamError("wordpress", resp.StatusCode, fmt.Errorf("decode posts: %w", err))
	}
	return posts, nil
}

// GetListingPage fetches the blog listing page by slug with raw content.
func (c *Client) GetListingPage(ctx context.Context, slug string) (int, string, error) {
	path := fmt.Sprintf("/wp-json/wp/v2/pages?slug=%s&context=edit", url.QueryEscape(slug))
	resp, body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return 0, "", err
	}
	if resp.StatusCode != http.StatusOK {
		return 0, "", models.NewUpstreamError("wordpress", resp.StatusCode, fmt.Errorf("%s", string(body)))
	}

	var pages []remotePage
	if err := json.Unmarshal(body, &pages); err != nil {
		return 0, "", models.NewUpstreamError("wordpress", resp.StatusCode, fmt.Errorf("decode pages: %w", err))
	}
	if len(pages) == 0 {
		return 0, "", models.NewUpstreamError("wordpress", resp.StatusCode, fmt.Errorf("page %q not found", slug))
	}

	content := pages[0].Content.Raw
	if content == "" {
		content = pages[0].Content.Rendered
	}
	return pages[0].ID, content, nil
}

// UpdatePage replaces a page's content.
func (c *Client) UpdatePage(ctx context.Context, pageID int, content string) error {
	path := fmt.Sprintf("/wp-json/wp/v2/pages/%d", pageID)
	resp, body, err := c.do(ctx, http.MethodPost, path, map[string]any{"content": content})
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return models.NewPublishError(resp.StatusCode, string(body))
	}
	return nil
}

// EnsureTag returns the ID of an existing tag matching name (case-insensitive)
// or creates it.
func (c *Client) EnsureTag(ctx context.Context, name string) (int, error) {
	path := "/wp-json/wp/v2/tags?search=" + url.QueryEscape(name)
	resp, body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return 0, err
	}
	if resp.StatusCode == http.StatusOK {
		var tags []remoteTag
		if err := json.Unmarshal(body, &tags); err == nil {
			for _, tag := range tags {
				if strings.EqualFold(tag.Name, name) {
					return tag.ID, nil
				}
			}
		}
	}

	resp, body, err = c.do(ctx, http.MethodPost, "/wp-json/wp/v2/tags", map[string]any{"name": name})
	if err != nil {
		return 0, err
	}
	if resp.StatusCode != http.StatusCreated {
		return 0, models.NewUpstreamError("wordpress", resp.StatusCode, fmt.Errorf("%s", string(body)))
	}

	var tag remoteTag
	if err := json.Unmarshal(body, &tag); err != nil {
		return 0, models.NewUpstreamError("wordpress", resp.StatusCode, fmt.Errorf("decode tag: %w", err))
	}
	return tag.ID, nil
}

// EnsureTags resolves tag names to IDs, skipping tags that fail. Best effort:
// a post with fewer tags still publishes.
func (c *Client) EnsureTags(ctx context.Context, names []string) []int {
	ids := make([]int, 0, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		id, err := c.EnsureTag(ctx, name)
		if err != nil {
			middleware.Logger.WarnContext(ctx, "failed to resolve tag", "tag", name, "error", err)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
