package wordpress

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"blogforge/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Credentials{
		BaseURL:  srv.URL,
		Username: "admin",
		Password: "app-password",
	}, WithHTTPClient(srv.Client()))
}

func TestCreatePost(t *testing.T) {
	var gotPayload map[string]any
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/wp-json/wp/v2/posts", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "admin", user)
		assert.Equal(t, "app-password", pass)

		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"id":   42,
			"link": "https://blog.example/p/42",
		})
	}))

	post, err := client.CreatePost(context.Background(), "Title", "Body", []int{1, 2})
	require.NoError(t, err)
	assert.Equal(t, 42, post.ID)
	assert.Equal(t, "https://blog.example/p/42", post.Link)

	assert.Equal(t, "Title", gotPayload["title"])
	assert.Equal(t, "publish", gotPayload["status"])
	assert.Equal(t, []any{float64(1), float64(2)}, gotPayload["tags"])
}

func TestCreatePostRejection(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"invalid"}`))
	}))

	_, err := client.CreatePost(context.Background(), "Title", "Body", nil)
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.CodePublish), "got %v", err)
}

func TestListPosts(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/wp-json/wp/v2/posts", r.URL.Path)
		assert.Equal(t, "100", r.URL.Query().Get("per_page"))
		json.NewEncoder(w).Encode([]map[string]any{
			{"id": 1, "link": "https://blog.example/p/1", "title": map[string]string{"rendered": "One"}},
			{"id": 2, "link": "https://blog.example/p/2", "title": map[string]string{"rendered": "Two"}},
		})
	}))

	posts, err := client.ListPosts(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "One", posts[0].Title.Rendered)
}

func TestGetListingPagePrefersRawContent(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/wp-json/wp/v2/pages", r.URL.Path)
		assert.Equal(t, "blog", r.URL.Query().Get("slug"))
		assert.Equal(t, "edit", r.URL.Query().Get("context"))
		json.NewEncoder(w).Encode([]map[string]any{
			{"id": 9, "content": map[string]string{"rendered": "<p>rendered</p>", "raw": "<p>raw</p>"}},
		})
	}))

	id, content, err := client.GetListingPage(context.Background(), "blog")
	require.NoError(t, err)
	assert.Equal(t, 9, id)
	assert.Equal(t, "<p>raw</p>", content)
}

func TestGetListingPageMissing(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))

	_, _, err := client.GetListingPage(context.Background(), "blog")
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.CodeUpstream), "got %v", err)
}

func TestUpdatePage(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/wp-json/wp/v2/pages/9", r.URL.Path)
		w.Write([]byte(`{"id":9}`))
	}))

	assert.NoError(t, client.UpdatePage(context.Background(), 9, "<p>new</p>"))
}

func TestEnsureTagFindsExisting(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			t.Fatal("existing tag must not be re-created")
		}
		assert.Equal(t, "docker", r.URL.Query().Get("search"))
		json.NewEncoder(w).Encode([]map[string]any{
			{"id": 3, "name": "Docker"},
		})
	}))

	id, err := client.EnsureTag(context.Background(), "docker")
	require.NoError(t, err)
	assert.Equal(t, 3, id)
}

func TestEnsureTagCreatesMissing(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Write([]byte(`[]`))
			return
		}
		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "wireguard", payload["name"])
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{"id": 7, "name": "wireguard"})
	}))

	id, err := client.EnsureTag(context.Background(), "wireguard")
	require.NoError(t, err)
	assert.Equal(t, 7, id)
}

func TestEnsureTagsIsBestEffort(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("search") == "bad" || r.Method == http.MethodPost {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode([]map[string]any{
			{"id": 1, "name": r.URL.Query().Get("search")},
		})
	}))

	ids := client.EnsureTags(context.Background(), []string{"good", "bad", ""})
	assert.Equal(t, []int{1}, ids)
}
