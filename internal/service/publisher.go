package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"blogforge/internal/middleware"
	"blogforge/internal/wordpress"

	"github.com/google/uuid"
)

// WPClient is the slice of the WordPress client the pipeline uses. Satisfied
// by *wordpress.Client; replaced by stubs in tests.
type WPClient interface {
	CreatePost(ctx context.Context, title, content string, tagIDs []int) (*wordpress.RemotePost, error)
	ListPosts(ctx context.Context) ([]wordpress.RemotePost, error)
	GetListingPage(ctx context.Context, slug string) (int, string, error)
	UpdatePage(ctx context.Context, pageID int, content string) error
	EnsureTags(ctx context.Context, names []string) []int
}

// WPFactory builds a WPClient from per-user credentials.
type WPFactory func(creds wordpress.Credentials) WPClient

// DefaultWPFactory wraps wordpress.NewClient.
func DefaultWPFactory(creds wordpress.Credentials) WPClient {
	return wordpress.NewClient(creds)
}

// ListingSlug is the slug of the blog listing page maintained on publish.
const ListingSlug = "blog"

// Publisher pushes posts to the remote blog host and keeps the listing page
// in order.
type Publisher struct {
	factory WPFactory
	dataDir string
}

func NewPublisher(factory WPFactory, dataDir string) *Publisher {
	if factory == nil {
		factory = DefaultWPFactory
	}
	return &Publisher{factory: factory, dataDir: dataDir}
}

// Client builds a WordPress client for the given credentials.
func (p *Publisher) Client(creds wordpress.Credentials) WPClient {
	return p.factory(creds)
}

// UpdateListing inserts a link to the new post into the category section of
// the listing page. The previous page content is backed up locally before
// the overwrite.
func (p *Publisher) UpdateListing(ctx context.Context, wp WPClient, userID uint, category, postURL, postTitle string) error {
	pageID, content, err := wp.GetListingPage(ctx, ListingSlug)
	if err != nil {
		return err
	}

	p.backupListing(ctx, userID, content)

	updated := wordpress.InsertIntoSection(content, postURL, postTitle, category)
	if updated == content {
		return nil
	}
	return wp.UpdatePage(ctx, pageID, updated)
}

// backupListing writes the listing page HTML to the user's data directory.
// Best effort; a failed backup never blocks publishing.
func (p *Publisher) backupListing(ctx context.Context, userID uint, content string) {
	dir := UserDataDir(p.dataDir, userID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		middleware.Logger.WarnContext(ctx, "failed to create listing backup dir", "dir", dir, "error", err)
		return
	}
	name := fmt.Sprintf("listing_backup_%s.html", time.Now().UTC().Format("20060102_150405"))
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		middleware.Logger.WarnContext(ctx, "failed to write listing backup", "file", name, "error", err)
	}
}

// UserDataDir returns the per-user directory under the configured data root.
func UserDataDir(dataDir string, userID uint) string {
	return filepath.Join(dataDir, fmt.Sprintf("user_%d", userID))
}

// BackupFileName builds a unique backup archive name.
func BackupFileName(encrypted bool) string {
	name := fmt.Sprintf("backup_%s_%s.json", time.Now().UTC().Format("20060102_150405"), uuid.NewString()[:8])
	if encrypted {
		name += ".enc"
	}
	return name
}
