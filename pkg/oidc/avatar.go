package oidc

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	defaultUploadsDir  = "/data/uploads/profiles"
	uploadsProfilePath = "/uploads/profiles/"
	maxAvatarBytes     = 5 << 20
)

var contentTypeExt = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// AvatarStore downloads provider profile pictures into local storage.
type AvatarStore struct {
	dir    string
	client *http.Client
	now    func() time.Time
}

// AvatarOption configures an AvatarStore
type AvatarOption func(*AvatarStore)

// WithUploadsDir overrides the storage directory
func WithUploadsDir(dir string) AvatarOption {
	return func(a *AvatarStore) { a.dir = dir }
}

// WithAvatarClock injects the time source used in generated filenames
func WithAvatarClock(now func() time.Time) AvatarOption {
	return func(a *AvatarStore) { a.now = now }
}

// NewAvatarStore creates an avatar store
func NewAvatarStore(opts ...AvatarOption) *AvatarStore {
	a := &AvatarStore{
		dir:    defaultUploadsDir,
		client: &http.Client{Timeout: providerTimeout},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Resolve turns a picture claim into a stored profile image path. It
// downloads the picture when it can; on failure it falls back to the
// remote URL itself, but only over HTTPS. The empty string means "leave
// the profile image unchanged". The previous file is never touched here:
// the caller removes it with RemoveReplaced once the record pointing at
// the replacement is durably saved.
func (a *AvatarStore) Resolve(pictureURL, userID string) string {
	if pictureURL == "" {
		return ""
	}
	if stored := a.download(pictureURL, userID); stored != "" {
		return stored
	}
	u, err := url.Parse(pictureURL)
	if err != nil || u.Scheme != "https" {
		return ""
	}
	return pictureURL
}

// RemoveReplaced deletes a superseded avatar file. Only files this store
// wrote are removed, a user-uploaded image keeps its name and is left alone.
func (a *AvatarStore) RemoveReplaced(oldProfileImage string) {
	if !strings.HasPrefix(oldProfileImage, uploadsProfilePath) || !strings.Contains(oldProfileImage, "-oidc-") {
		return
	}
	oldFullPath := filepath.Join(a.dir, filepath.Base(oldProfileImage))
	if err := os.Remove(oldFullPath); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to delete old profile image", "path", oldFullPath, "err", err)
	}
}

// download fetches the picture and stores it under a per-user, timestamped
// filename.
func (a *AvatarStore) download(pictureURL, userID string) string {
	resp, err := a.client.Get(pictureURL)
	if err != nil {
		slog.Warn("Failed to download OIDC picture", "err", err)
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ""
	}

	contentType := resp.Header.Get("Content-Type")
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = contentType[:i]
	}
	ext, ok := contentTypeExt[strings.TrimSpace(contentType)]
	if !ok {
		ext = ".jpg"
	}

	filename := fmt.Sprintf("%s-oidc-%d%s", userID, a.now().UnixMilli(), ext)
	fullPath := filepath.Join(a.dir, filename)

	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		slog.Warn("Failed to create uploads directory", "dir", a.dir, "err", err)
		return ""
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAvatarBytes))
	if err != nil {
		slog.Warn("Failed to read OIDC picture", "err", err)
		return ""
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		slog.Warn("Failed to store OIDC picture", "path", fullPath, "err", err)
		return ""
	}

	slog.Info("Downloaded OIDC avatar", "user_id", userID)
	return uploadsProfilePath + filename
}
