// Package profile resolves and stores user profile pictures.
package profile

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Resolver finds profile pictures in a directory. A user's picture is the
// first entry, in lexical order, whose name starts with the username.
type Resolver struct {
	dir      string
	fallback string
	log      *slog.Logger
}

// NewResolver creates a Resolver over dir, creating the directory if needed.
// fallback is returned for users without a picture.
func NewResolver(dir, fallback string, log *slog.Logger) (*Resolver, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating profile picture directory: %w", err)
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Resolver{dir: dir, fallback: fallback, log: log}, nil
}

// Resolve returns the picture file name for username, or the fallback.
// It has the signature query.EnrichWithProfilePicture expects.
func (r *Resolver) Resolve(username string) string {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		r.log.Warn("profile_dir_unreadable", "dir", r.dir, "error", err)
		return r.fallback
	}
	// ReadDir returns entries sorted by name.
	for _, e := range entries {
		// Hidden entries are in-flight uploads.
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if strings.HasPrefix(e.Name(), username) {
			return e.Name()
		}
	}
	return r.fallback
}

// Batch returns a memoizing view of r for one batch of lookups, so a
// listing of many posts scans the directory once per distinct user.
func (r *Resolver) Batch() func(string) string {
	seen := make(map[string]string)
	return func(username string) string {
		if pic, ok := seen[username]; ok {
			return pic
		}
		pic := r.Resolve(username)
		seen[username] = pic
		return pic
	}
}

// Save stores a new picture for username as <username><ext>, replacing any
// previous picture with a different extension. It returns the file name.
func (r *Resolver) Save(username, originalName string, src io.Reader) (string, error) {
	if username == "" || strings.ContainsAny(username, `/\`) || strings.HasPrefix(username, ".") {
		return "", fmt.Errorf("invalid username %q", username)
	}
	name := username + strings.ToLower(filepath.Ext(originalName))

	f, err := os.CreateTemp(r.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	tmp := f.Name()
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("writing profile picture: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("closing profile picture: %w", err)
	}

	if err := r.removeOthers(username, name); err != nil {
		os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, filepath.Join(r.dir, name)); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("placing profile picture: %w", err)
	}
	return name, nil
}

// removeOthers deletes username's pictures other than keep, so Resolve
// finds the new one.
func (r *Resolver) removeOthers(username, keep string) error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return fmt.Errorf("listing profile pictures: %w", err)
	}
	for _, e := range entries {
		n := e.Name()
		if e.IsDir() || n == keep || strings.TrimSuffix(n, filepath.Ext(n)) != username {
			continue
		}
		if err := os.Remove(filepath.Join(r.dir, n)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("removing old profile picture: %w", err)
		}
	}
	return nil
}
