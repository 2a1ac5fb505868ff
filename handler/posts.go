package handler

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/balogun-pappy/advoc/model"
	"github.com/balogun-pappy/advoc/query"
	"github.com/balogun-pappy/advoc/social"
	"github.com/balogun-pappy/advoc/store"
)

// upload accepts a multipart "media" file and a "caption" and records a new
// post owned by the logged-in user.
func (h *Handler) upload(f feed) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := h.currentUser(w, r)
		if !ok {
			return
		}
		if h.media.MaxUploadBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, h.media.MaxUploadBytes)
		}
		if err := r.ParseMultipartForm(32 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			writeError(w, http.StatusBadRequest, "invalid upload: "+err.Error())
			return
		}
		if r.MultipartForm != nil {
			defer r.MultipartForm.RemoveAll()
		}

		file, hdr, err := r.FormFile("media")
		if err != nil {
			reject(w, http.StatusOK, "No file uploaded")
			return
		}
		defer file.Close()

		posts, ok := h.collection(w, f.collection)
		if !ok {
			return
		}

		name, err := saveUpload(f.uploadsDir, hdr.Filename, file, time.Now())
		if err != nil {
			h.storageFailure(w, err)
			return
		}

		err = social.AppendPost(r.Context(), posts, model.Post{
			Filename: name,
			Caption:  r.FormValue("caption"),
			Type:     model.MediaTypeFor(hdr.Filename),
			User:     user,
		})
		if err != nil {
			// The record never landed, so the file would be orphaned.
			os.Remove(filepath.Join(f.uploadsDir, name))
			if errors.Is(err, social.ErrValidation) {
				reject(w, http.StatusBadRequest, err.Error())
				return
			}
			h.storageFailure(w, err)
			return
		}
		h.log.Info("post_uploaded", "collection", f.collection, "filename", name, "user", user)
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}
}

// saveUpload writes src into dir as <unix-ms>-<base name>. The file is
// created exclusively; on a name clash the timestamp is bumped.
func saveUpload(dir, original string, src multipart.File, now time.Time) (string, error) {
	base := filepath.Base(strings.ReplaceAll(original, `\`, "/"))
	if base == "." || base == "/" || base == "" {
		base = "upload"
	}
	ms := now.UnixMilli()

	for attempt := 0; attempt < 100; attempt++ {
		name := fmt.Sprintf("%d-%s", ms+int64(attempt), base)
		path := filepath.Join(dir, name)
		dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("%w: creating upload: %w", store.ErrStorageIO, err)
		}
		if _, err := io.Copy(dst, src); err != nil {
			dst.Close()
			os.Remove(path)
			return "", fmt.Errorf("%w: writing upload: %w", store.ErrStorageIO, err)
		}
		if err := dst.Close(); err != nil {
			os.Remove(path)
			return "", fmt.Errorf("%w: closing upload: %w", store.ErrStorageIO, err)
		}
		return name, nil
	}
	return "", fmt.Errorf("%w: no free upload name for %q", store.ErrStorageIO, base)
}

// listPosts returns every post with its owner's profile picture attached.
func (h *Handler) listPosts(f feed) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		posts, ok := h.collection(w, f.collection)
		if !ok {
			return
		}
		recs, err := posts.LoadAll(r.Context())
		if err != nil {
			h.storageFailure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, query.EnrichWithProfilePicture(recs, h.profiles.Batch()))
	}
}

func (h *Handler) like(f feed) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filename := mux.Vars(r)["filename"]
		posts, ok := h.collection(w, f.collection)
		if !ok {
			return
		}
		likes, err := social.IncrementLikes(r.Context(), posts, filename)
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "File not found"})
			return
		}
		if err != nil {
			h.storageFailure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{"likes": likes})
	}
}

func (h *Handler) listComments(f feed) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filename := mux.Vars(r)["filename"]
		posts, ok := h.collection(w, f.collection)
		if !ok {
			return
		}
		comments, err := social.Comments(r.Context(), posts, filename)
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, []model.Comment{})
			return
		}
		if err != nil {
			h.storageFailure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, comments)
	}
}

func (h *Handler) addComment(f feed) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := h.currentUser(w, r)
		if !ok {
			return
		}
		fields, err := readFields(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
			return
		}
		text := fields["text"]
		if strings.TrimSpace(text) == "" {
			reject(w, http.StatusOK, "Empty comment")
			return
		}
		posts, ok := h.collection(w, f.collection)
		if !ok {
			return
		}

		comments, err := social.AppendComment(r.Context(), posts, mux.Vars(r)["filename"], user, text)
		switch {
		case errors.Is(err, store.ErrNotFound):
			reject(w, http.StatusNotFound, "File not found")
		case err != nil:
			h.storageFailure(w, err)
		default:
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "comments": comments})
		}
	}
}
