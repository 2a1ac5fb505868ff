package handler

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
)

func (h *Handler) getProfilePic(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"pic": h.profiles.Resolve(mux.Vars(r)["username"])})
}

// putProfilePic replaces the picture of the logged-in user. Users may only
// change their own picture.
func (h *Handler) putProfilePic(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]
	if me, ok := h.sessions.CurrentUser(r); !ok || me != username {
		reject(w, http.StatusOK, "Unauthorized")
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
	file, hdr, err := r.FormFile("profilePic")
	if err != nil {
		reject(w, http.StatusOK, "No file uploaded")
		return
	}
	defer file.Close()

	pic, err := h.profiles.Save(username, hdr.Filename, file)
	if err != nil {
		h.storageFailure(w, err)
		return
	}
	h.log.Info("profile_picture_updated", "username", username, "pic", pic)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "pic": pic})
}
