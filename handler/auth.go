package handler

import (
	"errors"
	"net/http"

	"github.com/balogun-pappy/advoc/model"
	"github.com/balogun-pappy/advoc/social"
	"github.com/balogun-pappy/advoc/store"
)

func (h *Handler) signup(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	users, ok := h.collection(w, store.Users)
	if !ok {
		return
	}

	created, err := social.Signup(r.Context(), users, model.User{
		Username: fields["username"],
		Password: fields["password"],
		Phone:    fields["phone"],
	})
	switch {
	case errors.Is(err, social.ErrValidation):
		reject(w, http.StatusBadRequest, "Username and password are required")
	case err != nil:
		h.storageFailure(w, err)
	case !created:
		reject(w, http.StatusOK, "Username exists")
	default:
		h.log.Info("user_signed_up", "username", fields["username"])
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	users, ok := h.collection(w, store.Users)
	if !ok {
		return
	}

	username := fields["username"]
	valid, err := social.Login(r.Context(), users, username, fields["password"])
	if err != nil {
		h.storageFailure(w, err)
		return
	}
	if !valid {
		reject(w, http.StatusOK, "Invalid credentials")
		return
	}
	h.sessions.Start(w, username)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.End(w, r)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) authCheck(w http.ResponseWriter, r *http.Request) {
	user, ok := h.sessions.CurrentUser(r)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"loggedIn": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"loggedIn": true, "username": user})
}
