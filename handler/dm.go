package handler

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/balogun-pappy/advoc/social"
	"github.com/balogun-pappy/advoc/store"
)

// getConversation returns the messages between user1 and user2. Only a
// participant may read a conversation.
func (h *Handler) getConversation(w http.ResponseWriter, r *http.Request) {
	me, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	user1, user2 := vars["user1"], vars["user2"]
	if me != user1 && me != user2 {
		reject(w, http.StatusForbidden, "Unauthorized")
		return
	}

	dms, ok := h.collection(w, store.DirectMessages)
	if !ok {
		return
	}
	msgs, err := social.Conversation(r.Context(), dms, user1, user2)
	if err != nil {
		h.storageFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// sendMessage stores a message from the logged-in user to user2.
func (h *Handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	me, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	fields, err := readFields(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if fields["message"] == "" {
		reject(w, http.StatusOK, "Message empty")
		return
	}

	dms, ok := h.collection(w, store.DirectMessages)
	if !ok {
		return
	}
	_, err = social.AppendDirectMessage(r.Context(), dms, h.clock, me, mux.Vars(r)["user2"], fields["message"])
	switch {
	case errors.Is(err, social.ErrValidation):
		reject(w, http.StatusBadRequest, err.Error())
	case err != nil:
		h.storageFailure(w, err)
	default:
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}
}
