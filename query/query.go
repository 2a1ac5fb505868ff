// Package query holds read-only views over a loaded collection snapshot.
// Nothing here performs I/O or mutates its input.
package query

import (
	"maps"

	"github.com/balogun-pappy/advoc/model"
	"github.com/balogun-pappy/advoc/store"
)

// ProfilePicField is the derived field EnrichWithProfilePicture attaches.
const ProfilePicField = "userProfile"

// ResolveFunc maps a username to its profile picture file name, or to a
// default marker when the user has none.
type ResolveFunc func(username string) string

// FindByKey returns the first record whose keyField equals keyValue.
func FindByKey(recs []store.Record, keyField, keyValue string) (store.Record, bool) {
	for _, rec := range recs {
		if store.KeyMatches(rec, keyField, keyValue) {
			return rec, true
		}
	}
	return nil, false
}

// FindConversation returns, in insertion order, every message exchanged
// between userA and userB in either direction.
func FindConversation(dms []model.DirectMessage, userA, userB string) []model.DirectMessage {
	out := []model.DirectMessage{}
	for _, m := range dms {
		if (m.From == userA && m.To == userB) || (m.From == userB && m.To == userA) {
			out = append(out, m)
		}
	}
	return out
}

// EnrichWithProfilePicture returns shallow copies of recs with the owner's
// profile picture attached under ProfilePicField. The owner is read from the
// "user" field.
func EnrichWithProfilePicture(recs []store.Record, resolve ResolveFunc) []store.Record {
	out := make([]store.Record, 0, len(recs))
	for _, rec := range recs {
		cp := maps.Clone(rec)
		if cp == nil {
			cp = store.Record{}
		}
		user, _ := rec["user"].(string)
		cp[ProfilePicField] = resolve(user)
		out = append(out, cp)
	}
	return out
}
