// Package model defines the record shapes stored in the built-in collections.
package model

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
)

// Key fields of the keyed collections.
const (
	PostKey = "filename"
	UserKey = "username"
)

// MediaType is the kind of media a post carries.
type MediaType string

const (
	Image MediaType = "image"
	Video MediaType = "video"
)

var videoExts = map[string]struct{}{
	".mp4": {},
	".mov": {},
	".avi": {},
	".mkv": {},
}

// MediaTypeFor derives the media type from a file name's extension.
func MediaTypeFor(filename string) MediaType {
	if _, ok := videoExts[strings.ToLower(filepath.Ext(filename))]; ok {
		return Video
	}
	return Image
}

// Comment is one entry in a post's comment thread.
type Comment struct {
	User string `json:"user"`
	Text string `json:"text"`
}

// Post is a media or business post. Filename is unique within its
// collection and is also the name of the media file on disk.
type Post struct {
	Filename string    `json:"filename"`
	Caption  string    `json:"caption"`
	Type     MediaType `json:"type"`
	Likes    int64     `json:"likes"`
	Comments []Comment `json:"comments"`
	User     string    `json:"user"`
}

// User is an account. Password is kept as entered.
type User struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
}

// DirectMessage is one immutable message between two users. Timestamp is
// milliseconds since the Unix epoch.
type DirectMessage struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// ToRecord converts v to the generic record form the store persists.
func ToRecord(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding %T: %w", v, err)
	}
	var rec map[string]any
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("decoding %T as record: %w", v, err)
	}
	return rec, nil
}

// FromRecord decodes a generic record into v.
func FromRecord(rec map[string]any, v any) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decoding record as %T: %w", v, err)
	}
	return nil
}

// FromRecords decodes every record into a T, preserving order.
func FromRecords[T any](recs []map[string]any) ([]T, error) {
	out := make([]T, 0, len(recs))
	for i, rec := range recs {
		var v T
		if err := FromRecord(rec, &v); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}
