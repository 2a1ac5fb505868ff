// Package social implements the post, comment, message and account
// operations on top of the collection store.
package social

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/balogun-pappy/advoc/model"
	"github.com/balogun-pappy/advoc/query"
	"github.com/balogun-pappy/advoc/schema"
	"github.com/balogun-pappy/advoc/store"
)

var (
	// ErrValidation is returned when required text is empty or a record
	// does not have the expected shape. Nothing is written.
	ErrValidation = errors.New("validation failed")

	// ErrMalformed is returned when a stored record holds a field of the
	// wrong type, so an operation cannot be applied to it.
	ErrMalformed = errors.New("malformed record")
)

// IncrementLikes adds one like to the post stored under filename and
// returns the new count.
func IncrementLikes(ctx context.Context, posts store.Collection, filename string) (int64, error) {
	var likes int64
	_, err := posts.MutateByKey(ctx, model.PostKey, filename, func(rec store.Record) error {
		n, err := intField(rec, "likes")
		if err != nil {
			return err
		}
		likes = n + 1
		rec["likes"] = likes
		return nil
	})
	if err != nil {
		return 0, err
	}
	return likes, nil
}

// AppendComment adds a comment by user to the post stored under filename and
// returns the post's full comment thread. Blank text is rejected before the
// collection is touched.
func AppendComment(ctx context.Context, posts store.Collection, filename, user, text string) ([]model.Comment, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: comment text is empty", ErrValidation)
	}
	if strings.TrimSpace(user) == "" {
		return nil, fmt.Errorf("%w: comment author is empty", ErrValidation)
	}

	updated, err := posts.MutateByKey(ctx, model.PostKey, filename, func(rec store.Record) error {
		var comments []any
		switch v := rec["comments"].(type) {
		case nil:
		case []any:
			comments = v
		default:
			return fmt.Errorf("%w: comments is %T, not an array", ErrMalformed, v)
		}
		rec["comments"] = append(comments, map[string]any{"user": user, "text": text})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return decodeComments(updated)
}

// Comments returns the comment thread of the post stored under filename.
func Comments(ctx context.Context, posts store.Collection, filename string) ([]model.Comment, error) {
	rec, err := posts.FindByKey(ctx, model.PostKey, filename)
	if err != nil {
		return nil, err
	}
	return decodeComments(rec)
}

// AppendPost adds a new post. The media type is derived from the file name
// when unset. Filename uniqueness is guaranteed by the upload layer.
func AppendPost(ctx context.Context, posts store.Collection, post model.Post) error {
	if post.Type == "" {
		post.Type = model.MediaTypeFor(post.Filename)
	}
	if post.Comments == nil {
		post.Comments = []model.Comment{}
	}
	rec, err := model.ToRecord(post)
	if err != nil {
		return err
	}
	if err := schema.Post.Validate(rec); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return posts.Append(ctx, rec)
}

// AppendDirectMessage stores a message from one user to another, stamped
// with the current time in milliseconds. The clock is read while the
// collection is locked, so stored timestamps never decrease.
func AppendDirectMessage(ctx context.Context, dms store.Collection, clock Clock, from, to, message string) (model.DirectMessage, error) {
	if message == "" {
		return model.DirectMessage{}, fmt.Errorf("%w: message is empty", ErrValidation)
	}
	var dm model.DirectMessage
	err := dms.AppendWith(ctx, func() (store.Record, error) {
		dm = model.DirectMessage{
			From:      from,
			To:        to,
			Message:   message,
			Timestamp: clock.Now().UnixMilli(),
		}
		rec, err := model.ToRecord(dm)
		if err != nil {
			return nil, err
		}
		if err := schema.DirectMessage.Validate(rec); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrValidation, err)
		}
		return rec, nil
	})
	if err != nil {
		return model.DirectMessage{}, err
	}
	return dm, nil
}

// Conversation loads the message collection and returns the messages
// between userA and userB in the order they were written.
func Conversation(ctx context.Context, dms store.Collection, userA, userB string) ([]model.DirectMessage, error) {
	recs, err := dms.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	all, err := model.FromRecords[model.DirectMessage](recs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return query.FindConversation(all, userA, userB), nil
}

// Signup creates an account. It returns false, without error, when the
// username is already taken.
func Signup(ctx context.Context, users store.Collection, u model.User) (bool, error) {
	rec, err := model.ToRecord(u)
	if err != nil {
		return false, err
	}
	if err := schema.User.Validate(rec); err != nil {
		return false, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return users.AppendIfAbsent(ctx, model.UserKey, rec)
}

// Login reports whether username exists with exactly this password.
func Login(ctx context.Context, users store.Collection, username, password string) (bool, error) {
	rec, err := users.FindByKey(ctx, model.UserKey, username)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	stored, _ := rec["password"].(string)
	return subtle.ConstantTimeCompare([]byte(stored), []byte(password)) == 1, nil
}

func decodeComments(rec store.Record) ([]model.Comment, error) {
	var post struct {
		Comments []model.Comment `json:"comments"`
	}
	if err := model.FromRecord(rec, &post); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if post.Comments == nil {
		post.Comments = []model.Comment{}
	}
	return post.Comments, nil
}

// intField reads a counter that may have been decoded from JSON or set in
// process. A missing field counts as zero.
func intField(rec store.Record, field string) (int64, error) {
	switch v := rec[field].(type) {
	case nil:
		return 0, nil
	case float64:
		return int64(v), nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %w", ErrMalformed, field, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%w: %s is %T, not a number", ErrMalformed, field, v)
	}
}
