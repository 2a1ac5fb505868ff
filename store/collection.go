package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"
)

// DefaultIOTimeout bounds a single collection operation when no timeout is
// configured.
const DefaultIOTimeout = 5 * time.Second

// document persists one whole collection as a single JSON array. Backends
// differ only in where those bytes live.
type document interface {
	// read returns the stored bytes, or nil when nothing is stored yet.
	read(ctx context.Context) ([]byte, error)

	// replace swaps the stored bytes for data in one step. It checks ctx
	// before committing and leaves the previous bytes intact on failure.
	replace(ctx context.Context, data []byte) error
}

// Option configures collections opened by a backend.
type Option func(*options)

type options struct {
	ioTimeout time.Duration
	logger    *slog.Logger
}

func buildOptions(opts []Option) options {
	o := options{
		ioTimeout: DefaultIOTimeout,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithIOTimeout bounds every collection operation by d. Zero or a negative
// value disables the bound.
func WithIOTimeout(d time.Duration) Option {
	return func(o *options) { o.ioTimeout = d }
}

// WithLogger sets the logger collections report storage failures to.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// collection implements Collection over a document. Writers take the
// one-slot semaphore; readers rely on document.replace being atomic.
type collection struct {
	name    string
	doc     document
	writer  *semaphore.Weighted
	timeout time.Duration
	log     *slog.Logger
}

func newCollection(name string, doc document, o options) *collection {
	return &collection{
		name:    name,
		doc:     doc,
		writer:  semaphore.NewWeighted(1),
		timeout: o.ioTimeout,
		log:     o.logger.With("collection", name),
	}
}

func (c *collection) Name() string { return c.name }

func (c *collection) LoadAll(ctx context.Context) ([]Record, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	recs, exists, err := c.load(ctx)
	if err != nil || exists {
		return recs, err
	}

	// Nothing persisted yet: write the empty collection once.
	if err := c.lock(ctx); err != nil {
		return nil, err
	}
	defer c.writer.Release(1)
	recs, exists, err = c.load(ctx)
	if err != nil || exists {
		return recs, err
	}
	if err := c.save(ctx, recs); err != nil {
		return nil, err
	}
	return recs, nil
}

func (c *collection) Append(ctx context.Context, rec Record) error {
	return c.update(ctx, func(recs []Record) ([]Record, bool, error) {
		return append(recs, rec), true, nil
	})
}

func (c *collection) AppendWith(ctx context.Context, build func() (Record, error)) error {
	return c.update(ctx, func(recs []Record) ([]Record, bool, error) {
		rec, err := build()
		if err != nil {
			return nil, false, err
		}
		return append(recs, rec), true, nil
	})
}

func (c *collection) AppendIfAbsent(ctx context.Context, keyField string, rec Record) (bool, error) {
	key, ok := rec[keyField].(string)
	if !ok {
		return false, fmt.Errorf("%s: record has no string %q field", c.name, keyField)
	}
	written := false
	err := c.update(ctx, func(recs []Record) ([]Record, bool, error) {
		if indexOf(recs, keyField, key) >= 0 {
			return nil, false, nil
		}
		written = true
		return append(recs, rec), true, nil
	})
	if err != nil {
		return false, err
	}
	return written, nil
}

func (c *collection) FindByKey(ctx context.Context, keyField, keyValue string) (Record, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	recs, _, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	i := indexOf(recs, keyField, keyValue)
	if i < 0 {
		return nil, c.notFound(keyField, keyValue)
	}
	return recs[i], nil
}

func (c *collection) MutateByKey(ctx context.Context, keyField, keyValue string, fn MutateFunc) (Record, error) {
	var updated Record
	err := c.update(ctx, func(recs []Record) ([]Record, bool, error) {
		i := indexOf(recs, keyField, keyValue)
		if i < 0 {
			return nil, false, c.notFound(keyField, keyValue)
		}
		if err := fn(recs[i]); err != nil {
			return nil, false, err
		}
		updated = recs[i]
		return recs, true, nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// update runs one serialized load/modify/persist cycle. op reports whether
// the modified records should be persisted at all.
func (c *collection) update(ctx context.Context, op func([]Record) ([]Record, bool, error)) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := c.lock(ctx); err != nil {
		return err
	}
	defer c.writer.Release(1)

	recs, _, err := c.load(ctx)
	if err != nil {
		return err
	}
	next, write, err := op(recs)
	if err != nil || !write {
		return err
	}
	return c.save(ctx, next)
}

func (c *collection) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *collection) lock(ctx context.Context) error {
	if err := c.writer.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("%w: waiting for %s writer: %w", ErrStorageIO, c.name, err)
	}
	return nil
}

// load returns a freshly decoded copy of the collection and whether anything
// was persisted.
func (c *collection) load(ctx context.Context) ([]Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, fmt.Errorf("%w: reading %s: %w", ErrStorageIO, c.name, err)
	}
	data, err := c.doc.read(ctx)
	if err != nil {
		c.log.Error("collection_read_failed", "error", err)
		return nil, false, fmt.Errorf("%w: reading %s: %w", ErrStorageIO, c.name, err)
	}
	if data == nil {
		return []Record{}, false, nil
	}
	recs, err := decodeRecords(data)
	if err != nil {
		c.log.Error("collection_malformed", "error", err, "bytes", len(data))
		return nil, false, fmt.Errorf("%w: decoding %s: %w", ErrStorageIO, c.name, err)
	}
	return recs, true, nil
}

func (c *collection) save(ctx context.Context, recs []Record) error {
	data, err := encodeRecords(recs)
	if err != nil {
		return fmt.Errorf("%w: encoding %s: %w", ErrStorageIO, c.name, err)
	}
	if err := c.doc.replace(ctx, data); err != nil {
		c.log.Error("collection_write_failed", "error", err)
		return fmt.Errorf("%w: writing %s: %w", ErrStorageIO, c.name, err)
	}
	c.log.Debug("collection_written", "records", len(recs), "bytes", len(data))
	return nil
}

func (c *collection) notFound(keyField, keyValue string) error {
	return fmt.Errorf("%s %s=%q: %w", c.name, keyField, keyValue, ErrNotFound)
}

func indexOf(recs []Record, keyField, keyValue string) int {
	for i, rec := range recs {
		if KeyMatches(rec, keyField, keyValue) {
			return i
		}
	}
	return -1
}

func decodeRecords(data []byte) ([]Record, error) {
	var recs []Record
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, err
	}
	for i, rec := range recs {
		if rec == nil {
			return nil, fmt.Errorf("element %d is not an object", i)
		}
	}
	if recs == nil {
		recs = []Record{}
	}
	return recs, nil
}

// encodeRecords uses the two-space indented array layout of the existing
// data files.
func encodeRecords(recs []Record) ([]byte, error) {
	if recs == nil {
		recs = []Record{}
	}
	return json.MarshalIndent(recs, "", "  ")
}
