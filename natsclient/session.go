package natsclient

import (
	"context"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/usc-rasc/kinect-bridge2/errors"
)

// DefaultSessionBucket is the KV bucket holding capture session records.
const DefaultSessionBucket = "KINECT_SESSIONS"

const latestKey = "latest"

// SessionRecord describes one capture session published to a stream.
type SessionRecord struct {
	ID        string    `json:"id"`
	Stream    string    `json:"stream"`
	Subject   string    `json:"subject"`
	Host      string    `json:"host,omitempty"`
	StartedAt time.Time `json:"started_at"`
	ClosedAt  time.Time `json:"closed_at"`
	Frames    int64     `json:"frames"`
	Bytes     int64     `json:"bytes"`
}

// Closed reports whether the publisher finished the session.
func (r *SessionRecord) Closed() bool {
	return !r.ClosedAt.IsZero()
}

// SessionStore keeps session records in a KV bucket, keyed by session ID,
// plus a "latest" key naming the most recently started session.
type SessionStore struct {
	kv *KVStore
}

// Sessions opens the session store in bucket, creating the bucket if needed.
func (m *Client) Sessions(ctx context.Context, bucket string) (*SessionStore, error) {
	if bucket == "" {
		bucket = DefaultSessionBucket
	}
	kv, err := m.EnsureKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "kinect capture sessions",
		History:     1,
	})
	if err != nil {
		return nil, err
	}
	return &SessionStore{kv: m.NewKVStore(kv)}, nil
}

// Begin stores rec and marks it as the latest session.
func (s *SessionStore) Begin(ctx context.Context, rec SessionRecord) error {
	if rec.ID == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "SessionStore", "Begin", "session id is required")
	}
	if _, err := s.kv.PutJSON(ctx, rec.ID, rec); err != nil {
		return errors.WrapTransient(err, "SessionStore", "Begin", "store session "+rec.ID)
	}
	if _, err := s.kv.Put(ctx, latestKey, []byte(rec.ID)); err != nil {
		return errors.WrapTransient(err, "SessionStore", "Begin", "mark latest session")
	}
	return nil
}

// Finish records the final counters of session id and closes it.
func (s *SessionStore) Finish(ctx context.Context, id string, frames, bytes int64) error {
	err := s.kv.UpdateJSON(ctx, id, func(cur map[string]any) error {
		if len(cur) == 0 {
			return ErrKVKeyNotFound
		}
		cur["frames"] = frames
		cur["bytes"] = bytes
		cur["closed_at"] = time.Now().UTC()
		return nil
	})
	if err != nil {
		return errors.WrapTransient(err, "SessionStore", "Finish", "update session "+id)
	}
	return nil
}

// Lookup returns the record of session id.
func (s *SessionStore) Lookup(ctx context.Context, id string) (*SessionRecord, error) {
	var rec SessionRecord
	if err := s.kv.GetJSON(ctx, id, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Latest returns the most recently started session.
func (s *SessionStore) Latest(ctx context.Context) (*SessionRecord, error) {
	entry, err := s.kv.Get(ctx, latestKey)
	if err != nil {
		return nil, err
	}
	return s.Lookup(ctx, string(entry.Value))
}
