package bolt

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/flowjournal/flowpush/internal/model"
	"github.com/flowjournal/flowpush/internal/storage"
)

var _ storage.Store = (*Store)(nil)

var (
	bucketSubscriptions = []byte("subscriptions")
	// user id + 0x00 + endpoint -> subscription id
	bucketEndpoints   = []byte("subscription_endpoints")
	bucketDeliveryLog = []byte("delivery_logs")
)

// Store is a BoltDB-backed Store implementation.
type Store struct {
	db  *bolt.DB
	now func() time.Time
}

// New initialises the Bolt store.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketSubscriptions, bucketEndpoints, bucketDeliveryLog} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close closes underlying Bolt DB.
func (s *Store) Close() error {
	return s.db.Close()
}

func endpointKey(userID, endpoint string) []byte {
	key := make([]byte, 0, len(userID)+1+len(endpoint))
	key = append(key, userID...)
	key = append(key, 0)
	return append(key, endpoint...)
}

// UpsertSubscription stores or refreshes a subscription, keeping the id and
// creation time of an existing (user, endpoint) pair.
func (s *Store) UpsertSubscription(ctx context.Context, sub *model.Subscription) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := s.now()
	return s.db.Update(func(tx *bolt.Tx) error {
		subs := tx.Bucket(bucketSubscriptions)
		idx := tx.Bucket(bucketEndpoints)
		key := endpointKey(sub.UserID, sub.Endpoint)

		if existingID := idx.Get(key); existingID != nil {
			var existing model.Subscription
			if raw := subs.Get(existingID); raw != nil {
				if err := json.Unmarshal(raw, &existing); err != nil {
					return err
				}
				sub.CreatedAt = existing.CreatedAt
			}
			sub.ID = string(existingID)
		} else {
			sub.ID = uuid.NewString()
			sub.CreatedAt = now
		}
		if sub.CreatedAt.IsZero() {
			sub.CreatedAt = now
		}
		sub.UpdatedAt = now

		payload, err := json.Marshal(sub)
		if err != nil {
			return err
		}
		if err := subs.Put([]byte(sub.ID), payload); err != nil {
			return err
		}
		return idx.Put(key, []byte(sub.ID))
	})
}

// GetSubscription fetches a subscription by id.
func (s *Store) GetSubscription(ctx context.Context, id string) (*model.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var result *model.Subscription
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketSubscriptions).Get([]byte(id))
		if raw == nil {
			return storage.ErrNotFound
		}
		var sub model.Subscription
		if err := json.Unmarshal(raw, &sub); err != nil {
			return err
		}
		result = &sub
		return nil
	})
	return result, err
}

// ListSubscriptions returns every subscription owned by userID.
func (s *Store) ListSubscriptions(ctx context.Context, userID string) ([]*model.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := endpointKey(userID, "")
	var subs []*model.Subscription
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSubscriptions)
		c := tx.Bucket(bucketEndpoints).Cursor()
		for k, id := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, id = c.Next() {
			raw := data.Get(id)
			if raw == nil {
				continue
			}
			var sub model.Subscription
			if err := json.Unmarshal(raw, &sub); err != nil {
				return err
			}
			subs = append(subs, &sub)
		}
		return nil
	})
	return subs, err
}

// CountSubscriptions returns the number of stored subscriptions.
func (s *Store) CountSubscriptions(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketSubscriptions).Stats().KeyN
		return nil
	})
	return n, err
}

// DeleteSubscription removes a subscription and its endpoint index entry.
func (s *Store) DeleteSubscription(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		subs := tx.Bucket(bucketSubscriptions)
		raw := subs.Get([]byte(id))
		if raw == nil {
			return nil
		}
		var sub model.Subscription
		if err := json.Unmarshal(raw, &sub); err != nil {
			return err
		}
		if err := tx.Bucket(bucketEndpoints).Delete(endpointKey(sub.UserID, sub.Endpoint)); err != nil {
			return err
		}
		return subs.Delete([]byte(id))
	})
}

// DeleteSubscriptionByEndpoint removes the user's subscription for endpoint.
func (s *Store) DeleteSubscriptionByEndpoint(ctx context.Context, userID, endpoint string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var deleted bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		idx := tx.Bucket(bucketEndpoints)
		key := endpointKey(userID, endpoint)
		id := idx.Get(key)
		if id == nil {
			return nil
		}
		// id is only valid for the life of the transaction
		if err := tx.Bucket(bucketSubscriptions).Delete(bytes.Clone(id)); err != nil {
			return err
		}
		deleted = true
		return idx.Delete(key)
	})
	return deleted, err
}

// AppendDeliveryLog stores a delivery attempt under the next sequence id.
func (s *Store) AppendDeliveryLog(ctx context.Context, log *model.DeliveryLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = s.now()
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucketDeliveryLog)
		id, err := bkt.NextSequence()
		if err != nil {
			return err
		}
		log.ID = id
		payload, err := json.Marshal(log)
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, id)
		return bkt.Put(key, payload)
	})
}

// ListDeliveryLogs returns all delivery logs in insertion order.
func (s *Store) ListDeliveryLogs(ctx context.Context) ([]*model.DeliveryLog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var logs []*model.DeliveryLog
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDeliveryLog).ForEach(func(_, v []byte) error {
			var log model.DeliveryLog
			if err := json.Unmarshal(v, &log); err != nil {
				return err
			}
			logs = append(logs, &log)
			return nil
		})
	})
	return logs, err
}
