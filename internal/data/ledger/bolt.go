// Package ledger is a small embedded BoltDB store for payment idempotency records that
// must survive restarts but cannot depend on the booking database being reachable:
// processed webhook event ids, confirmations applied to synthetic bookings, and mock
// intents issued by the sandbox gateway.
package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "github.com/boltdb/bolt"

	"travel-booking/pkg/gateway"
)

var (
	bucketWebhookEvents = []byte("webhook_events")
	bucketConfirmations = []byte("confirmations")
	bucketMockIntents   = []byte("mock_intents")
)

type eventRecord struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	RecordedAt time.Time `json:"recorded_at"`
}

type confirmationRecord struct {
	IntentID   string    `json:"intent_id"`
	PayableID  string    `json:"payable_id"`
	RecordedAt time.Time `json:"recorded_at"`
}

type Ledger struct {
	db *bolt.DB
}

// Open opens (or creates) the ledger file and its buckets.
func Open(path string) (*Ledger, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketWebhookEvents, bucketConfirmations, bucketMockIntents} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create ledger buckets: %w", err)
	}

	return &Ledger{db: db}, nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

// RecordEvent stores a webhook event id. It returns false when the id was already recorded.
func (l *Ledger) RecordEvent(eventID, eventType string) (bool, error) {
	return l.putIfAbsent(bucketWebhookEvents, eventID, eventRecord{
		ID:         eventID,
		Type:       eventType,
		RecordedAt: time.Now().UTC(),
	})
}

// ForgetEvent removes an event id so a redelivery is processed again.
// Forgetting an unknown id is a no-op.
func (l *Ledger) ForgetEvent(eventID string) error {
	return l.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketWebhookEvents).Delete([]byte(eventID))
	})
}

// RecordConfirmation claims the side effects of confirming intentID.
// Only the first caller for a given intent gets true.
func (l *Ledger) RecordConfirmation(intentID, payableID string) (bool, error) {
	return l.putIfAbsent(bucketConfirmations, intentID, confirmationRecord{
		IntentID:   intentID,
		PayableID:  payableID,
		RecordedAt: time.Now().UTC(),
	})
}

func (l *Ledger) SaveMockIntent(intent *gateway.Intent) error {
	data, err := json.Marshal(intent)
	if err != nil {
		return err
	}

	return l.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMockIntents).Put([]byte(intent.ID), data)
	})
}

// FindMockIntent returns (nil, nil) when the id is unknown.
func (l *Ledger) FindMockIntent(intentID string) (*gateway.Intent, error) {
	var intent *gateway.Intent

	err := l.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketMockIntents).Get([]byte(intentID))
		if v == nil {
			return nil
		}
		intent = &gateway.Intent{}
		return json.Unmarshal(v, intent)
	})
	if err != nil {
		return nil, err
	}

	return intent, nil
}

func (l *Ledger) putIfAbsent(bucket []byte, key string, record any) (bool, error) {
	created := false

	err := l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b.Get([]byte(key)) != nil {
			return nil
		}

		data, err := json.Marshal(record)
		if err != nil {
			return err
		}

		created = true
		return b.Put([]byte(key), data)
	})
	if err != nil {
		return false, err
	}

	return created, nil
}
