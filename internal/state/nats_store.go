package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"alerteval/internal/config"
	"alerteval/internal/domain"

	"github.com/nats-io/nats.go"
)

const (
	checkpointPrefix = "cp."
	statePrefix      = "st."
	historyPrefix    = "hist."
)

// NATSStore persists histories and checkpoints in a JetStream KV bucket.
// Params: NATS connection, JetStream context, and KV bucket handle.
// Returns: KV-backed store with CAS checkpoint semantics.
type NATSStore struct {
	nc       *nats.Conn
	js       nats.JetStreamContext
	kv       nats.KeyValue
	settings config.NATSStoreConfig
}

// checkpointPayload encodes the per-alert checkpoint marker.
// Params: checkpoint bucket-end timestamp in unix ms.
// Returns: compact JSON value for the KV entry.
type checkpointPayload struct {
	CheckpointUnixMS int64 `json:"checkpoint_unix_ms"`
}

// NewNATSStore connects and opens (or creates) the state bucket.
// Params: NATS store settings from config.
// Returns: initialized store or setup error.
func NewNATSStore(settings config.NATSStoreConfig) (*NATSStore, error) {
	nc, err := nats.Connect(strings.Join(settings.URL, ","))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	kv, err := js.KeyValue(settings.Bucket)
	if err != nil {
		if !settings.AllowCreateBucket {
			nc.Close()
			return nil, fmt.Errorf("open bucket %q: %w", settings.Bucket, err)
		}
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{Bucket: settings.Bucket})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("create bucket %q: %w", settings.Bucket, err)
		}
	}

	return &NATSStore{nc: nc, js: js, kv: kv, settings: settings}, nil
}

// FindLatestHistories returns the newest non-future row per alert id.
// Params: alert ids and the asOf upper bound.
// Returns: max-CreatedAt row across groups per id; absent ids omitted.
func (s *NATSStore) FindLatestHistories(_ context.Context, alertIDs []string, asOf time.Time) (map[string]domain.AlertHistory, error) {
	out := make(map[string]domain.AlertHistory)
	for _, alertID := range alertIDs {
		keys, err := s.historyKeys(historyPrefix + keyToken(alertID) + ".")
		if err != nil {
			return nil, err
		}
		bestKey := ""
		bestTS := int64(0)
		for _, key := range keys {
			ts, ok := historyKeyTimestamp(key)
			if !ok || ts > asOf.UnixMilli() {
				continue
			}
			if bestKey == "" || ts > bestTS {
				bestKey = key
				bestTS = ts
			}
		}
		if bestKey == "" {
			continue
		}
		row, err := s.getHistory(bestKey)
		if err != nil {
			return nil, err
		}
		out[alertID] = row
	}
	return out, nil
}

// FindGroupHistories returns the newest non-future row per group for one alert.
// Params: alert id and the asOf upper bound.
// Returns: latest row keyed by group.
func (s *NATSStore) FindGroupHistories(_ context.Context, alertID string, asOf time.Time) (map[domain.GroupKey]domain.AlertHistory, error) {
	keys, err := s.historyKeys(historyPrefix + keyToken(alertID) + ".")
	if err != nil {
		return nil, err
	}

	bestByDigest := make(map[string]string)
	bestTS := make(map[string]int64)
	for _, key := range keys {
		segments := strings.Split(key, ".")
		if len(segments) != 4 {
			continue
		}
		digest := segments[2]
		ts, ok := historyKeyTimestamp(key)
		if !ok || ts > asOf.UnixMilli() {
			continue
		}
		if existing, seen := bestTS[digest]; !seen || ts > existing {
			bestByDigest[digest] = key
			bestTS[digest] = ts
		}
	}

	out := make(map[domain.GroupKey]domain.AlertHistory, len(bestByDigest))
	for _, key := range bestByDigest {
		row, err := s.getHistory(key)
		if err != nil {
			return nil, err
		}
		out[row.Group] = row
	}
	return out, nil
}

// InsertHistory appends one history row under its alert/group/timestamp key.
// Params: validated history row.
// Returns: publish error.
func (s *NATSStore) InsertHistory(_ context.Context, row domain.AlertHistory) error {
	body, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if _, err := s.kv.Put(historyKey(row), body); err != nil {
		return fmt.Errorf("put history: %w", err)
	}
	return nil
}

// Checkpoint reads the checkpoint marker for one alert.
// Params: alert id.
// Returns: stored marker, or the zero time when the key is absent.
func (s *NATSStore) Checkpoint(_ context.Context, alertID string) (time.Time, error) {
	entry, err := s.kv.Get(checkpointPrefix + keyToken(alertID))
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("get checkpoint: %w", err)
	}
	var stored checkpointPayload
	if err := json.Unmarshal(entry.Value(), &stored); err != nil {
		return time.Time{}, fmt.Errorf("decode checkpoint: %w", err)
	}
	return time.UnixMilli(stored.CheckpointUnixMS).UTC(), nil
}

// AdvanceCheckpoint moves the checkpoint marker using KV revision CAS.
// Params: alert id, expected current marker (zero when absent), and new marker.
// Returns: ErrConflict when the stored marker moved since it was read.
func (s *NATSStore) AdvanceCheckpoint(_ context.Context, alertID string, prev, next time.Time) error {
	key := checkpointPrefix + keyToken(alertID)
	body, err := json.Marshal(checkpointPayload{CheckpointUnixMS: next.UnixMilli()})
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	entry, err := s.kv.Get(key)
	if err != nil {
		if !errors.Is(err, nats.ErrKeyNotFound) {
			return fmt.Errorf("get checkpoint: %w", err)
		}
		if !prev.IsZero() {
			return ErrConflict
		}
		if _, err := s.kv.Create(key, body); err != nil {
			if errors.Is(err, nats.ErrKeyExists) {
				return ErrConflict
			}
			return fmt.Errorf("create checkpoint: %w", err)
		}
		return nil
	}

	var stored checkpointPayload
	if err := json.Unmarshal(entry.Value(), &stored); err != nil {
		return fmt.Errorf("decode checkpoint: %w", err)
	}
	if stored.CheckpointUnixMS != prev.UnixMilli() {
		return ErrConflict
	}
	if _, err := s.kv.Update(key, body, entry.Revision()); err != nil {
		if errors.Is(err, nats.ErrKeyExists) || strings.Contains(strings.ToLower(err.Error()), "wrong last sequence") {
			return ErrConflict
		}
		return fmt.Errorf("update checkpoint: %w", err)
	}
	return nil
}

// UpdateAlertState writes the cached overall alert state.
// Params: alert id and overall state.
// Returns: publish error.
func (s *NATSStore) UpdateAlertState(_ context.Context, alertID string, alertState domain.AlertState) error {
	if _, err := s.kv.Put(statePrefix+keyToken(alertID), []byte(alertState)); err != nil {
		return fmt.Errorf("put alert state: %w", err)
	}
	return nil
}

// Close closes the NATS connection.
// Params: none.
// Returns: nil.
func (s *NATSStore) Close() error {
	s.nc.Close()
	return nil
}

// historyKeys lists history keys under one alert prefix.
// Params: key prefix of the form "hist.<alert-token>.".
// Returns: matching keys from a server-side filtered watch, so one alert's
// lookup never walks other alerts' rows.
func (s *NATSStore) historyKeys(prefix string) ([]string, error) {
	watcher, err := s.kv.Watch(prefix+">", nats.IgnoreDeletes(), nats.MetaOnly())
	if err != nil {
		return nil, fmt.Errorf("watch keys %q: %w", prefix, err)
	}
	defer func() { _ = watcher.Stop() }()

	var keys []string
	for entry := range watcher.Updates() {
		if entry == nil {
			// A nil entry marks the end of the initial replay.
			return keys, nil
		}
		keys = append(keys, entry.Key())
	}
	return keys, nil
}

// getHistory fetches and decodes one history row by key.
// Params: full KV key.
// Returns: decoded row or fetch/decode error.
func (s *NATSStore) getHistory(key string) (domain.AlertHistory, error) {
	entry, err := s.kv.Get(key)
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return domain.AlertHistory{}, ErrNotFound
		}
		return domain.AlertHistory{}, fmt.Errorf("get history %q: %w", key, err)
	}
	var row domain.AlertHistory
	if err := json.Unmarshal(entry.Value(), &row); err != nil {
		return domain.AlertHistory{}, fmt.Errorf("decode history %q: %w", key, err)
	}
	return row, nil
}

// historyKey builds the KV key for one history row.
// Params: history row with alert id, group, and bucket-end timestamp.
// Returns: "hist.<alert>.<group-digest>.<unix-ms>" key.
func historyKey(row domain.AlertHistory) string {
	return historyPrefix + keyToken(row.AlertID) + "." + GroupDigest(row.Group) + "." + strconv.FormatInt(row.CreatedAt.UnixMilli(), 10)
}

// historyKeyTimestamp extracts the bucket-end unix ms from one history key.
// Params: full KV key.
// Returns: timestamp and true when the key parses.
func historyKeyTimestamp(key string) (int64, bool) {
	idx := strings.LastIndexByte(key, '.')
	if idx < 0 || idx == len(key)-1 {
		return 0, false
	}
	ts, err := strconv.ParseInt(key[idx+1:], 10, 64)
	if err != nil {
		return 0, false
	}
	return ts, true
}
