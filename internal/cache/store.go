// Package cache is the persistent key/value store behind the ingestion
// engine: last game list, last account identity, and per-game snapshots.
// Every read tolerates an absent key.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/chessrith/gamesync/internal/domain"
)

const (
	keyGames       = "cached-games"
	keyUsername    = "chess-username"
	keyPlatform    = "chess-platform"
	keyAvatar      = "user-avatar"
	keyDisplayName = "user-display-name"

	snapshotPrefix = "game_"
)

// Snapshot is the per-game record addressable by local id. PGN may be
// absent, in which case {Platform, ID} is enough to refetch the game.
type Snapshot struct {
	ID          string `json:"id"`
	Platform    string `json:"platform"`
	Orientation string `json:"orientation,omitempty"`
	PGN         string `json:"pgn,omitempty"`
}

// WhiteBottom reports the board orientation the snapshot selects; only the
// literal "white" keeps white at the bottom.
func (s *Snapshot) WhiteBottom() bool { return s != nil && s.Orientation == "white" }

type Store struct {
	rdb *redis.Client
}

func New(redisURL string) (*Store, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for cache store")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Store{rdb: rdb}, nil
}

// NewWithClient wraps an existing client; used by tests.
func NewWithClient(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

func (s *Store) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

// Get returns the raw value at key, reporting absence without error.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Set writes the raw value at key with no expiry.
func (s *Store) Set(ctx context.Context, key, value string) error {
	return s.rdb.Set(ctx, key, value, 0).Err()
}

func (s *Store) SaveGames(ctx context.Context, games []domain.CanonicalGame) error {
	raw, err := json.Marshal(games)
	if err != nil {
		return err
	}
	return s.Set(ctx, keyGames, string(raw))
}

func (s *Store) Games(ctx context.Context) ([]domain.CanonicalGame, error) {
	raw, ok, err := s.Get(ctx, keyGames)
	if err != nil || !ok {
		return nil, err
	}
	var games []domain.CanonicalGame
	if err := json.Unmarshal([]byte(raw), &games); err != nil {
		return nil, fmt.Errorf("decode cached games: %w", err)
	}
	return games, nil
}

func (s *Store) SaveSnapshot(ctx context.Context, localID string, snap *Snapshot) error {
	if strings.TrimSpace(localID) == "" || snap == nil {
		return nil
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.Set(ctx, snapshotPrefix+localID, string(raw))
}

// Snapshot reads a per-game snapshot; an absent key yields (nil, nil).
func (s *Store) Snapshot(ctx context.Context, localID string) (*Snapshot, error) {
	raw, ok, err := s.Get(ctx, snapshotPrefix+localID)
	if err != nil || !ok {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", localID, err)
	}
	return &snap, nil
}

func (s *Store) Username(ctx context.Context) (string, error) {
	v, _, err := s.Get(ctx, keyUsername)
	return v, err
}

func (s *Store) SetUsername(ctx context.Context, v string) error {
	return s.Set(ctx, keyUsername, v)
}

func (s *Store) PlatformName(ctx context.Context) (string, error) {
	v, _, err := s.Get(ctx, keyPlatform)
	return v, err
}

func (s *Store) SetPlatformName(ctx context.Context, v string) error {
	return s.Set(ctx, keyPlatform, v)
}

func (s *Store) Avatar(ctx context.Context) (string, error) {
	v, _, err := s.Get(ctx, keyAvatar)
	return v, err
}

func (s *Store) SetAvatar(ctx context.Context, v string) error {
	return s.Set(ctx, keyAvatar, v)
}

func (s *Store) DisplayName(ctx context.Context) (string, error) {
	v, _, err := s.Get(ctx, keyDisplayName)
	return v, err
}

func (s *Store) SetDisplayName(ctx context.Context, v string) error {
	return s.Set(ctx, keyDisplayName, v)
}
