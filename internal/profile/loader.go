// Package profile loads a user's recent games and display identity from a
// provider and keeps both in the persistent cache.
package profile

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/chessrith/gamesync/internal/cache"
	"github.com/chessrith/gamesync/internal/domain"
	"github.com/chessrith/gamesync/internal/provider"
)

const pageSize = 20

type Loader struct {
	cache    *cache.Store
	fetchers map[domain.Platform]provider.Fetcher
	log      *zap.Logger
}

func NewLoader(store *cache.Store, fetchers map[domain.Platform]provider.Fetcher, log *zap.Logger) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{cache: store, fetchers: fetchers, log: log}
}

// Load fetches the first page of recent games for the handle, persists the
// list and the account identity, and returns the games.
func (l *Loader) Load(ctx context.Context, handle string, platform domain.Platform) ([]domain.CanonicalGame, error) {
	fetcher, ok := l.fetchers[platform]
	if !ok {
		return nil, fmt.Errorf("unknown platform %q", platform)
	}

	games, err := fetcher.FetchRecentGames(ctx, handle, pageSize)
	if err != nil {
		return nil, err
	}

	if err := l.cache.SaveGames(ctx, games); err != nil {
		l.log.Warn("persist games failed", zap.Error(err))
	}
	if err := l.cache.SetUsername(ctx, handle); err != nil {
		l.log.Warn("persist username failed", zap.Error(err))
	}
	if err := l.cache.SetPlatformName(ctx, string(platform)); err != nil {
		l.log.Warn("persist platform failed", zap.Error(err))
	}

	l.saveIdentity(ctx, fetcher, handle, platform)
	return games, nil
}

// LoadMore refetches with a window one page larger than the cached list.
// hasMore turns false once the provider stops returning new games; the
// cached list is then left as is.
func (l *Loader) LoadMore(ctx context.Context) ([]domain.CanonicalGame, bool, error) {
	handle, platform, err := l.account(ctx)
	if err != nil {
		return nil, false, err
	}
	fetcher, ok := l.fetchers[platform]
	if !ok {
		return nil, false, fmt.Errorf("unknown platform %q", platform)
	}

	cached, err := l.cache.Games(ctx)
	if err != nil {
		l.log.Warn("cached games unreadable", zap.Error(err))
		cached = nil
	}

	games, err := fetcher.FetchRecentGames(ctx, handle, len(cached)+pageSize)
	if err != nil {
		return nil, false, err
	}
	if len(games) == len(cached) {
		return cached, false, nil
	}
	if err := l.cache.SaveGames(ctx, games); err != nil {
		l.log.Warn("persist games failed", zap.Error(err))
	}
	return games, true, nil
}

// Refresh refetches the first page for the remembered account and renews
// the identity keys.
func (l *Loader) Refresh(ctx context.Context) ([]domain.CanonicalGame, error) {
	handle, platform, err := l.account(ctx)
	if err != nil {
		return nil, err
	}
	return l.Load(ctx, handle, platform)
}

// Restored is the session identity seeded from the cache at startup.
type Restored struct {
	Username    string                 `json:"username,omitempty"`
	Platform    string                 `json:"platform,omitempty"`
	DisplayName string                 `json:"displayName,omitempty"`
	Avatar      string                 `json:"avatar,omitempty"`
	Games       []domain.CanonicalGame `json:"games,omitempty"`
}

// Restore reads whatever identity the cache holds; absent keys are fine.
func (l *Loader) Restore(ctx context.Context) *Restored {
	r := &Restored{}
	r.Username, _ = l.cache.Username(ctx)
	r.Platform, _ = l.cache.PlatformName(ctx)
	r.DisplayName, _ = l.cache.DisplayName(ctx)
	r.Avatar, _ = l.cache.Avatar(ctx)
	games, err := l.cache.Games(ctx)
	if err != nil {
		l.log.Warn("cached games unreadable", zap.Error(err))
	}
	r.Games = games
	return r
}

// saveIdentity stores avatar and display name. Chess.com exposes only an
// avatar, so the handle doubles as display name; Lichess prefers the
// provider's own display name and falls back to the handle.
func (l *Loader) saveIdentity(ctx context.Context, fetcher provider.Fetcher, handle string, platform domain.Platform) {
	prof, ok := fetcher.FetchProfile(ctx, handle)

	displayName := handle
	if ok && platform == domain.PlatformLichess && prof.DisplayName != "" {
		displayName = prof.DisplayName
	}
	if err := l.cache.SetDisplayName(ctx, displayName); err != nil {
		l.log.Warn("persist display name failed", zap.Error(err))
	}

	if ok && prof.AvatarURL != "" {
		if err := l.cache.SetAvatar(ctx, prof.AvatarURL); err != nil {
			l.log.Warn("persist avatar failed", zap.Error(err))
		}
	}
}

func (l *Loader) account(ctx context.Context) (string, domain.Platform, error) {
	handle, err := l.cache.Username(ctx)
	if err != nil {
		return "", "", err
	}
	if handle == "" {
		return "", "", fmt.Errorf("no account remembered")
	}
	name, err := l.cache.PlatformName(ctx)
	if err != nil {
		return "", "", err
	}
	platform, ok := domain.ParsePlatform(name)
	if !ok {
		platform = domain.PlatformChessCom
	}
	return handle, platform, nil
}
