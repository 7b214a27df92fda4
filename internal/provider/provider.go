// Package provider defines the contract shared by the per-platform game
// fetchers and the helpers both implementations lean on.
package provider

import (
	"context"
	"errors"

	"github.com/chessrith/gamesync/internal/domain"
)

// Fetcher is implemented once per platform. Implementations return games
// already normalized to the canonical record, newest first.
type Fetcher interface {
	// FetchRecentGames returns at most limit games for the handle, sorted
	// by end time descending. The context cancels in-flight requests.
	FetchRecentGames(ctx context.Context, handle string, limit int) ([]domain.CanonicalGame, error)

	// FetchGameText resolves a provider-specific reference (game id or
	// page URL) to raw movetext. Missing games and transport failures
	// both report absence, never an error.
	FetchGameText(ctx context.Context, ref string) (string, bool)

	// FetchProfile returns the account's display identity, or absence
	// when the provider exposes none.
	FetchProfile(ctx context.Context, handle string) (*domain.Profile, bool)
}

var (
	// ErrNotFound means the handle does not exist on the provider.
	ErrNotFound = errors.New("player not found")

	// ErrProvider covers any other failed provider response.
	ErrProvider = errors.New("provider request failed")
)
