package source

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/url"

	"go.uber.org/zap"

	"github.com/chessrith/gamesync/internal/cache"
	"github.com/chessrith/gamesync/internal/domain"
	"github.com/chessrith/gamesync/internal/provider"
)

// ErrDecode marks a present-but-malformed source payload. It never escapes
// Resolve; a malformed payload ends the pass with no game loaded.
var ErrDecode = errors.New("malformed source payload")

// Load is a resolved game ready for reconciliation.
type Load struct {
	PGN         string
	WhiteBottom *bool
	Kind        Kind

	// ID and Platform survive from sources that carried them, so the
	// accepted game can be snapshotted.
	ID       string
	Platform domain.Platform
}

type Resolver struct {
	cache    *cache.Store
	fetchers map[domain.Platform]provider.Fetcher
	log      *zap.Logger
}

func NewResolver(store *cache.Store, fetchers map[domain.Platform]provider.Fetcher, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{cache: store, fetchers: fetchers, log: log}
}

// Resolve runs one resolution pass over navigation parameters. A nil Load
// with nil error means no source produced a game; decode failures are
// logged and degrade to that same outcome.
func (r *Resolver) Resolve(ctx context.Context, params url.Values) (*Load, error) {
	ref := FromQuery(params)
	if ref == nil {
		return nil, nil
	}
	return r.ResolveReference(ctx, ref)
}

func (r *Resolver) ResolveReference(ctx context.Context, ref *Reference) (*Load, error) {
	switch ref.Kind {
	case KindInlineText, KindFrameMessage:
		if ref.PGN == "" {
			return nil, nil
		}
		return &Load{PGN: ref.PGN, WhiteBottom: ref.WhiteBottom, Kind: ref.Kind}, nil

	case KindEncodedBlob:
		return r.resolveBlob(ref.Blob)

	case KindCachedByID:
		return r.resolveCached(ctx, ref.LocalID)

	case KindRemoteByID:
		return r.resolveRemote(ctx, ref, ref.ProviderID)

	case KindRemoteByURL:
		return r.resolveRemote(ctx, ref, ref.URL)

	default:
		return nil, nil
	}
}

type blobPayload struct {
	ID          string `json:"id,omitempty"`
	PGN         string `json:"pgn"`
	Orientation string `json:"orientation,omitempty"`
}

// resolveBlob decodes the base64 JSON blob. Malformed input short-circuits
// the pass: it is logged and no lower-priority source is consulted.
func (r *Resolver) resolveBlob(blob string) (*Load, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		r.log.Warn("game blob base64 decode failed", zap.Error(errors.Join(ErrDecode, err)))
		return nil, nil
	}
	var payload blobPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		r.log.Warn("game blob json decode failed", zap.Error(errors.Join(ErrDecode, err)))
		return nil, nil
	}
	if payload.PGN == "" {
		return nil, nil
	}
	whiteBottom := payload.Orientation == "white"
	return &Load{PGN: payload.PGN, WhiteBottom: &whiteBottom, Kind: KindEncodedBlob, ID: payload.ID}, nil
}

// resolveCached looks a snapshot up by local id. A snapshot with embedded
// PGN is used directly; otherwise its {platform, id} is refetched.
func (r *Resolver) resolveCached(ctx context.Context, localID string) (*Load, error) {
	snap, err := r.cache.Snapshot(ctx, localID)
	if err != nil {
		r.log.Warn("snapshot lookup failed", zap.String("id", localID), zap.Error(err))
		return nil, nil
	}
	if snap == nil {
		return nil, nil
	}

	whiteBottom := snap.WhiteBottom()
	platform, _ := domain.ParsePlatform(snap.Platform)
	if snap.PGN != "" {
		return &Load{PGN: snap.PGN, WhiteBottom: &whiteBottom, Kind: KindCachedByID, ID: snap.ID, Platform: platform}, nil
	}

	fetcher, ok := r.fetchers[platform]
	if !ok {
		r.log.Warn("snapshot names unknown platform", zap.String("id", localID), zap.String("platform", snap.Platform))
		return nil, nil
	}
	pgn, ok := fetcher.FetchGameText(ctx, snap.ID)
	if !ok {
		return nil, nil
	}
	return &Load{PGN: pgn, WhiteBottom: &whiteBottom, Kind: KindCachedByID, ID: snap.ID, Platform: platform}, nil
}

func (r *Resolver) resolveRemote(ctx context.Context, ref *Reference, gameRef string) (*Load, error) {
	fetcher, ok := r.fetchers[ref.Platform]
	if !ok {
		return nil, nil
	}
	pgn, ok := fetcher.FetchGameText(ctx, gameRef)
	if !ok {
		return nil, nil
	}
	return &Load{
		PGN:         pgn,
		WhiteBottom: ref.WhiteBottom,
		Kind:        ref.Kind,
		ID:          ref.ProviderID,
		Platform:    ref.Platform,
	}, nil
}
