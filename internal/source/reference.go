// Package source decides which of several competing triggers should
// populate the active game, and resolves the chosen one to movetext.
package source

import (
	"net/url"

	"github.com/chessrith/gamesync/internal/domain"
)

// Kind tags the active variant of a Reference.
type Kind string

const (
	KindInlineText   Kind = "inline"
	KindEncodedBlob  Kind = "blob"
	KindCachedByID   Kind = "cached"
	KindRemoteByID   Kind = "remote-id"
	KindRemoteByURL  Kind = "remote-url"
	KindFrameMessage Kind = "frame"
)

// Reference is the closed union of game sources. Exactly one variant is
// active, selected by Kind; it lives only for one resolution attempt.
type Reference struct {
	Kind Kind

	// InlineText / FrameMessage
	PGN string

	// EncodedBlob: base64 of JSON {pgn, orientation}
	Blob string

	// CachedByID: local snapshot key
	LocalID string

	// RemoteByID / RemoteByURL
	Platform   domain.Platform
	ProviderID string
	URL        string

	// WhiteBottom, when set, is the explicit board orientation.
	WhiteBottom *bool
}

// FromQuery picks at most one reference from navigation parameters by
// fixed priority: encoded blob, cache lookup, inline PGN, Lichess game id,
// then {gameId, platform}. Inter-frame messages are not part of this list;
// they arrive through their own always-on listener.
func FromQuery(params url.Values) *Reference {
	orientation := paramOrientation(params.Get("orientation"))

	if g := params.Get("g"); g != "" {
		return &Reference{Kind: KindEncodedBlob, Blob: g}
	}
	if id := params.Get("id"); id != "" {
		return &Reference{Kind: KindCachedByID, LocalID: id}
	}
	if pgn := params.Get("pgn"); pgn != "" {
		return &Reference{Kind: KindInlineText, PGN: unescapeOnce(pgn), WhiteBottom: orientation}
	}
	if id := params.Get("lichessGameId"); id != "" {
		return &Reference{
			Kind:        KindRemoteByID,
			Platform:    domain.PlatformLichess,
			ProviderID:  id,
			WhiteBottom: orientation,
		}
	}
	gameID := params.Get("gameId")
	platform, ok := domain.ParsePlatform(params.Get("platform"))
	if gameID != "" && ok {
		ref := &Reference{Platform: platform, WhiteBottom: orientation}
		if platform == domain.PlatformChessCom {
			// Chess.com game references are page URLs, scraped for PGN.
			ref.Kind = KindRemoteByURL
			ref.URL = gameID
		} else {
			ref.Kind = KindRemoteByID
			ref.ProviderID = gameID
		}
		return ref
	}
	return nil
}

// FromFrameMessage wraps an inter-frame payload. Only the literal "black"
// flips the board.
func FromFrameMessage(pgn, orientation string) *Reference {
	whiteBottom := orientation != "black"
	return &Reference{Kind: KindFrameMessage, PGN: pgn, WhiteBottom: &whiteBottom}
}

// paramOrientation implements the navigation-parameter rule: absent or
// "white" keeps white at the bottom.
func paramOrientation(raw string) *bool {
	whiteBottom := raw == "white" || raw == ""
	return &whiteBottom
}

// unescapeOnce applies one extra percent-decoding pass over the already
// query-decoded value, keeping the raw text when it is not valid escaping.
func unescapeOnce(s string) string {
	if dec, err := url.QueryUnescape(s); err == nil {
		return dec
	}
	return s
}
