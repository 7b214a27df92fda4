package domain

// Platform identifies an external chess provider.
type Platform string

const (
	PlatformChessCom Platform = "chess.com"
	PlatformLichess  Platform = "lichess"
)

// ParsePlatform maps a raw string onto a known platform.
func ParsePlatform(s string) (Platform, bool) {
	switch Platform(s) {
	case PlatformChessCom:
		return PlatformChessCom, true
	case PlatformLichess:
		return PlatformLichess, true
	default:
		return "", false
	}
}

// Player is one side of a canonical game.
type Player struct {
	Name   string `json:"name"`
	Rating int    `json:"rating"`
	Title  string `json:"title,omitempty"`
}

// CanonicalGame is the provider-agnostic record every component exchanges.
// PGN is the single source of truth for replay; the remaining fields are
// display metadata derived from it or from sibling API fields.
type CanonicalGame struct {
	ID          string `json:"id"`
	PGN         string `json:"pgn"`
	White       Player `json:"white"`
	Black       Player `json:"black"`
	Result      string `json:"result,omitempty"`
	TimeControl string `json:"timeControl,omitempty"`
	Date        string `json:"date,omitempty"`
	MovesNb     int    `json:"movesNb,omitempty"`
	URL         string `json:"url,omitempty"`

	// Timestamp is the raw end time in epoch seconds, kept for sorting only.
	Timestamp int64 `json:"timestamp,omitempty"`
}

// Profile is the display identity of a provider account.
type Profile struct {
	DisplayName string `json:"name,omitempty"`
	AvatarURL   string `json:"avatar,omitempty"`
}
