package chesscom

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/chessrith/gamesync/internal/domain"
	"github.com/chessrith/gamesync/internal/provider"
)

type archivePage struct {
	Games []rawGame `json:"games"`
}

type rawPlayer struct {
	Username string `json:"username"`
	Rating   int    `json:"rating"`
	Title    string `json:"title"`
}

// rawGame is the Chess.com archive record, private to this provider.
type rawGame struct {
	PGN         string      `json:"pgn"`
	EndTime     int64       `json:"end_time"`
	UUID        string      `json:"uuid"`
	URL         string      `json:"url"`
	ID          json.Number `json:"id"`
	TimeControl string      `json:"time_control"`
	White       rawPlayer   `json:"white"`
	Black       rawPlayer   `json:"black"`
}

const dateLayout = "1/2/2006"

func normalize(raw rawGame, now time.Time) domain.CanonicalGame {
	date := now.Format(dateLayout)
	if raw.EndTime > 0 {
		date = time.Unix(raw.EndTime, 0).Format(dateLayout)
	}

	return domain.CanonicalGame{
		ID:          gameID(raw),
		PGN:         raw.PGN,
		White:       normalizePlayer(raw.White, "White"),
		Black:       normalizePlayer(raw.Black, "Black"),
		Result:      provider.ResultFromPGN(raw.PGN),
		TimeControl: provider.CompactTimeControl(raw.TimeControl),
		Date:        date,
		MovesNb:     provider.MoveCountFromPGN(raw.PGN),
		URL:         raw.URL,
		Timestamp:   raw.EndTime,
	}
}

// gameID prefers the provider UUID, then the trailing path segment of the
// game URL, then the numeric id.
func gameID(raw rawGame) string {
	if raw.UUID != "" {
		return raw.UUID
	}
	if raw.URL != "" {
		parts := strings.Split(strings.TrimRight(raw.URL, "/"), "/")
		if last := parts[len(parts)-1]; last != "" {
			return last
		}
	}
	return raw.ID.String()
}

func normalizePlayer(p rawPlayer, fallback string) domain.Player {
	name := strings.TrimSpace(p.Username)
	if name == "" {
		name = fallback
	}
	rating := p.Rating
	if rating < 0 {
		rating = 0
	}
	return domain.Player{Name: name, Rating: rating, Title: p.Title}
}
