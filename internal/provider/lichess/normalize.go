package lichess

import (
	"time"

	"github.com/tidwall/gjson"

	"github.com/chessrith/gamesync/internal/domain"
	"github.com/chessrith/gamesync/internal/provider"
)

const dateLayout = "1/2/2006"

// normalize maps one NDJSON export record onto the canonical game. The
// Lichess shape is independent of the Chess.com one; only the output type
// is shared.
func normalize(rec gjson.Result) domain.CanonicalGame {
	id := rec.Get("id").String()
	pgn := rec.Get("pgn").String()

	endMillis := rec.Get("lastMoveAt").Int()
	if endMillis == 0 {
		endMillis = rec.Get("createdAt").Int()
	}
	endSeconds := endMillis / 1000

	date := time.Now().Format(dateLayout)
	if endSeconds > 0 {
		date = time.Unix(endSeconds, 0).Format(dateLayout)
	}

	gameURL := ""
	if id != "" {
		gameURL = "https://lichess.org/" + id
	}

	return domain.CanonicalGame{
		ID:          id,
		PGN:         pgn,
		White:       normalizePlayer(rec.Get("players.white"), "White"),
		Black:       normalizePlayer(rec.Get("players.black"), "Black"),
		Result:      result(rec),
		TimeControl: provider.CompactClock(int(rec.Get("clock.initial").Int()), int(rec.Get("clock.increment").Int())),
		Date:        date,
		MovesNb:     provider.MoveCountFromPGN(pgn),
		URL:         gameURL,
		Timestamp:   endSeconds,
	}
}

func normalizePlayer(p gjson.Result, fallback string) domain.Player {
	name := p.Get("user.name").String()
	if name == "" {
		if ai := p.Get("aiLevel"); ai.Exists() {
			name = "Stockfish level " + ai.String()
		} else {
			name = fallback
		}
	}
	rating := int(p.Get("rating").Int())
	if rating < 0 {
		rating = 0
	}
	return domain.Player{
		Name:   name,
		Rating: rating,
		Title:  p.Get("user.title").String(),
	}
}

func result(rec gjson.Result) string {
	switch rec.Get("winner").String() {
	case "white":
		return "1-0"
	case "black":
		return "0-1"
	}
	switch rec.Get("status").String() {
	case "draw", "stalemate":
		return "1/2-1/2"
	}
	return ""
}
