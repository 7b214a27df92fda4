// Package session owns the active game state and reconciles newly resolved
// games against it.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	nchess "github.com/corentings/chess/v2"
)

// ErrMalformedGame marks movetext that fails to parse. The reconciliation
// attempt is rejected and prior state stays untouched.
var ErrMalformedGame = errors.New("malformed game")

// Evaluation is the analysis engine's output for a loaded game. The engine
// owns its shape; the session only stores, attaches, and clears it.
type Evaluation = json.RawMessage

var whiteTagRe = regexp.MustCompile(`\[White "(.*?)"\]`)

// Session is the active game plus its dependent state: a board replay
// cursor, the display orientation, and any attached evaluation. The board
// cursor is always a prefix of the loaded game's move history.
type Session struct {
	mu sync.RWMutex

	game    *nchess.Game
	history []string // SAN, cached from game
	pgn     string

	boardPly    int
	whiteBottom bool

	eval       Evaluation
	evaluating bool
}

func New() *Session {
	return &Session{game: nchess.NewGame(), whiteBottom: true}
}

// Reconcile parses the movetext and decides whether it is the game already
// loaded. The same game only follows the orientation; a different game
// atomically replaces the game, the board cursor, the orientation, and the
// evaluation. Evaluation is cleared with the swap so no reader can observe
// a new game paired with a stale score.
func (s *Session) Reconcile(pgnText string, whiteBottom *bool, eval Evaluation) error {
	trial, err := parseGame(pgnText)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedGame, err)
	}
	trialHistory := sanHistory(trial)

	orientation := true
	if whiteBottom != nil {
		orientation = *whiteBottom
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.Join(trialHistory, ",") == strings.Join(s.history, ",") {
		if s.whiteBottom != orientation {
			s.whiteBottom = orientation
		}
		return nil
	}

	s.eval = eval
	s.evaluating = false
	s.boardPly = 0
	s.game = trial
	s.history = trialHistory
	s.pgn = pgnText
	s.whiteBottom = orientation
	return nil
}

// SeekBoard moves the replay cursor to the given ply, clamped to the
// loaded history. The cursor never diverges from the loaded game.
func (s *Session) SeekBoard(ply int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ply < 0 {
		ply = 0
	}
	if ply > len(s.history) {
		ply = len(s.history)
	}
	s.boardPly = ply
	return ply
}

// Board reconstructs the replay cursor as its own game, holding the first
// boardPly moves of the loaded history.
func (s *Session) Board() (*nchess.Game, error) {
	s.mu.RLock()
	prefix := append([]string(nil), s.history[:s.boardPly]...)
	s.mu.RUnlock()

	board := nchess.NewGame()
	for _, san := range prefix {
		if err := board.PushNotationMove(san, nchess.AlgebraicNotation{}, nil); err != nil {
			return nil, fmt.Errorf("replay %q: %w", san, err)
		}
	}
	return board, nil
}

// AttachEvaluation stores the analysis output for the loaded game.
func (s *Session) AttachEvaluation(eval Evaluation) {
	s.mu.Lock()
	s.eval = eval
	s.evaluating = false
	s.mu.Unlock()
}

func (s *Session) SetEvaluating(v bool) {
	s.mu.Lock()
	s.evaluating = v
	s.mu.Unlock()
}

// Loaded reports whether a real game is in. A game counts as loaded when
// its White header is filled in or it has at least one move.
func (s *Session) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadedLocked()
}

// loadedLocked requires s.mu to be held.
func (s *Session) loadedLocked() bool {
	if len(s.history) > 0 {
		return true
	}
	m := whiteTagRe.FindStringSubmatch(s.pgn)
	return m != nil && m[1] != "" && m[1] != "?"
}

// LoadLabel is the surfaced label of the load-game action. It changes once
// a game is in, and again while an evaluation is running; the action stays
// available the whole time.
func (s *Session) LoadLabel() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.evaluating {
		return "Evaluating..."
	}
	if s.loadedLocked() {
		return "Load another game"
	}
	return "Load game"
}

// View is a consistent copy of the session for rendering.
type View struct {
	PGN         string     `json:"pgn"`
	MoveCount   int        `json:"moveCount"`
	BoardPly    int        `json:"boardPly"`
	WhiteBottom bool       `json:"whiteBottom"`
	Evaluation  Evaluation `json:"evaluation,omitempty"`
	Evaluating  bool       `json:"evaluating"`
	Loaded      bool       `json:"loaded"`
}

func (s *Session) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return View{
		PGN:         s.pgn,
		MoveCount:   len(s.history),
		BoardPly:    s.boardPly,
		WhiteBottom: s.whiteBottom,
		Evaluation:  s.eval,
		Evaluating:  s.evaluating,
		Loaded:      s.loadedLocked(),
	}
}

func parseGame(pgnText string) (*nchess.Game, error) {
	opt, err := nchess.PGN(strings.NewReader(pgnText))
	if err != nil {
		return nil, err
	}
	return nchess.NewGame(opt), nil
}

// sanHistory re-encodes the game's moves as SAN; the joined sequence is
// the sameness key for reconciliation.
func sanHistory(g *nchess.Game) []string {
	moves := g.Moves()
	positions := g.Positions()
	out := make([]string, 0, len(moves))
	for i, mv := range moves {
		if i >= len(positions) {
			break
		}
		out = append(out, nchess.AlgebraicNotation{}.Encode(positions[i], mv))
	}
	return out
}
