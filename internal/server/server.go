// Package server is the HTTP surface of the daemon: the navigation trigger,
// the user load action, and the profile/games views.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/chessrith/gamesync/internal/domain"
	"github.com/chessrith/gamesync/internal/profile"
	"github.com/chessrith/gamesync/internal/provider"
	"github.com/chessrith/gamesync/internal/session"
	"github.com/chessrith/gamesync/internal/source"
)

const resolveTimeout = 60 * time.Second

type Server struct {
	resolver *source.Resolver
	loop     *session.Loop
	sess     *session.Session
	profiles *profile.Loader
	log      *zap.Logger

	// lastQuery tracks navigation parameter identity; an unchanged set
	// does not rerun resolution.
	queryM    sync.Mutex
	lastQuery string

	srv *fasthttp.Server
}

func New(resolver *source.Resolver, loop *session.Loop, sess *session.Session, profiles *profile.Loader, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		resolver: resolver,
		loop:     loop,
		sess:     sess,
		profiles: profiles,
		log:      log,
	}
}

func (s *Server) Handler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		switch string(ctx.Path()) {
		case "/analysis":
			s.handleAnalysis(ctx)
		case "/load":
			s.handleUserLoad(ctx)
		case "/games":
			s.handleGames(ctx)
		case "/games/more":
			s.handleLoadMore(ctx)
		case "/games/refresh":
			s.handleRefresh(ctx)
		case "/profile":
			s.handleProfile(ctx)
		case "/session":
			s.handleSession(ctx)
		case "/board/seek":
			s.handleBoardSeek(ctx)
		case "/session/evaluation":
			s.handleEvaluation(ctx)
		case "/session/evaluation/start":
			s.handleEvaluationStart(ctx)
		default:
			writeError(ctx, fasthttp.StatusNotFound, "unknown path")
		}
	}
}

func (s *Server) ListenAndServe(addr string) error {
	s.srv = &fasthttp.Server{Handler: s.Handler(), Name: "gamesync"}
	return s.srv.ListenAndServe(addr)
}

func (s *Server) Shutdown() error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown()
}

// handleAnalysis is the navigation trigger. An unchanged parameter set is
// acknowledged without a new resolution pass; a changed one resolves
// asynchronously and feeds the reconciliation queue.
func (s *Server) handleAnalysis(ctx *fasthttp.RequestCtx) {
	params := queryValues(ctx)
	raw := params.Encode()

	s.queryM.Lock()
	unchanged := raw == s.lastQuery && raw != ""
	s.lastQuery = raw
	s.queryM.Unlock()

	if unchanged {
		writeJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "unchanged"})
		return
	}

	go func() {
		rctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
		defer cancel()
		load, err := s.resolver.Resolve(rctx, params)
		if err != nil {
			s.log.Warn("navigation resolve failed", zap.Error(err))
			return
		}
		if load == nil {
			return
		}
		s.loop.Submit(session.Candidate{
			PGN:         load.PGN,
			WhiteBottom: load.WhiteBottom,
			Origin:      session.OriginNavigation,
			ID:          load.ID,
			Platform:    string(load.Platform),
		})
	}()

	writeJSON(ctx, fasthttp.StatusAccepted, map[string]string{"status": "resolving"})
}

type userLoadRequest struct {
	PGN         string `json:"pgn"`
	Orientation string `json:"orientation,omitempty"`
}

// handleUserLoad is the explicit load-a-different-game action. It clears
// the pending navigation parameters before reconciling.
func (s *Server) handleUserLoad(ctx *fasthttp.RequestCtx) {
	if !ctx.IsPost() {
		writeError(ctx, fasthttp.StatusMethodNotAllowed, "POST required")
		return
	}
	var req userLoadRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil || req.PGN == "" {
		writeError(ctx, fasthttp.StatusBadRequest, "pgn required")
		return
	}

	s.queryM.Lock()
	s.lastQuery = ""
	s.queryM.Unlock()

	var whiteBottom *bool
	if req.Orientation != "" {
		wb := req.Orientation != "black"
		whiteBottom = &wb
	}
	s.loop.Submit(session.Candidate{
		PGN:         req.PGN,
		WhiteBottom: whiteBottom,
		Origin:      session.OriginUser,
	})
	writeJSON(ctx, fasthttp.StatusAccepted, map[string]string{"status": "queued"})
}

func (s *Server) handleGames(ctx *fasthttp.RequestCtx) {
	handle := string(ctx.QueryArgs().Peek("username"))
	platform, ok := domain.ParsePlatform(string(ctx.QueryArgs().Peek("platform")))
	if handle == "" || !ok {
		writeError(ctx, fasthttp.StatusBadRequest, "username and platform required")
		return
	}
	games, err := s.profiles.Load(ctx, handle, platform)
	if err != nil {
		writeFetchError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, games)
}

func (s *Server) handleLoadMore(ctx *fasthttp.RequestCtx) {
	games, hasMore, err := s.profiles.LoadMore(ctx)
	if err != nil {
		writeFetchError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, map[string]any{"games": games, "hasMore": hasMore})
}

func (s *Server) handleRefresh(ctx *fasthttp.RequestCtx) {
	if !ctx.IsPost() {
		writeError(ctx, fasthttp.StatusMethodNotAllowed, "POST required")
		return
	}
	games, err := s.profiles.Refresh(ctx)
	if err != nil {
		writeFetchError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, games)
}

func (s *Server) handleProfile(ctx *fasthttp.RequestCtx) {
	writeJSON(ctx, fasthttp.StatusOK, s.profiles.Restore(ctx))
}

func (s *Server) handleSession(ctx *fasthttp.RequestCtx) {
	view := s.sess.View()
	writeJSON(ctx, fasthttp.StatusOK, map[string]any{
		"session":   view,
		"loadLabel": s.sess.LoadLabel(),
	})
}

func (s *Server) handleBoardSeek(ctx *fasthttp.RequestCtx) {
	if !ctx.IsPost() {
		writeError(ctx, fasthttp.StatusMethodNotAllowed, "POST required")
		return
	}
	ply, err := ctx.QueryArgs().GetUint("ply")
	if err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "ply required")
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, map[string]int{"ply": s.sess.SeekBoard(ply)})
}

// handleEvaluation attaches the analysis engine's output to the loaded
// game. The payload shape is the engine's business.
func (s *Server) handleEvaluation(ctx *fasthttp.RequestCtx) {
	if !ctx.IsPost() {
		writeError(ctx, fasthttp.StatusMethodNotAllowed, "POST required")
		return
	}
	body := append([]byte(nil), ctx.PostBody()...)
	if len(body) == 0 || !json.Valid(body) {
		writeError(ctx, fasthttp.StatusBadRequest, "valid JSON body required")
		return
	}
	s.sess.AttachEvaluation(session.Evaluation(body))
	writeJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "attached"})
}

// handleEvaluationStart marks an evaluation as running. The engine signals
// start here and finishes by posting its output to /session/evaluation.
func (s *Server) handleEvaluationStart(ctx *fasthttp.RequestCtx) {
	if !ctx.IsPost() {
		writeError(ctx, fasthttp.StatusMethodNotAllowed, "POST required")
		return
	}
	s.sess.SetEvaluating(true)
	writeJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "evaluating"})
}

func queryValues(ctx *fasthttp.RequestCtx) url.Values {
	params := url.Values{}
	ctx.QueryArgs().VisitAll(func(k, v []byte) {
		params.Add(string(k), string(v))
	})
	return params
}

func writeFetchError(ctx *fasthttp.RequestCtx, err error) {
	switch {
	case errors.Is(err, provider.ErrNotFound):
		writeError(ctx, fasthttp.StatusNotFound, err.Error())
	case errors.Is(err, provider.ErrProvider):
		writeError(ctx, fasthttp.StatusBadGateway, err.Error())
	default:
		writeError(ctx, fasthttp.StatusInternalServerError, err.Error())
	}
}

func writeError(ctx *fasthttp.RequestCtx, code int, msg string) {
	writeJSON(ctx, code, map[string]string{"error": msg})
}

func writeJSON(ctx *fasthttp.RequestCtx, code int, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetStatusCode(code)
	ctx.SetContentType("application/json")
	ctx.SetBody(payload)
}
