package server

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/valyala/fasthttp"

	"github.com/chessrith/gamesync/internal/cache"
	"github.com/chessrith/gamesync/internal/domain"
	"github.com/chessrith/gamesync/internal/profile"
	"github.com/chessrith/gamesync/internal/provider"
	"github.com/chessrith/gamesync/internal/session"
	"github.com/chessrith/gamesync/internal/source"
)

const testGame = `[Event "Test"]
[White "alice"]
[Black "bob"]
[Result "1-0"]

1. e4 e5 2. Nf3 1-0`

type fakeFetcher struct {
	games    []domain.CanonicalGame
	listErr  error
	gameText map[string]string
}

func (f *fakeFetcher) FetchRecentGames(ctx context.Context, handle string, limit int) ([]domain.CanonicalGame, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	if limit > len(f.games) {
		limit = len(f.games)
	}
	return f.games[:limit], nil
}

func (f *fakeFetcher) FetchGameText(ctx context.Context, ref string) (string, bool) {
	pgn, ok := f.gameText[ref]
	return pgn, ok
}

func (f *fakeFetcher) FetchProfile(ctx context.Context, handle string) (*domain.Profile, bool) {
	return nil, false
}

type fixture struct {
	server   *Server
	session  *session.Session
	accepted chan session.Candidate
}

func newFixture(t *testing.T, fetcher *fakeFetcher) *fixture {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })
	store := cache.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	fetchers := map[domain.Platform]provider.Fetcher{
		domain.PlatformChessCom: fetcher,
		domain.PlatformLichess:  fetcher,
	}

	sess := session.New()
	loop := session.NewLoop(sess, nil)
	accepted := make(chan session.Candidate, 8)
	loop.OnAccept(func(c session.Candidate) { accepted <- c })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go loop.Run(ctx)

	resolver := source.NewResolver(store, fetchers, nil)
	profiles := profile.NewLoader(store, fetchers, nil)
	return &fixture{
		server:   New(resolver, loop, sess, profiles, nil),
		session:  sess,
		accepted: accepted,
	}
}

func (f *fixture) do(t *testing.T, method, uri string, body []byte) *fasthttp.RequestCtx {
	t.Helper()
	var req fasthttp.Request
	req.Header.SetMethod(method)
	req.SetRequestURI(uri)
	if body != nil {
		req.SetBody(body)
	}
	ctx := &fasthttp.RequestCtx{}
	ctx.Init(&req, nil, nil)
	f.server.Handler()(ctx)
	return ctx
}

func (f *fixture) waitAccept(t *testing.T) session.Candidate {
	t.Helper()
	select {
	case c := <-f.accepted:
		return c
	case <-time.After(3 * time.Second):
		t.Fatalf("no candidate accepted")
		return session.Candidate{}
	}
}

func TestSessionView(t *testing.T) {
	f := newFixture(t, &fakeFetcher{})
	ctx := f.do(t, "GET", "http://x/session", nil)
	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("status = %d", ctx.Response.StatusCode())
	}
	var resp struct {
		Session   session.View `json:"session"`
		LoadLabel string       `json:"loadLabel"`
	}
	if err := json.Unmarshal(ctx.Response.Body(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Session.Loaded || resp.LoadLabel != "Load game" {
		t.Fatalf("fresh session view: %+v label=%q", resp.Session, resp.LoadLabel)
	}
}

func TestUserLoadQueuesCandidate(t *testing.T) {
	f := newFixture(t, &fakeFetcher{})

	body, _ := json.Marshal(map[string]string{"pgn": testGame, "orientation": "black"})
	ctx := f.do(t, "POST", "http://x/load", body)
	if ctx.Response.StatusCode() != fasthttp.StatusAccepted {
		t.Fatalf("status = %d body=%s", ctx.Response.StatusCode(), ctx.Response.Body())
	}

	c := f.waitAccept(t)
	if c.Origin != session.OriginUser {
		t.Fatalf("origin = %v", c.Origin)
	}
	if v := f.session.View(); !v.Loaded || v.WhiteBottom {
		t.Fatalf("session after user load: %+v", v)
	}
}

func TestUserLoadRejectsBadRequests(t *testing.T) {
	f := newFixture(t, &fakeFetcher{})
	if ctx := f.do(t, "GET", "http://x/load", nil); ctx.Response.StatusCode() != fasthttp.StatusMethodNotAllowed {
		t.Fatalf("GET status = %d", ctx.Response.StatusCode())
	}
	if ctx := f.do(t, "POST", "http://x/load", []byte(`{"orientation":"black"}`)); ctx.Response.StatusCode() != fasthttp.StatusBadRequest {
		t.Fatalf("missing pgn status = %d", ctx.Response.StatusCode())
	}
}

func TestAnalysisResolvesChangedParams(t *testing.T) {
	f := newFixture(t, &fakeFetcher{gameText: map[string]string{"lic1": testGame}})

	ctx := f.do(t, "GET", "http://x/analysis?lichessGameId=lic1", nil)
	if ctx.Response.StatusCode() != fasthttp.StatusAccepted {
		t.Fatalf("status = %d", ctx.Response.StatusCode())
	}
	c := f.waitAccept(t)
	if c.Origin != session.OriginNavigation || c.ID != "lic1" {
		t.Fatalf("accepted candidate: %+v", c)
	}

	// Same parameters again: acknowledged without a new resolution pass.
	ctx = f.do(t, "GET", "http://x/analysis?lichessGameId=lic1", nil)
	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("repeat status = %d", ctx.Response.StatusCode())
	}
	select {
	case c := <-f.accepted:
		t.Fatalf("unchanged parameters must not resolve again, got %+v", c)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestGamesValidation(t *testing.T) {
	f := newFixture(t, &fakeFetcher{})
	if ctx := f.do(t, "GET", "http://x/games?username=alice", nil); ctx.Response.StatusCode() != fasthttp.StatusBadRequest {
		t.Fatalf("missing platform status = %d", ctx.Response.StatusCode())
	}
	if ctx := f.do(t, "GET", "http://x/games?platform=lichess", nil); ctx.Response.StatusCode() != fasthttp.StatusBadRequest {
		t.Fatalf("missing username status = %d", ctx.Response.StatusCode())
	}
}

func TestGamesFetchErrorMapping(t *testing.T) {
	f := newFixture(t, &fakeFetcher{listErr: provider.ErrNotFound})
	if ctx := f.do(t, "GET", "http://x/games?username=ghost&platform=lichess", nil); ctx.Response.StatusCode() != fasthttp.StatusNotFound {
		t.Fatalf("not-found status = %d", ctx.Response.StatusCode())
	}

	f = newFixture(t, &fakeFetcher{listErr: provider.ErrProvider})
	if ctx := f.do(t, "GET", "http://x/games?username=alice&platform=lichess", nil); ctx.Response.StatusCode() != fasthttp.StatusBadGateway {
		t.Fatalf("provider-error status = %d", ctx.Response.StatusCode())
	}
}

func TestGamesSuccess(t *testing.T) {
	f := newFixture(t, &fakeFetcher{games: []domain.CanonicalGame{{ID: "a", PGN: "1. e4"}}})
	ctx := f.do(t, "GET", "http://x/games?username=alice&platform=lichess", nil)
	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("status = %d body=%s", ctx.Response.StatusCode(), ctx.Response.Body())
	}
	var games []domain.CanonicalGame
	if err := json.Unmarshal(ctx.Response.Body(), &games); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(games) != 1 || games[0].ID != "a" {
		t.Fatalf("games = %+v", games)
	}
}

func TestBoardSeek(t *testing.T) {
	f := newFixture(t, &fakeFetcher{})
	if err := f.session.Reconcile(testGame, nil, nil); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	ctx := f.do(t, "POST", "http://x/board/seek?ply=99", nil)
	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("status = %d", ctx.Response.StatusCode())
	}
	var resp map[string]int
	if err := json.Unmarshal(ctx.Response.Body(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["ply"] != 3 {
		t.Fatalf("ply must clamp to history length, got %d", resp["ply"])
	}

	if ctx := f.do(t, "POST", "http://x/board/seek", nil); ctx.Response.StatusCode() != fasthttp.StatusBadRequest {
		t.Fatalf("missing ply status = %d", ctx.Response.StatusCode())
	}
}

func TestEvaluationAttach(t *testing.T) {
	f := newFixture(t, &fakeFetcher{})

	if ctx := f.do(t, "POST", "http://x/session/evaluation", []byte("{broken")); ctx.Response.StatusCode() != fasthttp.StatusBadRequest {
		t.Fatalf("invalid body status = %d", ctx.Response.StatusCode())
	}

	ctx := f.do(t, "POST", "http://x/session/evaluation", []byte(`{"score":0.7}`))
	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("status = %d", ctx.Response.StatusCode())
	}
	if v := f.session.View(); string(v.Evaluation) != `{"score":0.7}` {
		t.Fatalf("evaluation = %s", v.Evaluation)
	}
}

func TestEvaluationLifecycleOverHTTP(t *testing.T) {
	f := newFixture(t, &fakeFetcher{})
	if err := f.session.Reconcile(testGame, nil, nil); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if ctx := f.do(t, "GET", "http://x/session/evaluation/start", nil); ctx.Response.StatusCode() != fasthttp.StatusMethodNotAllowed {
		t.Fatalf("GET start status = %d", ctx.Response.StatusCode())
	}

	ctx := f.do(t, "POST", "http://x/session/evaluation/start", nil)
	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("start status = %d", ctx.Response.StatusCode())
	}
	if v := f.session.View(); !v.Evaluating {
		t.Fatalf("start must mark the evaluation running: %+v", v)
	}

	var view struct {
		Session   session.View `json:"session"`
		LoadLabel string       `json:"loadLabel"`
	}
	ctx = f.do(t, "GET", "http://x/session", nil)
	if err := json.Unmarshal(ctx.Response.Body(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !view.Session.Evaluating || view.LoadLabel != "Evaluating..." {
		t.Fatalf("session view mid-evaluation: %+v label=%q", view.Session, view.LoadLabel)
	}

	ctx = f.do(t, "POST", "http://x/session/evaluation", []byte(`{"score":1.1}`))
	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("attach status = %d", ctx.Response.StatusCode())
	}
	v := f.session.View()
	if v.Evaluating || string(v.Evaluation) != `{"score":1.1}` {
		t.Fatalf("session after attach: %+v", v)
	}
	if got := f.session.LoadLabel(); got != "Load another game" {
		t.Fatalf("label after attach = %q", got)
	}
}

func TestUnknownPath(t *testing.T) {
	f := newFixture(t, &fakeFetcher{})
	if ctx := f.do(t, "GET", "http://x/nope", nil); ctx.Response.StatusCode() != fasthttp.StatusNotFound {
		t.Fatalf("status = %d", ctx.Response.StatusCode())
	}
}
