// Package lichess fetches and normalizes games from the Lichess API.
package lichess

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/chessrith/gamesync/internal/domain"
	"github.com/chessrith/gamesync/internal/obslog"
	"github.com/chessrith/gamesync/internal/provider"
)

const defaultLimit = 20

type Client struct {
	baseURL string
	http    *fasthttp.Client
	timeout time.Duration
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &fasthttp.Client{ReadTimeout: 15 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 16},
		timeout: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchRecentGames reads the NDJSON export stream. Lichess already returns
// games newest-first; that order is passed through unchanged.
func (c *Client) FetchRecentGames(ctx context.Context, handle string, limit int) ([]domain.CanonicalGame, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	u := fmt.Sprintf("%s/api/games/user/%s?max=%d&pgnInJson=true&sort=dateDesc",
		c.baseURL, url.PathEscape(strings.TrimSpace(handle)), limit)
	headers := map[string]string{"Accept": "application/x-ndjson"}

	status, body, err := provider.GetBody(ctx, c.http, u, headers, c.timeout)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", provider.ErrProvider, err)
	}
	if status == fasthttp.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", provider.ErrNotFound, handle)
	}
	if status >= 400 {
		return nil, fmt.Errorf("%w: export status %d", provider.ErrProvider, status)
	}

	var games []domain.CanonicalGame
	for _, line := range strings.Split(string(body), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		rec := gjson.Parse(line)
		if !rec.IsObject() {
			obslog.L().Debug("lichess export line skipped", zap.String("line", truncate(line, 120)))
			continue
		}
		g := normalize(rec)
		if g.PGN == "" {
			continue
		}
		games = append(games, g)
		if len(games) == limit {
			break
		}
	}
	return games, nil
}

// FetchGameText resolves a game id through the PGN export endpoint.
// Missing games and transport failures report absence.
func (c *Client) FetchGameText(ctx context.Context, ref string) (string, bool) {
	u := c.baseURL + "/game/export/" + url.PathEscape(strings.TrimSpace(ref))
	headers := map[string]string{"Accept": "application/x-chess-pgn"}
	status, body, err := provider.GetBody(ctx, c.http, u, headers, c.timeout)
	if err != nil {
		obslog.L().Debug("lichess game text fetch failed", zap.String("ref", ref), zap.Error(err))
		return "", false
	}
	if status < 200 || status >= 300 {
		return "", false
	}
	pgn := strings.TrimSpace(string(body))
	if pgn == "" {
		return "", false
	}
	return pgn, true
}

// FetchProfile prefers the account's real name over the raw handle.
func (c *Client) FetchProfile(ctx context.Context, handle string) (*domain.Profile, bool) {
	u := c.baseURL + "/api/user/" + url.PathEscape(strings.TrimSpace(handle))
	status, body, err := provider.GetBody(ctx, c.http, u, nil, c.timeout)
	if err != nil || status < 200 || status >= 300 {
		return nil, false
	}
	name := gjson.GetBytes(body, "profile.realName").String()
	if name == "" {
		name = gjson.GetBytes(body, "username").String()
	}
	if name == "" {
		return nil, false
	}
	return &domain.Profile{
		DisplayName: name,
		AvatarURL:   gjson.GetBytes(body, "profile.avatar").String(),
	}, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
