// Package chesscom fetches and normalizes games from the Chess.com
// published-data API.
package chesscom

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/chessrith/gamesync/internal/domain"
	"github.com/chessrith/gamesync/internal/obslog"
	"github.com/chessrith/gamesync/internal/provider"
)

const (
	defaultLimit = 20

	// The archive endpoint is addressed by calendar month; a scan never
	// walks further back than one year.
	maxArchiveMonths = 12

	futureMonthMessage = "Date cannot be set in the future"
)

type Client struct {
	baseURL string
	http    *fasthttp.Client
	timeout time.Duration
	now     func() time.Time
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithClock overrides the time source used to pick the starting month.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 16},
		timeout: 10 * time.Second,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchRecentGames walks monthly archives backward from the current UTC
// month until limit raw games are gathered or twelve months were checked,
// then filters, sorts newest-first, truncates, and normalizes.
func (c *Client) FetchRecentGames(ctx context.Context, handle string, limit int) ([]domain.CanonicalGame, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	handleParam := url.PathEscape(strings.ToLower(strings.TrimSpace(handle)))

	now := c.now().UTC()
	year, month := now.Year(), int(now.Month())

	var raws []rawGame
	for checked := 0; checked < maxArchiveMonths && len(raws) < limit; checked++ {
		u := fmt.Sprintf("%s/pub/player/%s/games/%d/%02d", c.baseURL, handleParam, year, month)
		status, body, err := provider.GetBody(ctx, c.http, u, nil, c.timeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", provider.ErrProvider, err)
		}

		if status >= 400 {
			msg := gjson.GetBytes(body, "message").String()
			switch {
			case msg == futureMonthMessage:
				// The archive for the running month may not exist yet.
			case strings.Contains(msg, "not found"):
				return nil, fmt.Errorf("%w: %s", provider.ErrNotFound, handle)
			default:
				return nil, fmt.Errorf("%w: archive status %d", provider.ErrProvider, status)
			}
		} else {
			var page archivePage
			if err := json.Unmarshal(body, &page); err != nil {
				return nil, fmt.Errorf("%w: decode archive: %v", provider.ErrProvider, err)
			}
			raws = append(raws, page.Games...)
		}

		month--
		if month == 0 {
			month = 12
			year--
		}
	}

	kept := make([]rawGame, 0, len(raws))
	for _, g := range raws {
		if g.PGN != "" && g.EndTime > 0 {
			kept = append(kept, g)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].EndTime > kept[j].EndTime })
	if len(kept) > limit {
		kept = kept[:limit]
	}

	games := make([]domain.CanonicalGame, 0, len(kept))
	for _, g := range kept {
		games = append(games, normalize(g, c.now()))
	}
	return games, nil
}

// FetchGameText loads a game page and scrapes its movetext. All failures,
// transport included, report absence.
func (c *Client) FetchGameText(ctx context.Context, ref string) (string, bool) {
	status, body, err := provider.GetBody(ctx, c.http, ref, nil, c.timeout)
	if err != nil {
		obslog.L().Debug("chesscom game text fetch failed", zap.String("ref", ref), zap.Error(err))
		return "", false
	}
	if status < 200 || status >= 300 {
		return "", false
	}
	return provider.ExtractGameText(string(body))
}

// FetchProfile returns the account's avatar URL when the profile endpoint
// carries a string-typed avatar field. Handles are case-insensitive on
// Chess.com, so the request is lower-cased.
func (c *Client) FetchProfile(ctx context.Context, handle string) (*domain.Profile, bool) {
	handleParam := url.PathEscape(strings.ToLower(strings.TrimSpace(handle)))
	status, body, err := provider.GetBody(ctx, c.http, c.baseURL+"/pub/player/"+handleParam, nil, c.timeout)
	if err != nil || status < 200 || status >= 300 {
		return nil, false
	}
	avatar := gjson.GetBytes(body, "avatar")
	if avatar.Type != gjson.String {
		return nil, false
	}
	return &domain.Profile{AvatarURL: avatar.String()}, true
}
