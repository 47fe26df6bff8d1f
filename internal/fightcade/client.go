package fightcade

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"golang.org/x/sync/errgroup"

	"github.com/fc-rank-search/internal/config"
	"github.com/fc-rank-search/internal/domain"
)

// PageOptions selects one page of a game's ranking list
type PageOptions struct {
	SortByScore bool
	RecentOnly  bool
	Limit       int
	Offset      int
}

// Page is a slice of a game's ranking list
type Page struct {
	Players    []domain.Profile
	TotalCount int
	// Partial is set when a multi-page fetch stopped early on a failure
	Partial bool
}

// Client talks to the upstream ranking service
type Client struct {
	baseURL        string
	userAgent      string
	http           *fasthttp.Client
	timeout        time.Duration
	pageSize       int
	pageDelay      time.Duration
	maxPlayers     int
	maxConcurrency int
	logger         *slog.Logger
}

// NewClient creates a new upstream client
func NewClient(cfg *config.UpstreamConfig, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	maxConcurrency := cfg.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = 8
	}

	return &Client{
		baseURL:   cfg.BaseURL,
		userAgent: cfg.UserAgent,
		http: &fasthttp.Client{
			ReadTimeout:     timeout,
			WriteTimeout:    timeout,
			MaxConnsPerHost: 64,
			// ranking pages for popular games are large
			MaxResponseBodySize: 64 << 20,
		},
		timeout:        timeout,
		pageSize:       pageSize,
		pageDelay:      cfg.PageDelay,
		maxPlayers:     cfg.MaxPlayers,
		maxConcurrency: maxConcurrency,
		logger:         logger,
	}
}

// FetchPage requests a single page of rankings
func (c *Client) FetchPage(ctx context.Context, gameID string, opts PageOptions) (*Page, error) {
	req := rankingsRequest{
		Req:    opSearchRankings,
		GameID: gameID,
		ByElo:  opts.SortByScore,
		Recent: opts.RecentOnly,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	}

	var env envelope
	if err := c.doJSON(ctx, req, &env); err != nil {
		return nil, err
	}
	if env.Res != resOK {
		return nil, fmt.Errorf("searchrankings %s: res=%s: %w", gameID, env.Res, domain.ErrUpstreamResponse)
	}

	var results rankingsResults
	if len(env.Results) > 0 {
		if err := json.Unmarshal(env.Results, &results); err != nil {
			return nil, fmt.Errorf("decoding rankings for %s: %v: %w", gameID, err, domain.ErrUpstreamResponse)
		}
	}

	page := &Page{
		Players:    make([]domain.Profile, 0, len(results.Results)),
		TotalCount: results.Count,
	}
	for i := range results.Results {
		page.Players = append(page.Players, results.Results[i].toProfile())
	}
	return page, nil
}

// FetchAllPages walks the ranking list page by page until the upstream
// runs dry or maxPlayers is reached. A failure after at least one page
// returns the accumulated players with Partial set.
func (c *Client) FetchAllPages(ctx context.Context, gameID string, maxPlayers int) (*Page, error) {
	if maxPlayers <= 0 {
		maxPlayers = c.maxPlayers
	}
	if maxPlayers <= 0 {
		maxPlayers = 100000
	}

	result := &Page{}
	offset := 0

	for len(result.Players) < maxPlayers {
		if offset > 0 && c.pageDelay > 0 {
			if err := sleepWithContext(ctx, c.pageDelay); err != nil {
				return c.partial(gameID, result, err)
			}
		}

		page, err := c.FetchPage(ctx, gameID, PageOptions{Limit: c.pageSize, Offset: offset})
		if err != nil {
			return c.partial(gameID, result, err)
		}
		if len(page.Players) == 0 {
			break
		}

		result.Players = append(result.Players, page.Players...)
		result.TotalCount = page.TotalCount

		c.logger.Info("fetched rankings page",
			"game_id", gameID,
			"offset", offset,
			"page_players", len(page.Players),
			"fetched", len(result.Players),
			"total_count", page.TotalCount,
		)

		if len(page.Players) < c.pageSize {
			break
		}
		if len(result.Players) >= page.TotalCount {
			break
		}
		offset += c.pageSize
	}

	if len(result.Players) > maxPlayers {
		result.Players = result.Players[:maxPlayers]
	}
	if result.TotalCount < len(result.Players) {
		result.TotalCount = len(result.Players)
	}
	return result, nil
}

// partial decides between a degraded result and a hard failure
func (c *Client) partial(gameID string, result *Page, err error) (*Page, error) {
	if len(result.Players) == 0 {
		return nil, fmt.Errorf("fetching rankings for %s: %w", gameID, err)
	}

	c.logger.Warn("rankings fetch stopped early, returning partial data",
		"game_id", gameID,
		"fetched", len(result.Players),
		"error", err,
	)
	result.Partial = true
	if result.TotalCount < len(result.Players) {
		result.TotalCount = len(result.Players)
	}
	return result, nil
}

// FetchProfile looks up a single player. An unknown username yields domain.ErrPlayerNotFound.
func (c *Client) FetchProfile(ctx context.Context, username string) (*domain.Profile, error) {
	var env envelope
	if err := c.doJSON(ctx, userRequest{Req: opGetUser, Username: username}, &env); err != nil {
		return nil, err
	}

	switch env.Res {
	case resOK:
	case resUserNotFound:
		return nil, domain.ErrPlayerNotFound
	default:
		return nil, fmt.Errorf("getuser %s: res=%s: %w", username, env.Res, domain.ErrUpstreamResponse)
	}

	raw := env.User
	if len(raw) == 0 || string(raw) == "null" {
		raw = env.Results
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, domain.ErrPlayerNotFound
	}

	var player wirePlayer
	if err := json.Unmarshal(raw, &player); err != nil {
		return nil, fmt.Errorf("decoding user %s: %v: %w", username, err, domain.ErrUpstreamResponse)
	}
	if player.Name == "" {
		player.Name = username
	}

	profile := player.toProfile()
	return &profile, nil
}

// FetchProfiles looks up every username concurrently. Results keep the
// input order and a failing lookup only affects its own entry.
func (c *Client) FetchProfiles(ctx context.Context, usernames []string) []domain.ProfileResult {
	results := make([]domain.ProfileResult, len(usernames))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxConcurrency)

	for i, username := range usernames {
		g.Go(func() error {
			result := domain.ProfileResult{Username: username}

			profile, err := c.FetchProfile(gctx, username)
			switch {
			case err == nil:
				result.Profile = profile
				result.Found = true
			case errors.Is(err, domain.ErrPlayerNotFound):
			default:
				c.logger.Warn("profile lookup failed", "username", username, "error", err)
				result.Error = err.Error()
			}

			results[i] = result
			return nil
		})
	}
	_ = g.Wait()

	found := 0
	for _, r := range results {
		if r.Found {
			found++
		}
	}
	c.logger.Info("fetched profiles", "requested", len(usernames), "found", found)

	return results
}

func (c *Client) doJSON(ctx context.Context, in any, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(c.baseURL)
	req.Header.SetContentType("application/json")
	if c.userAgent != "" {
		req.Header.SetUserAgent(c.userAgent)
	}
	req.SetBody(payload)

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	if err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx)); err != nil {
		return fmt.Errorf("%w: request failed: %v", domain.ErrUpstreamUnavailable, err)
	}

	status := resp.StatusCode()
	if status < 200 || status >= 300 {
		return fmt.Errorf("%w: status=%d body=%s", domain.ErrUpstreamUnavailable, status, truncate(string(resp.Body()), 512))
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("%w: decode response: %v", domain.ErrUpstreamResponse, err)
	}
	return nil
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}
