package simulation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/tourney/internal/domain/match"
	"github.com/okian/tourney/internal/domain/model"
	"github.com/okian/tourney/internal/domain/types"
	"github.com/okian/tourney/pkg/logger"
)

const (
	maxRetries     = 3
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// APIError is a non-success response from the service.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d %s: %s", e.Status, e.Code, e.Message)
}

// IsCode reports whether err is an APIError carrying code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// Client talks to the tournament service over HTTP. Requests are paced by a
// token bucket and 429 responses are retried with backoff.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	log         logger.Logger
	verbose     bool
}

// NewClient returns a client for cfg.BaseURL.
func NewClient(cfg *Config, log logger.Logger) *Client {
	burst := int(cfg.RPS)
	if burst < 1 {
		burst = 1
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RPS), burst),
		log:         log,
		verbose:     cfg.Verbose,
	}
}

// roundResponse mirrors the body of start and next-round calls.
type roundResponse struct {
	Tournament model.Tournament `json:"tournament"`
	Matches    []model.Match    `json:"matches"`
}

type ratingResponse struct {
	Profile model.Profile `json:"profile"`
	Rating  model.Rating  `json:"rating"`
}

type reportRequest struct {
	Winner      string       `json:"winner"`
	Games       []model.Game `json:"games,omitempty"`
	Player1Deck string       `json:"player1_deck,omitempty"`
	Player2Deck string       `json:"player2_deck,omitempty"`
	ReportID    string       `json:"report_id,omitempty"`
}

// Health checks GET /healthz.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

func (c *Client) CreateTournament(ctx context.Context, name, format string, maxPlayers, rounds int) (model.Tournament, error) {
	var t model.Tournament
	body := map[string]any{"name": name, "format": format, "max_players": maxPlayers, "rounds": rounds}
	err := c.do(ctx, http.MethodPost, "/tournaments", body, &t)
	return t, err
}

func (c *Client) Join(ctx context.Context, tournamentID, playerID string) error {
	return c.do(ctx, http.MethodPost, "/tournaments/"+url.PathEscape(tournamentID)+"/participants",
		map[string]string{"player_id": playerID}, nil)
}

func (c *Client) Start(ctx context.Context, tournamentID string) (roundResponse, error) {
	var out roundResponse
	err := c.do(ctx, http.MethodPost, "/tournaments/"+url.PathEscape(tournamentID)+"/start", nil, &out)
	return out, err
}

func (c *Client) NextRound(ctx context.Context, tournamentID string) (roundResponse, error) {
	var out roundResponse
	err := c.do(ctx, http.MethodPost, "/tournaments/"+url.PathEscape(tournamentID)+"/rounds", nil, &out)
	return out, err
}

func (c *Client) Report(ctx context.Context, matchID string, req reportRequest) error {
	return c.do(ctx, http.MethodPost, "/matches/"+url.PathEscape(matchID)+"/result", req, nil)
}

func (c *Client) Matches(ctx context.Context, tournamentID string) ([]model.Match, error) {
	var out []model.Match
	err := c.do(ctx, http.MethodGet, "/tournaments/"+url.PathEscape(tournamentID)+"/matches", nil, &out)
	return out, err
}

func (c *Client) Standings(ctx context.Context, tournamentID string) ([]model.StandingRow, error) {
	var out []model.StandingRow
	err := c.do(ctx, http.MethodGet, "/tournaments/"+url.PathEscape(tournamentID)+"/standings", nil, &out)
	return out, err
}

func (c *Client) Analytics(ctx context.Context, tournamentID string) (match.Analytics, error) {
	var out match.Analytics
	err := c.do(ctx, http.MethodGet, "/tournaments/"+url.PathEscape(tournamentID)+"/analytics", nil, &out)
	return out, err
}

func (c *Client) Rating(ctx context.Context, playerID, format string) (ratingResponse, error) {
	var out ratingResponse
	path := "/players/" + url.PathEscape(playerID) + "/rating"
	if format != "" {
		path += "?format=" + url.QueryEscape(format)
	}
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) Leaderboard(ctx context.Context, limit int) ([]types.Entry, error) {
	var out []types.Entry
	err := c.do(ctx, http.MethodGet, "/leaderboard?limit="+strconv.Itoa(limit), nil, &out)
	return out, err
}

// do sends one request and decodes a 2xx body into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("marshal %s %s: %w", method, path, err)
		}
	}

	backoff := initialBackoff
	for attempt := 0; ; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		status, body, err := c.send(ctx, method, path, payload)
		if err != nil {
			return err
		}
		if c.verbose {
			c.log.Debug(ctx, "request", logger.String("method", method), logger.String("path", path), logger.Int("status", status))
		}

		switch {
		case status >= 200 && status < 300:
			if out == nil || len(body) == 0 {
				return nil
			}
			if err := json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("decode %s %s: %w", method, path, err)
			}
			return nil
		case status == http.StatusTooManyRequests && attempt < maxRetries:
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}

		apiErr := &APIError{Status: status}
		if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Code == "" {
			apiErr.Code = http.StatusText(status)
			apiErr.Message = strings.TrimSpace(string(body))
		}
		return fmt.Errorf("%s %s: %w", method, path, apiErr)
	}
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read %s %s: %w", method, path, err)
	}
	return resp.StatusCode, body, nil
}
