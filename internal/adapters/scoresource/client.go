package scoresource

import (
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

	"github.com/okian/vsrank/internal/domain/model"
	"github.com/okian/vsrank/pkg/metrics"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	defaultRecentLimit = 10
	defaultHTTPTimeout = 8 * time.Second
)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithRecentLimit caps how many recent scores are requested per lookup.
func WithRecentLimit(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.limit = n
		}
	}
}

// WithHTTPClient replaces the authenticated HTTP client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// Client talks to the osu! v2 web API.
type Client struct {
	base  string
	limit int
	http  *http.Client
}

// NewClient returns a Client authenticating with the client-credentials
// grant against tokenURL.
func NewClient(ctx context.Context, baseURL, tokenURL, clientID, clientSecret string, opts ...ClientOption) *Client {
	cc := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		Scopes:       []string{"public"},
	}
	h := cc.Client(ctx)
	h.Timeout = defaultHTTPTimeout

	c := &Client{
		base:  strings.TrimRight(baseURL, "/"),
		limit: defaultRecentLimit,
		http:  h,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type apiScore struct {
	BeatmapID int64 `json:"beatmap_id"`
	Beatmap   *struct {
		ID int64 `json:"id"`
	} `json:"beatmap"`
	Score      int64     `json:"score"`
	TotalScore int64     `json:"total_score"`
	EndedAt    time.Time `json:"ended_at"`
	CreatedAt  time.Time `json:"created_at"`
}

func (s apiScore) toRecent() model.RecentScore {
	rs := model.RecentScore{TaskID: s.BeatmapID, Value: float64(s.TotalScore), At: s.EndedAt}
	if rs.TaskID == 0 && s.Beatmap != nil {
		rs.TaskID = s.Beatmap.ID
	}
	if rs.Value == 0 {
		rs.Value = float64(s.Score)
	}
	if rs.At.IsZero() {
		rs.At = s.CreatedAt
	}
	return rs
}

type apiBeatmap struct {
	ID          int64  `json:"id"`
	Mode        string `json:"mode"`
	TotalLength int64  `json:"total_length"`
}

// RecentScores implements Source.
func (c *Client) RecentScores(ctx context.Context, p model.ParticipantID, mode model.Mode) ([]model.RecentScore, error) {
	q := url.Values{}
	q.Set("mode", mode.String())
	q.Set("limit", strconv.Itoa(c.limit))
	q.Set("include_fails", "0")
	endpoint := fmt.Sprintf("%s/users/%d/scores/recent?%s", c.base, p, q.Encode())

	var scores []apiScore
	if err := c.get(ctx, endpoint, &scores); err != nil {
		return nil, err
	}
	out := make([]model.RecentScore, len(scores))
	for i, s := range scores {
		out[i] = s.toRecent()
	}
	return out, nil
}

// Beatmap implements BeatmapResolver.
func (c *Client) Beatmap(ctx context.Context, id int64) (model.Task, error) {
	var bm apiBeatmap
	err := c.get(ctx, fmt.Sprintf("%s/beatmaps/%d", c.base, id), &bm)
	if errors.Is(err, ErrNotFound) {
		return model.Task{}, fmt.Errorf("%w: %d", ErrBeatmapNotFound, id)
	}
	if err != nil {
		return model.Task{}, err
	}
	mode, err := model.ParseMode(bm.Mode)
	if err != nil {
		return model.Task{}, err
	}
	return model.Task{ID: bm.ID, Mode: mode, Length: time.Duration(bm.TotalLength) * time.Second}, nil
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	start := time.Now()
	defer func() {
		metrics.RecordScoreSourceLatency(float64(time.Since(start).Milliseconds()))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s: %s", ErrUpstream, resp.Status, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode: %w", ErrUpstream, err)
	}
	return nil
}
