package musicbrainz

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"monty/internal/lookup"
)

const (
	DefaultAPIURL    = "https://musicbrainz.org/ws/2"
	DefaultUserAgent = "monty/1.0"
)

// Client is a MusicBrainz Web API client that implements lookup.Service.
type Client struct {
	httpClient  *http.Client
	apiURL      string
	userAgent   string
	mu          sync.Mutex
	lastRequest time.Time
}

// New creates a new MusicBrainz client. Empty arguments use the defaults.
func New(apiURL, userAgent string) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		apiURL:     apiURL,
		userAgent:  userAgent,
	}
}

var _ lookup.Service = (*Client)(nil)

func (c *Client) Name() string { return "musicbrainz" }

// SearchArtists queries the artist search API. Results keep the service's ranking.
func (c *Client) SearchArtists(ctx context.Context, name string) ([]lookup.ArtistCandidate, error) {
	var resp artistSearchResponse
	q := url.Values{"query": {name}, "fmt": {"json"}, "limit": {"5"}}
	if err := c.get(ctx, "/artist?"+q.Encode(), &resp); err != nil {
		return nil, err
	}

	out := make([]lookup.ArtistCandidate, 0, len(resp.Artists))
	for _, a := range resp.Artists {
		out = append(out, lookup.ArtistCandidate{ID: a.ID, Name: a.Name, Score: int(a.Score)})
	}
	return out, nil
}

// SearchReleaseGroups queries the release-group search API. Releases listed
// under a group carry no credit of their own in search results, so they
// inherit the group's artist credit.
func (c *Client) SearchReleaseGroups(ctx context.Context, query string) ([]lookup.ReleaseGroupCandidate, error) {
	var resp releaseGroupSearchResponse
	q := url.Values{"query": {query}, "fmt": {"json"}, "limit": {"10"}}
	if err := c.get(ctx, "/release-group?"+q.Encode(), &resp); err != nil {
		return nil, err
	}

	out := make([]lookup.ReleaseGroupCandidate, 0, len(resp.ReleaseGroups))
	for _, g := range resp.ReleaseGroups {
		groupCredit := creditIDs(g.ArtistCredit)
		cand := lookup.ReleaseGroupCandidate{ID: g.ID, Title: g.Title, Score: int(g.Score)}
		for _, rel := range g.Releases {
			ids := creditIDs(rel.ArtistCredit)
			if len(ids) == 0 {
				ids = groupCredit
			}
			cand.Releases = append(cand.Releases, lookup.ReleaseCandidate{ID: rel.ID, Title: rel.Title, ArtistIDs: ids})
		}
		out = append(out, cand)
	}
	return out, nil
}

// ReleaseTracks returns the tracks of the release's first medium.
func (c *Client) ReleaseTracks(ctx context.Context, releaseID string) ([]lookup.ReleaseTrack, error) {
	var resp releaseResponse
	q := url.Values{"inc": {"recordings"}, "fmt": {"json"}}
	if err := c.get(ctx, "/release/"+url.PathEscape(releaseID)+"?"+q.Encode(), &resp); err != nil {
		return nil, err
	}

	if len(resp.Media) == 0 {
		return nil, fmt.Errorf("release %s has no media", releaseID)
	}

	medium := resp.Media[0]
	tracks := make([]lookup.ReleaseTrack, 0, len(medium.Tracks))
	for _, t := range medium.Tracks {
		tracks = append(tracks, lookup.ReleaseTrack{
			Position:    t.Position,
			RecordingID: t.Recording.ID,
			Title:       t.Title,
		})
	}
	return tracks, nil
}

func (c *Client) get(ctx context.Context, path string, v interface{}) error {
	c.rateLimit()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create musicbrainz request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.doWithRetry(ctx, req)
	if err != nil {
		return fmt.Errorf("musicbrainz request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("musicbrainz returned %d: %s", resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode musicbrainz response: %w", err)
	}
	return nil
}

// rateLimit enforces MusicBrainz's 1 request/second limit.
func (c *Client) rateLimit() {
	c.mu.Lock()
	elapsed := time.Since(c.lastRequest)
	c.mu.Unlock()

	if elapsed < time.Second {
		time.Sleep(time.Second - elapsed)
	}

	c.mu.Lock()
	c.lastRequest = time.Now()
	c.mu.Unlock()
}

// doWithRetry executes the request, retrying on 429/503 with backoff.
func (c *Client) doWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		resp.Body.Close()
		retryAfter := 2
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if parsed, err := strconv.Atoi(ra); err == nil {
				retryAfter = parsed
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(retryAfter) * time.Second):
		}

		c.mu.Lock()
		c.lastRequest = time.Now()
		c.mu.Unlock()
		retry := req.Clone(ctx)
		return c.httpClient.Do(retry)
	}

	return resp, nil
}

func creditIDs(credits []artistCredit) []string {
	var ids []string
	for _, ac := range credits {
		if ac.Artist.ID != "" {
			ids = append(ids, ac.Artist.ID)
		}
	}
	return ids
}

// MusicBrainz API response types

// score accepts both the numeric and the older quoted form.
type score int

func (s *score) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*s = 0
		return nil
	}
	n, err := strconv.Atoi(string(data))
	if err != nil {
		return fmt.Errorf("invalid score %s: %w", data, err)
	}
	*s = score(n)
	return nil
}

type artistSearchResponse struct {
	Artists []artist `json:"artists"`
}

type artist struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Score score  `json:"score"`
}

type releaseGroupSearchResponse struct {
	ReleaseGroups []releaseGroup `json:"release-groups"`
}

type releaseGroup struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Score        score          `json:"score"`
	ArtistCredit []artistCredit `json:"artist-credit"`
	Releases     []release      `json:"releases"`
}

type artistCredit struct {
	Artist artistInfo `json:"artist"`
}

type artistInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type release struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	ArtistCredit []artistCredit `json:"artist-credit"`
}

type releaseResponse struct {
	ID    string   `json:"id"`
	Media []medium `json:"media"`
}

type medium struct {
	Position int     `json:"position"`
	Tracks   []track `json:"tracks"`
}

type track struct {
	Position  int       `json:"position"`
	Number    string    `json:"number"`
	Title     string    `json:"title"`
	Recording recording `json:"recording"`
}

type recording struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}
