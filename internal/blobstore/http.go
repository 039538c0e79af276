package blobstore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// HTTPStore talks to an object server speaking plain GET/PUT/HEAD on
// {endpoint}/{bucket}/{name}. The server side is Handler.
type HTTPStore struct {
	httpClient *http.Client
	endpoint   string
	bucket     string
	token      string
	retryWait  time.Duration
}

// NewHTTPStore creates a client for bucket at endpoint. A non-empty token
// is sent as a bearer credential.
func NewHTTPStore(endpoint, bucket, token string) *HTTPStore {
	return &HTTPStore{
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		endpoint:   strings.TrimRight(endpoint, "/"),
		bucket:     bucket,
		token:      token,
		retryWait:  time.Second,
	}
}

func (s *HTTPStore) objectURL(name string) (string, error) {
	clean, err := CleanName(name)
	if err != nil {
		return "", err
	}
	segments := strings.Split(clean, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.endpoint + "/" + url.PathEscape(s.bucket) + "/" + strings.Join(segments, "/"), nil
}

func (s *HTTPStore) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	resp, err := s.do(ctx, http.MethodGet, name, nil)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return resp.Body, nil
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	default:
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("get %s returned %d: %s", name, resp.StatusCode, body)
	}
}

func (s *HTTPStore) Put(ctx context.Context, name string, r io.Reader) error {
	resp, err := s.do(ctx, http.MethodPut, name, r)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("put %s returned %d: %s", name, resp.StatusCode, body)
	}
	return nil
}

func (s *HTTPStore) Exists(ctx context.Context, name string) (bool, error) {
	resp, err := s.do(ctx, http.MethodHead, name, nil)
	if err != nil {
		return false, err
	}
	resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("head %s returned %d", name, resp.StatusCode)
	}
}

func (s *HTTPStore) Available() bool { return true }

// Ping checks that the endpoint answers for the bucket. Any response
// below 500 counts as reachable.
func (s *HTTPStore) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.endpoint+"/"+url.PathEscape(s.bucket)+"/", nil)
	if err != nil {
		return fmt.Errorf("failed to create probe request: %w", err)
	}
	s.authorize(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("storage endpoint returned %d", resp.StatusCode)
	}
	return nil
}

func (s *HTTPStore) authorize(req *http.Request) {
	req.Header.Set("User-Agent", "monty/1.0")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
}

// do executes one request, retrying once on 429/503 with backoff. A body
// that cannot be rewound is never retried.
func (s *HTTPStore) do(ctx context.Context, method, name string, body io.Reader) (*http.Response, error) {
	u, err := s.objectURL(name)
	if err != nil {
		return nil, err
	}

	attempt := func() (*http.Response, error) {
		var rc io.Reader
		if body != nil {
			// the transport closes request bodies; keep ours open for a retry
			rc = io.NopCloser(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, rc)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s request: %w", method, err)
		}
		s.authorize(req)
		if method == http.MethodPut {
			req.Header.Set("Content-Type", "application/octet-stream")
		}
		resp, err := s.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%s %s failed: %w", strings.ToLower(method), name, err)
		}
		return resp, nil
	}

	resp, err := attempt()
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode != http.StatusServiceUnavailable {
		return resp, nil
	}

	seeker, canRewind := body.(io.Seeker)
	if body != nil && !canRewind {
		return resp, nil
	}
	resp.Body.Close()

	wait := s.retryWait
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if parsed, err := strconv.Atoi(ra); err == nil {
			wait = time.Duration(parsed) * time.Second
		}
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(wait):
	}

	if seeker != nil {
		if _, err := seeker.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("failed to rewind body for %s: %w", name, err)
		}
	}
	return attempt()
}
