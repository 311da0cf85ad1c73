// Package bizinfo implements the upstream client for the bizinfo.go.kr
// business-support-program announcement API.
package bizinfo

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"bizwatch/internal/domain/listing"
	"bizwatch/internal/domain/source"
)

type Config struct {
	BaseURL  string        `mapstructure:"base_url"`
	APIKey   string        `mapstructure:"api_key"`
	PageUnit int           `mapstructure:"page_unit"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

var _ source.Client = (*Client)(nil)

type Client struct {
	httpc    *http.Client
	baseURL  string
	apiKey   string
	pageUnit int
	log      *zap.Logger
}

func New(cfg Config) *Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}
	pageUnit := cfg.PageUnit
	if pageUnit <= 0 {
		pageUnit = 50
	}
	return &Client{
		httpc: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(transport),
		},
		baseURL:  cfg.BaseURL,
		apiKey:   cfg.APIKey,
		pageUnit: pageUnit,
		log:      zap.L().With(zap.String("component", "bizinfo.client")),
	}
}

func (c *Client) WithLogger(l *zap.Logger) *Client {
	if l == nil {
		return c
	}
	cp := *c
	cp.log = l.With(zap.String("component", "bizinfo.client"))
	return &cp
}

// FetchPage fetches one page of announcements. The cursor is the page
// index as an opaque token; "" means the first page. An empty page with
// an empty next cursor is end-of-stream.
func (c *Client) FetchPage(ctx context.Context, cursor string) ([]listing.Listing, string, error) {
	// A cursor this client did not mint can never start working; classify
	// it like an upstream rejection so the cycle aborts instead of
	// retrying.
	page := 1
	if cursor != "" {
		p, err := strconv.Atoi(cursor)
		if err != nil || p < 1 {
			return nil, "", fmt.Errorf("bad cursor %q: %w", cursor, source.ErrRejected)
		}
		page = p
	}

	q := url.Values{}
	q.Set("crtfcKey", c.apiKey)
	q.Set("dataType", "json")
	q.Set("pageUnit", strconv.Itoa(c.pageUnit))
	q.Set("pageIndex", strconv.Itoa(page))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, "", &source.UnavailableError{Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, "", &source.RateLimitedError{RetryAfter: retryAfter(resp)}
	case resp.StatusCode >= 500:
		return nil, "", &source.UnavailableError{Err: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode >= 400:
		return nil, "", fmt.Errorf("status %d: %w", resp.StatusCode, source.ErrRejected)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, "", &source.UnavailableError{Err: fmt.Errorf("read body: %w", err)}
	}

	var ar apiResponse
	if err := json.Unmarshal(body, &ar); err != nil {
		return nil, "", &source.UnavailableError{Err: fmt.Errorf("decode body: %w", err)}
	}

	now := time.Now().UTC()
	out := make([]listing.Listing, 0, len(ar.Items))
	for _, it := range ar.Items {
		if it.PblancID == "" {
			continue
		}
		out = append(out, listing.Listing{
			ID:          it.PblancID,
			Title:       it.PblancNm,
			Category:    it.Category,
			Agency:      it.Agency,
			Summary:     it.Summary,
			URL:         it.URL,
			PublishedAt: parsePnttm(it.CreatPnttm),
			Hash:        listing.Fingerprint(it.PblancNm, it.Summary),
			LastSeen:    now,
		})
	}

	next := ""
	if len(ar.Items) == c.pageUnit {
		next = strconv.Itoa(page + 1)
	}
	c.log.Debug("page fetched",
		zap.Int("page", page),
		zap.Int("items", len(out)),
		zap.String("next", next),
	)
	return out, next, nil
}

func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}

func parsePnttm(s string) time.Time {
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
