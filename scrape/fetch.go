// Package scrape turns detail pages of the orientation guide site into
// validated specialization records: fetch, label-based field extraction,
// score normalization, and record assembly.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
)

const (
	detailPath = "/ar/dynamique/filiere.php"
	scoresPath = "/ar/dynamique/values.php"

	// The site serves differently to non-browser agents, so requests carry
	// a desktop browser identity.
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

	// maxBodySize caps response reads; detail pages are well under this.
	maxBodySize = 4 << 20
)

// DefaultBaseURL is the production orientation guide site.
const DefaultBaseURL = "https://guide-orientation.rnu.tn"

// Fetcher retrieves detail pages and score fragments for specialization
// ids. It performs exactly one network call per invocation; retry policy
// lives with the caller.
type Fetcher struct {
	client  *http.Client
	baseURL string
}

// NewFetcher creates a fetcher against baseURL with the given per-request
// timeout.
func NewFetcher(baseURL string, timeout time.Duration) *Fetcher {
	return &Fetcher{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// DetailURL returns the detail-page address for an internal id.
func (f *Fetcher) DetailURL(id string) string {
	return fmt.Sprintf("%s%s?id=%s", f.baseURL, detailPath, url.QueryEscape(id))
}

// ScoresURL returns the historical-scores endpoint address for an internal
// id.
func (f *Fetcher) ScoresURL(id string) string {
	return fmt.Sprintf("%s%s?id=%s", f.baseURL, scoresPath, url.QueryEscape(id))
}

// FetchDetail retrieves and parses the detail page for an internal id.
func (f *Fetcher) FetchDetail(ctx context.Context, id string) (*goquery.Document, error) {
	body, err := f.get(ctx, f.DetailURL(id))
	if err != nil {
		return nil, err
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	return doc, nil
}

// FetchScores retrieves the raw historical-scores payload for an internal
// id. The payload is slash-delimited year/score text.
func (f *Fetcher) FetchScores(ctx context.Context, id string) (string, error) {
	body, err := f.get(ctx, f.ScoresURL(id))
	if err != nil {
		return "", err
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, maxBodySize))
	if err != nil {
		return "", &RequestError{URL: f.ScoresURL(id), Err: err}
	}
	return string(data), nil
}

// get performs one GET and classifies failures into the typed taxonomy.
func (f *Fetcher) get(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &RequestError{URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ar,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, &RequestError{URL: rawURL, Timeout: true, Err: err}
		}
		return nil, &RequestError{URL: rawURL, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		log.Debug().Str("url", rawURL).Int("status", resp.StatusCode).Msg("Unexpected HTTP status")
		return nil, &RequestError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	return resp.Body, nil
}

// isTimeout reports whether a transport error was a deadline expiry.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
