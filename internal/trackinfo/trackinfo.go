// Package trackinfo resolves a Rekordbox track id to display metadata via
// a short-lived HTTP request against the loopback REST endpoint the target
// application itself exposes, authenticated with a bearer token harvested
// from that same process's memory.
package trackinfo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/rkbx-osc/bridge/internal/beatkeeper"
)

const (
	defaultBaseURL  = "http://127.0.0.1:30001"
	requestTimeout  = 5 * time.Second
	userAgentHeader = "rekordbox/7.x Windows 11(64bit)"
)

// Client issues one GET per Resolve call against the sidecar's
// djmdContents endpoint. The zero value is not usable; construct with New.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a Client bound to baseURL (normally the default loopback
// address; overridable for tests).
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: requestTimeout},
	}
}

// apiResponse mirrors the sidecar's two response shapes: a successful body
// carries "item"; an in-band error carries "code" (e.g. 404) instead.
type apiResponse struct {
	Code int `json:"code"`
	Item *struct {
		Title      string `json:"Title"`
		ArtistName string `json:"ArtistName"`
		FolderPath string `json:"FolderPath"`
		FileNameL  string `json:"FileNameL"`
	} `json:"item"`
}

// Resolve fetches artist/title/folder-path for trackID. Every failure
// class named in the component design — transport error, non-2xx status,
// JSON decode error, an in-band "code" other than 200, a 404, or a missing
// "item" — is collapsed into a single non-nil error; callers are expected
// to treat all of them identically (no metadata update, no event). Each
// failure is logged once at Warn level.
func (c *Client) Resolve(trackID int32, bearer string) (info *beatkeeper.TrackInfo, err error) {
	defer func() {
		if err != nil {
			log.Warn("track info lookup failed", "track", trackID, "err", err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/api/v1/data/djmdContents/%d/", c.baseURL, trackID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("trackinfo: building request: %w", err)
	}

	req.Header.Set("User-Agent", userAgentHeader)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("trackinfo: request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("trackinfo: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("trackinfo: reading body: %w", err)
	}

	var parsed apiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("trackinfo: decoding body: %w", err)
	}

	if parsed.Code != 0 && parsed.Code != 200 {
		return nil, fmt.Errorf("trackinfo: api reported code %d", parsed.Code)
	}

	if parsed.Item == nil {
		return nil, fmt.Errorf("trackinfo: response has no item")
	}

	title := parsed.Item.Title
	if title == "" {
		title = parsed.Item.FileNameL
	}

	return &beatkeeper.TrackInfo{
		Title:      title,
		Artist:     parsed.Item.ArtistName,
		FolderPath: parsed.Item.FolderPath,
	}, nil
}
