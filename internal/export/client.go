// Package export retrieves event archives from the Amplitude Export API and
// unpacks them into line-delimited JSON files.
package export

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/ampship/ampship/internal/domain"
)

// Export API base URLs per data residency region.
const (
	USBaseURL = "https://amplitude.com"
	EUBaseURL = "https://analytics.eu.amplitude.com"
)

// hourLayout is the Export API's range format, e.g. "20240101T00".
const hourLayout = "20060102T15"

// HTTPClient abstracts HTTP request execution for testing and custom
// transports. The standard *http.Client satisfies this interface.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client downloads export archives over the Export API.
type Client struct {
	client    HTTPClient
	baseURL   string
	apiKey    string
	secretKey string
	logger    zerolog.Logger
}

// NewClient creates an Export API client. baseURL is USBaseURL or EUBaseURL
// (or a test server).
func NewClient(client HTTPClient, baseURL, apiKey, secretKey string, logger zerolog.Logger) *Client {
	return &Client{
		client:    client,
		baseURL:   baseURL,
		apiKey:    apiKey,
		secretKey: secretKey,
		logger:    logger,
	}
}

// ValidateRange checks that start and end use the YYYYMMDDTHH layout and
// start does not follow end.
func ValidateRange(start, end string) error {
	s, err := time.Parse(hourLayout, start)
	if err != nil {
		return fmt.Errorf("start %q: want YYYYMMDDTHH: %w", start, err)
	}
	e, err := time.Parse(hourLayout, end)
	if err != nil {
		return fmt.Errorf("end %q: want YYYYMMDDTHH: %w", end, err)
	}
	if s.After(e) {
		return fmt.Errorf("start %s is after end %s", start, end)
	}
	return nil
}

// Download fetches the archive for [start, end] and spools it to a temp
// file, returning its path. The caller removes the file when done. Export
// errors the API documents map to domain sentinels.
func (c *Client) Download(ctx context.Context, start, end string) (string, error) {
	if err := ValidateRange(start, end); err != nil {
		return "", err
	}

	u := fmt.Sprintf("%s/api/2/export?start=%s&end=%s",
		c.baseURL, url.QueryEscape(start), url.QueryEscape(end))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.apiKey, c.secretKey)

	c.logger.Info().Str("start", start).Str("end", end).Msg("exporting events")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("export request: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp("", "ampship-export-*.zip")
	if err != nil {
		return "", fmt.Errorf("spool archive: %w", err)
	}

	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("spool archive: %w", err)
	}

	c.logger.Info().Int64("bytes", n).Str("archive", tmp.Name()).Msg("archive downloaded")
	return tmp.Name(), nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode/100 == 2 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))

	switch resp.StatusCode {
	case http.StatusBadRequest:
		return fmt.Errorf("%w (status 400): %s", domain.ErrExportTooLarge, string(body))
	case http.StatusNotFound:
		return fmt.Errorf("%w (status 404): %s", domain.ErrExportNoData, string(body))
	case http.StatusGatewayTimeout:
		return fmt.Errorf("%w (status 504): %s", domain.ErrExportTimeout, string(body))
	default:
		return fmt.Errorf("export API returned %d: %s", resp.StatusCode, string(body))
	}
}
