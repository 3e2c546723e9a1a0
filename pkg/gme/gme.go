// Package gme downloads day-ahead price archives from the Italian power
// exchange (Gestore dei Mercati Energetici).
package gme

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"cloud.google.com/go/civil"
	"github.com/levenlabs/go-lflag"

	"github.com/pungrid/pungrid/pkg/common"
	"github.com/pungrid/pungrid/pkg/log"
)

const (
	defaultAPIURL = "https://gme.mercatoelettrico.org/DesktopModules/GmeDownload/API/ExcelDownload/downloadzipfile"

	// maxArchiveSize bounds the response body. A month of hourly and
	// quarter-hourly files is a few hundred kilobytes.
	maxArchiveSize = 64 << 20
)

var (
	// ErrStatus is returned when the endpoint answers with a non-2xx status.
	ErrStatus = errors.New("unexpected gme status")
	// ErrInvalidArchive is returned when the body is not a readable ZIP.
	ErrInvalidArchive = errors.New("invalid gme archive")
)

// requestHeaders mimic the download page. The endpoint rejects requests
// without them.
func requestHeaders() http.Header {
	h := http.Header{}
	h.Set("moduleid", "12103")
	h.Set("referer", "https://gme.mercatoelettrico.org/en-us/Home/Results/Electricity/MGP/Download?valore=Prezzi")
	h.Set("sec-ch-ua-mobile", "?0")
	h.Set("sec-ch-ua-platform", "Windows")
	h.Set("sec-fetch-dest", "empty")
	h.Set("sec-fetch-mode", "cors")
	h.Set("sec-fetch-site", "same-origin")
	h.Set("sec-gpc", "1")
	h.Set("tabid", "1749")
	h.Set("userid", "-1")
	return h
}

// Client fetches price archives.
type Client struct {
	apiURL string
	client *http.Client
}

// New returns a client for apiURL.
func New(apiURL string, timeout time.Duration) *Client {
	return &Client{
		apiURL: apiURL,
		client: common.HTTPClientWithHeaders(timeout, requestHeaders()),
	}
}

// Configured registers the gme flags and returns a client bound to them.
func Configured() *Client {
	c := &Client{}
	apiURL := lflag.String("gme-api-url", defaultAPIURL, "URL of the GME zip download endpoint")
	timeout := lflag.Duration("gme-timeout", 30*time.Second, "Timeout for a single archive download")

	lflag.Do(func() {
		*c = *New(*apiURL, *timeout)
	})
	return c
}

// Validate ensures the configuration is valid.
func (c *Client) Validate() error {
	if c.apiURL == "" {
		return fmt.Errorf("gme-api-url is required")
	}
	if _, err := url.Parse(c.apiURL); err != nil {
		return fmt.Errorf("failed to parse gme url (%s): %w", c.apiURL, err)
	}
	return nil
}

// Window returns the inclusive date range to download on today. It starts on
// the first of the month, or three days earlier during the first days of the
// month so the averages are not computed from too few days, and it ends
// tomorrow so tomorrow's published prices are included.
func Window(today civil.Date, actualDataOnly bool) (civil.Date, civil.Date) {
	start := civil.Date{Year: today.Year, Month: today.Month, Day: 1}
	if !actualDataOnly && today.Day < 4 {
		start = start.AddDays(-3)
	}
	return start, today.AddDays(1)
}

func formatDate(d civil.Date) string {
	return fmt.Sprintf("%04d%02d%02d", d.Year, int(d.Month), d.Day)
}

// Download fetches the MGP price archive for [start, end].
func (c *Client) Download(ctx context.Context, start, end civil.Date) (*zip.Reader, error) {
	u, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid api url: %w", err)
	}

	params := url.Values{}
	params.Set("DataInizio", formatDate(start))
	params.Set("DataFine", formatDate(end))
	params.Set("Date", formatDate(end))
	params.Set("Mercato", "MGP")
	params.Set("Settore", "Prezzi")
	params.Set("FiltroDate", "InizioFine")
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	log.Ctx(ctx).DebugContext(ctx, "downloading gme archive", slog.String("url", u.String()))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download archive: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxArchiveSize))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read body: %w", ErrInvalidArchive, err)
	}
	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		log.Ctx(ctx).ErrorContext(
			ctx,
			"downloaded archive is not a zip",
			slog.String("url", u.String()),
			slog.Int("length", len(body)),
			slog.Int("status", resp.StatusCode),
		)
		return nil, fmt.Errorf("%w: %w", ErrInvalidArchive, err)
	}

	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	log.Ctx(ctx).DebugContext(
		ctx,
		"downloaded gme archive",
		slog.Int("files", len(names)),
		slog.Any("names", names),
	)
	return zr, nil
}
