// Package source provides implementations of catalog.Source.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gocircum/nordconnect/core/catalog"
	"github.com/gocircum/nordconnect/pkg/logging"
)

const (
	defaultFetchTimeout = 60 * time.Second
	defaultMaxBytes     = 64 * 1024 * 1024
	userAgent           = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"
)

// HTTP downloads the server list from the API. A successful download is written
// to CachePath (when set) so File can serve it when the API is unreachable.
type HTTP struct {
	URL       string
	CachePath string
	MaxBytes  int64
	Client    *http.Client
	logger    logging.Logger
}

// NewHTTP creates an HTTP source.
func NewHTTP(url string, timeout time.Duration, cachePath string, logger logging.Logger) *HTTP {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &HTTP{
		URL:       url,
		CachePath: cachePath,
		MaxBytes:  defaultMaxBytes,
		Client:    &http.Client{Timeout: timeout},
		logger:    logging.ForComponent(logger, "source.http"),
	}
}

// Fetch downloads and decodes the list.
func (h *HTTP) Fetch(ctx context.Context) ([]catalog.RawServer, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid server list url %q: %w", h.URL, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	h.logger.Debug("Downloading server list", "url", h.URL)
	resp, err := h.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download server list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server list request failed with status: %s", resp.Status)
	}

	maxBytes := h.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read server list: %w", err)
	}
	if int64(len(body)) > maxBytes {
		return nil, fmt.Errorf("server list exceeds %d bytes", maxBytes)
	}

	servers, err := decode(body)
	if err != nil {
		return nil, err
	}

	if h.CachePath != "" {
		if err := writeCache(h.CachePath, body); err != nil {
			h.logger.Warn("Failed to cache server list", "path", h.CachePath, "error", err)
		}
	}
	h.logger.Info("Server list downloaded", "servers", len(servers))
	return servers, nil
}

func decode(body []byte) ([]catalog.RawServer, error) {
	var servers []catalog.RawServer
	if err := json.Unmarshal(body, &servers); err != nil {
		return nil, fmt.Errorf("malformed server list: %w", err)
	}
	return servers, nil
}

// writeCache replaces path atomically.
func writeCache(path string, body []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".servers-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
