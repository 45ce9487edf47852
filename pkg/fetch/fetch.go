// Package fetch downloads and caches the external data files the server
// bootstraps from: the GeoLite2 database and the land-outline GeoJSON.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

var ErrNotFound = errors.New("file not found on server")

type progressWriter struct {
	io.Writer
	total uint64
	last  uint64
	label string
	log   zerolog.Logger
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.Writer.Write(p)
	pw.total += uint64(n)
	if pw.total-pw.last > 5*1024*1024 { // Log every 5MB
		pw.log.Info().Str("file", pw.label).Uint64("mb", pw.total/1024/1024).Msg("downloading")
		pw.last = pw.total
	}
	return n, err
}

// Fetcher downloads files with an on-disk cache. The zero Dir disables
// caching and streams every request.
type Fetcher struct {
	Dir string
	log zerolog.Logger
}

// New returns a fetcher caching into dir. dir is created on first use.
func New(dir string, log zerolog.Logger) *Fetcher {
	return &Fetcher{Dir: dir, log: log}
}

// DownloadFile downloads a URL to path, writing a temp file in the same
// directory and renaming so a partial download never lands at path.
func (f *Fetcher) DownloadFile(ctx context.Context, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			f.log.Warn().Err(err).Msg("error closing response body")
		}
	}()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status: %s", resp.Status)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmpFile.Name()
	defer func() {
		if err := os.Remove(tmpName); err != nil && !os.IsNotExist(err) {
			f.log.Warn().Err(err).Str("file", tmpName).Msg("error removing temp file")
		}
	}()

	pw := &progressWriter{Writer: tmpFile, label: filepath.Base(path), log: f.log}
	if _, err := io.Copy(pw, resp.Body); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// CacheFileName returns the local filename a URL caches under.
func CacheFileName(url string) string {
	parts := strings.Split(url, "/")
	return parts[len(parts)-1]
}

// CachedPath returns the cache path for url and whether it already exists.
func (f *Fetcher) CachedPath(url string) (string, bool) {
	if f.Dir == "" {
		return "", false
	}
	path := filepath.Join(f.Dir, CacheFileName(url))
	_, err := os.Stat(path)
	return path, err == nil
}

// Open returns a reader for the URL's content, downloading into the cache on
// a miss. With no cache dir the response body streams straight through.
func (f *Fetcher) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	if f.Dir != "" {
		if err := os.MkdirAll(f.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cache dir: %w", err)
		}
		localPath := filepath.Join(f.Dir, CacheFileName(url))

		if _, err := os.Stat(localPath); os.IsNotExist(err) {
			f.log.Info().Str("url", url).Msg("downloading")
			if err := f.DownloadFile(ctx, url, localPath); err != nil {
				return nil, err
			}
		} else {
			f.log.Debug().Str("file", localPath).Msg("using cached file")
		}
		file, err := os.Open(localPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open cache: %w", err)
		}
		return file, nil
	}

	f.log.Info().Str("url", url).Msg("streaming")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		if err := resp.Body.Close(); err != nil {
			f.log.Warn().Err(err).Msg("error closing response body")
		}
		if resp.StatusCode == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("bad status: %s", resp.Status)
	}
	return resp.Body, nil
}
