// Package dataset acquires the reference dataset and checks its integrity.
package dataset

import (
	"context"
	"crypto/md5"  //nolint:gosec // integrity fingerprint, not authentication
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/singleflight"

	"loadcheck/internal/domain"
)

// Fetcher downloads datasets into a local cache. Concurrent runs targeting the
// same cache path share one download; a partial download is never visible at
// the cache path because data lands in a temp file first and is renamed in.
type Fetcher struct {
	client  *http.Client
	timeout time.Duration
	retries int
	logger  *slog.Logger

	group singleflight.Group
}

// NewFetcher creates a fetcher with a bounded per-download timeout and the
// given number of transient-failure retries.
func NewFetcher(timeout time.Duration, retries int, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	if retries < 0 {
		retries = 0
	}
	return &Fetcher{
		client:  &http.Client{},
		timeout: timeout,
		retries: retries,
		logger:  logger,
	}
}

// EnsureCached makes sure spec.CachePath holds the dataset, downloading it if
// absent. It is idempotent: once the cache file exists no network call is
// made. The returned bool reports whether the cache was already populated.
func (f *Fetcher) EnsureCached(ctx context.Context, spec domain.DatasetSpec) (bool, error) {
	if _, err := os.Stat(spec.CachePath); err == nil {
		f.logger.Debug("dataset cache hit", "path", spec.CachePath)
		return true, nil
	}

	_, err, _ := f.group.Do(spec.CachePath, func() (interface{}, error) {
		// Re-check under the flight: another run may have just finished.
		if _, err := os.Stat(spec.CachePath); err == nil {
			return nil, nil
		}
		return nil, f.download(ctx, spec)
	})
	if err != nil {
		return false, domain.ErrFetch("fetch %s: %v", spec.URL, err)
	}
	return false, nil
}

func (f *Fetcher) download(ctx context.Context, spec domain.DatasetSpec) error {
	if err := os.MkdirAll(filepath.Dir(spec.CachePath), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	backoff := retry.WithMaxRetries(uint64(f.retries), retry.NewExponential(500*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := f.downloadOnce(ctx, spec)
		if err != nil {
			f.logger.Warn("dataset download attempt failed", "url", spec.URL, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
}

func (f *Fetcher) downloadOnce(ctx context.Context, spec domain.DatasetSpec) error {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, spec.URL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: HTTP %d", spec.URL, resp.StatusCode)
	}

	// Download to a unique temp file in the same directory, then rename into
	// place so a crashed or concurrent run never exposes a partial file.
	tmp := fmt.Sprintf("%s.%s.part", spec.CachePath, uuid.NewString())
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644) //nolint:gosec
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	n, err := io.Copy(out, resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, spec.CachePath); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename into cache: %w", err)
	}

	f.logger.Info("dataset downloaded", "url", spec.URL, "path", spec.CachePath, "bytes", n)
	return nil
}

// VerifyIntegrity streams the cached file through the configured hash and
// compares the result to the expected digest, case-insensitively. It returns
// the match outcome and the actual digest for diagnostics.
func VerifyIntegrity(spec domain.DatasetSpec) (bool, string, error) {
	h, err := newHash(spec.Algo)
	if err != nil {
		return false, "", err
	}

	f, err := os.Open(spec.CachePath) //nolint:gosec // path comes from config
	if err != nil {
		return false, "", domain.ErrFetch("open cached dataset: %v", err)
	}
	defer f.Close() //nolint:errcheck

	if _, err := io.Copy(h, f); err != nil {
		return false, "", domain.ErrFetch("read cached dataset: %v", err)
	}

	actual := hex.EncodeToString(h.Sum(nil))
	return actual == domain.NormalizeDigest(spec.Digest), actual, nil
}

func newHash(algo domain.DigestAlgo) (hash.Hash, error) {
	switch algo {
	case domain.DigestMD5:
		return md5.New(), nil //nolint:gosec
	case domain.DigestSHA256:
		return sha256.New(), nil
	default:
		return nil, fmt.Errorf("unsupported digest algorithm %q", algo)
	}
}
