package dataset

import (
	"context"
	"crypto/md5" //nolint:gosec
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"loadcheck/internal/domain"
)

const csvBody = "id,name\n1,alpha\n2,beta\n"

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s)) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

func newCSVServer(t *testing.T, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(csvBody))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testSpec(t *testing.T, url string) domain.DatasetSpec {
	t.Helper()
	return domain.DatasetSpec{
		URL:       url,
		CachePath: filepath.Join(t.TempDir(), "data.csv"),
		Digest:    md5Hex(csvBody),
		Algo:      domain.DigestMD5,
	}
}

func TestEnsureCached_DownloadsOnce(t *testing.T) {
	var hits atomic.Int64
	srv := newCSVServer(t, &hits)
	f := NewFetcher(5*time.Second, 0, nil)
	spec := testSpec(t, srv.URL)

	cached, err := f.EnsureCached(context.Background(), spec)
	if err != nil {
		t.Fatalf("EnsureCached: %v", err)
	}
	if cached {
		t.Error("first call should report a cache miss")
	}

	// Second call must be a no-op with zero network calls.
	cached, err = f.EnsureCached(context.Background(), spec)
	if err != nil {
		t.Fatalf("EnsureCached (cached): %v", err)
	}
	if !cached {
		t.Error("second call should report a cache hit")
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("server hits = %d, want 1", got)
	}

	data, err := os.ReadFile(spec.CachePath)
	if err != nil {
		t.Fatalf("read cache: %v", err)
	}
	if string(data) != csvBody {
		t.Errorf("cache content = %q, want %q", data, csvBody)
	}
}

func TestEnsureCached_Concurrent(t *testing.T) {
	var hits atomic.Int64
	srv := newCSVServer(t, &hits)
	f := NewFetcher(5*time.Second, 0, nil)
	spec := testSpec(t, srv.URL)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.EnsureCached(context.Background(), spec)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("goroutine %d: %v", i, err)
		}
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("server hits = %d, want 1 (singleflight)", got)
	}
	// No stray partial files left behind.
	entries, err := os.ReadDir(filepath.Dir(spec.CachePath))
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".part") {
			t.Errorf("leftover partial file %s", e.Name())
		}
	}
}

func TestEnsureCached_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := NewFetcher(5*time.Second, 1, nil)
	spec := testSpec(t, srv.URL)

	_, err := f.EnsureCached(context.Background(), spec)
	if err == nil {
		t.Fatal("expected error from failing server")
	}
	var fe *domain.FetchError
	if !errors.As(err, &fe) {
		t.Errorf("error type = %T, want *domain.FetchError", err)
	}
	if _, err := os.Stat(spec.CachePath); !os.IsNotExist(err) {
		t.Error("cache path should not exist after a failed download")
	}
}

func TestEnsureCached_RetriesTransientFailure(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			http.Error(w, "transient", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(csvBody))
	}))
	defer srv.Close()

	f := NewFetcher(5*time.Second, 3, nil)
	spec := testSpec(t, srv.URL)

	if _, err := f.EnsureCached(context.Background(), spec); err != nil {
		t.Fatalf("EnsureCached should succeed after retry: %v", err)
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("server hits = %d, want 2", got)
	}
}

func TestVerifyIntegrity_Match(t *testing.T) {
	spec := testSpec(t, "unused")
	if err := os.WriteFile(spec.CachePath, []byte(csvBody), 0o644); err != nil {
		t.Fatalf("write cache: %v", err)
	}

	ok, actual, err := VerifyIntegrity(spec)
	if err != nil {
		t.Fatalf("VerifyIntegrity: %v", err)
	}
	if !ok {
		t.Errorf("digest should match, actual %s", actual)
	}
}

func TestVerifyIntegrity_CaseInsensitive(t *testing.T) {
	spec := testSpec(t, "unused")
	spec.Digest = strings.ToUpper(spec.Digest)
	if err := os.WriteFile(spec.CachePath, []byte(csvBody), 0o644); err != nil {
		t.Fatalf("write cache: %v", err)
	}

	ok, _, err := VerifyIntegrity(spec)
	if err != nil {
		t.Fatalf("VerifyIntegrity: %v", err)
	}
	if !ok {
		t.Error("uppercase expected digest should still match")
	}
}

func TestVerifyIntegrity_FlippedByte(t *testing.T) {
	spec := testSpec(t, "unused")
	corrupted := []byte(csvBody)
	corrupted[0] ^= 0x01
	if err := os.WriteFile(spec.CachePath, corrupted, 0o644); err != nil {
		t.Fatalf("write cache: %v", err)
	}

	ok, actual, err := VerifyIntegrity(spec)
	if err != nil {
		t.Fatalf("VerifyIntegrity: %v", err)
	}
	if ok {
		t.Error("corrupted file should not match")
	}
	if actual == domain.NormalizeDigest(spec.Digest) {
		t.Error("actual digest should differ from expected")
	}
}

func TestVerifyIntegrity_MissingFile(t *testing.T) {
	spec := testSpec(t, "unused")
	_, _, err := VerifyIntegrity(spec)
	if err == nil {
		t.Fatal("expected error for missing cache file")
	}
}

func TestVerifyIntegrity_UnknownAlgo(t *testing.T) {
	spec := testSpec(t, "unused")
	spec.Algo = "crc32"
	if err := os.WriteFile(spec.CachePath, []byte(csvBody), 0o644); err != nil {
		t.Fatalf("write cache: %v", err)
	}
	if _, _, err := VerifyIntegrity(spec); err == nil {
		t.Fatal("expected error for unsupported algorithm")
	}
}
