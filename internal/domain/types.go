// Package domain defines core types and errors for the streaming-load tester.
package domain

import "strings"

// DigestAlgo identifies the hash used for dataset integrity checks.
type DigestAlgo string

const (
	DigestMD5    DigestAlgo = "md5"
	DigestSHA256 DigestAlgo = "sha256"
)

// DatasetSpec describes the reference dataset: where to fetch it, where it is
// cached on disk, and the digest it must match before it may be ingested.
type DatasetSpec struct {
	URL       string
	CachePath string
	Digest    string // expected digest, hex, compared case-insensitively
	Algo      DigestAlgo
}

// TableSpec describes the table a run provisions and tears down.
type TableSpec struct {
	Name      string
	CreateSQL string
	DropSQL   string
}

// IngestionRequest carries the streaming-load upload directives. InsertSQL and
// CSVHeader travel as HTTP headers; the file itself is the multipart body.
type IngestionRequest struct {
	Endpoint  string // base URL of the streaming-load host, e.g. http://localhost:8000
	InsertSQL string // full INSERT statement naming the target table and format
	CSVHeader bool   // first CSV row is a header and must be skipped server-side
	FilePath  string // cached dataset file to upload
}

// VerificationQuery is one post-ingestion SQL statement with an optional
// human-readable label used when surfacing its output.
type VerificationQuery struct {
	Label string
	SQL   string
}

// NormalizeDigest lowercases and trims a hex digest for comparison.
func NormalizeDigest(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
