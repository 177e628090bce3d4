// Package runner orchestrates one streaming-load test run: provision the
// table, cache and verify the dataset, upload it, run the verification
// queries, and always tear the table down.
package runner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"loadcheck/internal/domain"
	"loadcheck/internal/sqlclient"
)

// Fetcher caches the remote dataset locally.
type Fetcher interface {
	EnsureCached(ctx context.Context, spec domain.DatasetSpec) (bool, error)
}

// Uploader performs the streaming-load ingestion request.
type Uploader interface {
	Ingest(ctx context.Context, req domain.IngestionRequest) error
}

// IntegrityFunc computes and compares the cached dataset's digest.
type IntegrityFunc func(spec domain.DatasetSpec) (bool, string, error)

// Params describes one run.
type Params struct {
	Table    domain.TableSpec
	Dataset  domain.DatasetSpec
	Endpoint string // streaming-load host base URL

	InsertSQL string
	CSVHeader bool

	Queries []domain.VerificationQuery
}

// Runner executes runs against its collaborators. Collaborators are
// interfaces so tests can count calls.
type Runner struct {
	SQL       sqlclient.Client
	Fetcher   Fetcher
	Uploader  Uploader
	Integrity IntegrityFunc

	Out    io.Writer    // verification query output (defaults to stdout)
	Logger *slog.Logger // defaults to slog.Default()
}

func (r *Runner) out() io.Writer {
	if r.Out != nil {
		return r.Out
	}
	return os.Stdout
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// Run executes the five steps strictly in order. The first failing step
// aborts the rest, except teardown: the DROP statement runs exactly once per
// run no matter what, and its failure is reported but never changes the
// run's outcome.
func (r *Runner) Run(ctx context.Context, p Params) error {
	log := r.logger()

	// Teardown outlives run cancellation: an interrupted run must still try
	// to drop its table.
	teardownCtx := context.WithoutCancel(ctx)
	defer func() {
		if terr := r.teardown(teardownCtx, p.Table); terr != nil {
			log.Error("teardown failed", "table", p.Table.Name, "error", terr)
		}
	}()

	// Step 1: schema setup.
	if eerr := r.SQL.Exec(ctx, p.Table.CreateSQL); eerr != nil {
		return domain.ErrSchema("create table %s: %v", p.Table.Name, eerr)
	}
	log.Info("table ready", "table", p.Table.Name)

	// Step 2: dataset acquisition.
	cached, ferr := r.Fetcher.EnsureCached(ctx, p.Dataset)
	if ferr != nil {
		return ferr
	}
	log.Info("dataset cached", "path", p.Dataset.CachePath, "reused", cached)

	// Step 3: integrity check. A mismatch aborts before any upload: wrong
	// data would silently poison every downstream verification result.
	ok, actual, verr := r.Integrity(p.Dataset)
	if verr != nil {
		return verr
	}
	if !ok {
		return domain.ErrIntegrity(
			"cached file %s is not the expected reference dataset: digest %s, want %s",
			p.Dataset.CachePath, actual, domain.NormalizeDigest(p.Dataset.Digest))
	}
	log.Info("dataset integrity verified", "digest", actual)

	// Step 4: ingestion.
	req := domain.IngestionRequest{
		Endpoint:  p.Endpoint,
		InsertSQL: p.InsertSQL,
		CSVHeader: p.CSVHeader,
		FilePath:  p.Dataset.CachePath,
	}
	if ierr := r.Uploader.Ingest(ctx, req); ierr != nil {
		return ierr
	}
	log.Info("dataset ingested", "table", p.Table.Name)

	// Step 5: verification queries, in order.
	for _, q := range p.Queries {
		res, qerr := r.query(ctx, q)
		if qerr != nil {
			return qerr
		}
		if q.Label != "" {
			fmt.Fprintf(r.out(), "-- %s\n", q.Label)
		}
		fmt.Fprint(r.out(), res.Format())
	}
	log.Info("verification complete", "queries", len(p.Queries))
	return nil
}

func (r *Runner) query(ctx context.Context, q domain.VerificationQuery) (*sqlclient.Result, error) {
	res, err := r.SQL.Query(ctx, q.SQL)
	if err != nil {
		return nil, domain.ErrQuery("verification query %q: %v", q.SQL, err)
	}
	return res, nil
}

func (r *Runner) teardown(ctx context.Context, table domain.TableSpec) error {
	if err := r.SQL.Exec(ctx, table.DropSQL); err != nil {
		return domain.ErrTeardown("drop table %s: %v", table.Name, err)
	}
	r.logger().Info("table dropped", "table", table.Name)
	return nil
}
