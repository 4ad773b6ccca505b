package driveops

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/onedrive-go/internal/driveid"
)

// defaultBatchConcurrency bounds how many independent transfers run at once
// when the caller does not specify a limit. Each upload session is still
// serialized on one client; this bound only caps how many distinct files'
// sessions run concurrently.
const defaultBatchConcurrency = 4

// UploadJob describes one file to upload as part of a batch.
type UploadJob struct {
	DriveID   driveid.ID
	ParentID  string
	Name      string
	LocalPath string
	Opts      UploadOpts
}

// BatchUploadResult pairs an UploadJob with its outcome. Err is non-nil when
// that specific file's upload failed; other jobs in the batch still run to
// completion.
type BatchUploadResult struct {
	Job    UploadJob
	Result *UploadResult
	Err    error
}

// UploadFiles uploads independent files concurrently, each through its own
// call to UploadFile (and therefore its own upload session where
// applicable) bounded by maxConcurrency simultaneous transfers (0 or
// negative uses defaultBatchConcurrency). Every fragment PUT within a single
// file's session still runs sequentially against tm's underlying Client —
// only distinct files' sessions overlap.
func (tm *TransferManager) UploadFiles(
	ctx context.Context, jobs []UploadJob, maxConcurrency int,
) []BatchUploadResult {
	if maxConcurrency <= 0 {
		maxConcurrency = defaultBatchConcurrency
	}

	results := make([]BatchUploadResult, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrency)

	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			res, err := tm.UploadFile(gctx, job.DriveID, job.ParentID, job.Name, job.LocalPath, job.Opts)
			results[i] = BatchUploadResult{Job: job, Result: res, Err: err}

			// Never return the per-job error from the errgroup goroutine —
			// a failed upload must not cancel the sibling uploads still in
			// flight. Each job's outcome is reported individually in results.
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		tm.logger.Warn("batch upload group returned an error", slog.String("error", err.Error()))
	}

	return results
}
