package driveops

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// ResumeDescriptor is the on-disk sidecar recording an in-progress download's
// drive/item identity, expected hash, partial filename and resume offset.
// TransferManager (transfer_manager.go) writes it as bytes arrive and removes
// it on success, but does not read it back: its resume offset comes from the
// .partial file's size alone, and no identity check against the descriptor
// is made. ResumeStore.Load returns a saved descriptor.
type ResumeDescriptor struct {
	DriveID         string `json:"drive_id"`
	ItemID          string `json:"item_id"`
	OnlineHash      string `json:"online_hash"` // quickXor, sha1, or sha256 depending on account type
	OriginalName    string `json:"original_filename"`
	PartialFilename string `json:"partial_filename"` // OriginalName + ".partial"
	ResumeOffset    int64  `json:"resume_offset"`
}

// randomSuffixBytes sets the width of the per-download random suffix in the
// sidecar filename (<base>.<random-suffix>) — distinct concurrent downloads
// of the same logical target must not collide.
const randomSuffixBytes = 8

// resumeFilePerms keeps sidecars owner-only, like the token files.
const resumeFilePerms = 0o600

// NewResumeSidecarPath derives a unique sidecar path for a download of
// targetPath, suffixed with a random hex string so concurrent downloads of
// the same file never collide on one descriptor.
func NewResumeSidecarPath(targetPath string) (string, error) {
	suffix := make([]byte, randomSuffixBytes)
	if _, err := rand.Read(suffix); err != nil {
		return "", fmt.Errorf("generating resume sidecar suffix: %w", err)
	}

	return targetPath + "." + hex.EncodeToString(suffix), nil
}

// ResumeStore persists ResumeDescriptor sidecars. A sidecar is written on
// every progress tick where dlnow > last-recorded, never read from within
// the progress callback, and removed on successful finalization — a failed
// download leaves its sidecar behind. TransferManager does not read sidecars
// back; Load is the only reader.
type ResumeStore struct {
	logger *slog.Logger
}

// NewResumeStore creates a ResumeStore.
func NewResumeStore(logger *slog.Logger) *ResumeStore {
	return &ResumeStore{logger: logger}
}

// Load reads a sidecar at path. Returns (nil, nil) if it does not exist —
// callers treat this as "start a fresh download".
func (s *ResumeStore) Load(path string) (*ResumeDescriptor, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil //nolint:nilnil // sentinel for "no resume state"
	}

	if err != nil {
		return nil, fmt.Errorf("reading resume sidecar %s: %w", path, err)
	}

	var d ResumeDescriptor
	if err := json.Unmarshal(data, &d); err != nil {
		s.logger.Warn("corrupt resume sidecar, discarding", slog.String("path", path), slog.String("error", err.Error()))

		return nil, nil //nolint:nilnil // corrupt sidecar is treated the same as absent
	}

	return &d, nil
}

// Save atomically overwrites the sidecar at path with d. A sidecar write
// failure must never block or abort a transfer, so callers invoke this
// best-effort and log rather than propagate.
func (s *ResumeStore) Save(path string, d ResumeDescriptor) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshaling resume descriptor: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, resumeFilePerms); err != nil {
		return fmt.Errorf("writing resume sidecar temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming resume sidecar into place: %w", err)
	}

	return nil
}

// SaveBestEffort calls Save and logs (never returns) any error, for use
// directly inside a progress callback where a write failure must not abort
// the transfer.
func (s *ResumeStore) SaveBestEffort(path string, d ResumeDescriptor) {
	if err := s.Save(path, d); err != nil {
		s.logger.Warn("resume sidecar write failed, continuing transfer",
			slog.String("path", path), slog.String("error", err.Error()))
	}
}

// Remove deletes the sidecar at path. No error if it is already gone.
func (s *ResumeStore) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing resume sidecar %s: %w", path, err)
	}

	return nil
}

// progressTracker wraps a ResumeStore so the sidecar is only rewritten when
// dlnow has advanced past the last recorded watermark — quantized progress
// ticks that report the same cumulative count twice never trigger a
// redundant write.
type progressTracker struct {
	store        *ResumeStore
	path         string
	descriptor   ResumeDescriptor
	lastRecorded int64
}

// newProgressTracker builds a tracker seeded with the descriptor's starting
// offset as the initial "last recorded" watermark.
func newProgressTracker(store *ResumeStore, path string, descriptor ResumeDescriptor) *progressTracker {
	return &progressTracker{store: store, path: path, descriptor: descriptor, lastRecorded: descriptor.ResumeOffset}
}

// onProgress is called with the cumulative bytes downloaded so far
// (resumeOffset + bytes received this session). It only rewrites the
// sidecar when dlnow has advanced past the last recorded watermark.
func (t *progressTracker) onProgress(dlnow int64) {
	if dlnow <= t.lastRecorded {
		return
	}

	t.lastRecorded = dlnow
	t.descriptor.ResumeOffset = dlnow
	t.store.SaveBestEffort(t.path, t.descriptor)
}

// resumeWriter wraps an io.Writer, tracking cumulative bytes written from a
// starting offset (e.g. the existing .partial size on a resumed download)
// and feeding each tick to a progressTracker. This gives the download path
// its write-on-progress hook without requiring an explicit progress
// callback parameter on Downloader/RangeDownloader.
type resumeWriter struct {
	io.Writer
	base    int64
	written int64
	tracker *progressTracker
}

func newResumeWriter(w io.Writer, base int64, tracker *progressTracker) io.Writer {
	if tracker == nil {
		return w
	}

	return &resumeWriter{Writer: w, base: base, tracker: tracker}
}

func (r *resumeWriter) Write(p []byte) (int, error) {
	n, err := r.Writer.Write(p)
	r.written += int64(n)

	if r.tracker != nil {
		r.tracker.onProgress(r.base + r.written)
	}

	return n, err
}
