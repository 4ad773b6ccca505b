package graph

import (
	"io"
	"sync"
	"time"
)

// rateLimiter throttles byte-level throughput for upload/download streaming.
// A small hand-rolled token bucket; coarse by design since transfers are
// chunked and the bucket only needs to bound sustained throughput.
type rateLimiter struct {
	mu         sync.Mutex
	bytesPerS  int64
	tokens     int64
	lastRefill time.Time
}

func newRateLimiter(bytesPerSec int64) *rateLimiter {
	return &rateLimiter{
		bytesPerS:  bytesPerSec,
		tokens:     bytesPerSec,
		lastRefill: time.Now(),
	}
}

// wait blocks until n bytes' worth of budget is available, refilling the
// bucket based on elapsed wall-clock time since the last call.
func (r *rateLimiter) wait(n int) {
	if r == nil || r.bytesPerS <= 0 {
		return
	}

	for {
		r.mu.Lock()

		now := time.Now()
		elapsed := now.Sub(r.lastRefill)
		r.lastRefill = now
		r.tokens += int64(elapsed.Seconds() * float64(r.bytesPerS))

		if r.tokens > r.bytesPerS {
			r.tokens = r.bytesPerS
		}

		if r.tokens >= int64(n) {
			r.tokens -= int64(n)
			r.mu.Unlock()

			return
		}

		deficit := int64(n) - r.tokens
		sleepFor := time.Duration(float64(deficit) / float64(r.bytesPerS) * float64(time.Second))
		r.mu.Unlock()
		time.Sleep(sleepFor)
	}
}

// rateLimitedReader wraps an io.Reader, throttling Read calls through a
// shared rateLimiter. Used to cap upload body throughput.
type rateLimitedReader struct {
	r  io.Reader
	rl *rateLimiter
}

func newRateLimitedReader(r io.Reader, rl *rateLimiter) io.Reader {
	if rl == nil {
		return r
	}

	return &rateLimitedReader{r: r, rl: rl}
}

func (rr *rateLimitedReader) Read(p []byte) (int, error) {
	n, err := rr.r.Read(p)
	if n > 0 {
		rr.rl.wait(n)
	}

	return n, err
}

// rateLimitedWriter wraps an io.Writer, throttling Write calls through a
// shared rateLimiter. Used to cap download sink throughput.
type rateLimitedWriter struct {
	w  io.Writer
	rl *rateLimiter
}

func newRateLimitedWriter(w io.Writer, rl *rateLimiter) io.Writer {
	if rl == nil {
		return w
	}

	return &rateLimitedWriter{w: w, rl: rl}
}

func (rw *rateLimitedWriter) Write(p []byte) (int, error) {
	rw.rl.wait(len(p))
	return rw.w.Write(p)
}
