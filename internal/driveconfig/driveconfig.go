// Package driveconfig carries the small slice of per-drive identity and
// token-path resolution that internal/driveops needs to construct a
// transport session. It deliberately does not parse a config file or flags —
// that belongs to whatever calls this module — it only resolves where a
// drive's token lives on disk and holds that setting behind a thread-safe
// Holder so a SIGHUP-style reload can update it for every in-flight
// SessionProvider at once.
package driveconfig

import (
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/tonimelisma/onedrive-go/internal/driveid"
	"github.com/tonimelisma/onedrive-go/internal/graph"
)

const appName = "onedrive-go"

// ResolvedDrive is the identity of a single configured drive: its canonical
// (config-level) ID and its Graph API drive ID once login has resolved one.
// DriveID is the zero value until a successful login populates it.
type ResolvedDrive struct {
	CanonicalID driveid.CanonicalID
	DriveID     driveid.ID
}

// Config holds the transport-relevant settings a caller resolves from its
// own config file or flags. TokenDir overrides the platform default data
// directory for token storage; empty uses DefaultDataDir. Region selects
// which sovereign Microsoft cloud a session talks to; the zero value is
// graph.RegionGlobal.
type Config struct {
	TokenDir string
	Region   graph.RegionProfile
	TenantID string
}

// GraphBaseURL resolves the Graph API base URL a SessionProvider should build
// clients against, given cfg's Region. Falls back to graph.DefaultBaseURL
// when cfg is nil or Region is the zero value (RegionGlobal).
func (c *Config) GraphBaseURL(logger *slog.Logger) string {
	if c == nil || c.Region == graph.RegionGlobal {
		return graph.DefaultBaseURL
	}

	ep := graph.ResolveEndpoints(c.Region, c.TenantID, true, logger)

	return ep.GraphBaseURL
}

// DefaultConfig returns a Config with no overrides, using platform defaults.
func DefaultConfig() *Config {
	return &Config{}
}

// Holder provides thread-safe access to a mutable *Config. SessionProvider
// reads through a Holder so a reload updates token resolution in one place
// for every session it has already handed out.
type Holder struct {
	mu   sync.RWMutex
	cfg  *Config
	path string
}

// NewHolder creates a Holder with the initial config and an informational
// source path (e.g. the file the caller loaded cfg from). path is not read
// by this package; it is exposed via Path for logging.
func NewHolder(cfg *Config, path string) *Holder {
	return &Holder{cfg: cfg, path: path}
}

// Config returns the current config snapshot.
func (h *Holder) Config() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.cfg
}

// Path returns the source path passed to NewHolder.
func (h *Holder) Path() string {
	return h.path
}

// Update replaces the config, e.g. on SIGHUP reload.
func (h *Holder) Update(cfg *Config) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.cfg = cfg
}

// DriveTokenPath returns the token file path for a canonical drive ID.
// SharePoint drives resolve to the business account's token file since they
// share that account's OAuth session; every other drive type, shared drives
// included, uses a token file of its own canonical ID. Returns "" when
// the data directory can't be determined or canonicalID is the zero value.
func DriveTokenPath(canonicalID driveid.CanonicalID, cfg *Config) string {
	if canonicalID.IsZero() {
		return ""
	}

	dataDir := ""
	if cfg != nil && cfg.TokenDir != "" {
		dataDir = cfg.TokenDir
	} else {
		dataDir = DefaultDataDir()
	}

	if dataDir == "" {
		return ""
	}

	tokenID := canonicalID.TokenCanonicalID()
	sanitized := tokenID.DriveType() + "_" + tokenID.Email()

	return filepath.Join(dataDir, "token_"+sanitized+".json")
}

// DefaultDataDir returns the platform-specific directory for token storage.
// On Linux, respects XDG_DATA_HOME (defaults to ~/.local/share/onedrive-go).
// On macOS, uses ~/Library/Application Support/onedrive-go.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case "linux":
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, appName)
		}

		return filepath.Join(home, ".local", "share", appName)
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".local", "share", appName)
	}
}
