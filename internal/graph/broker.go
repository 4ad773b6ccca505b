package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// BrokerToken is what a BrokerSource hands back after a successful
// acquisition: a bearer token, its absolute expiry, and an opaque account
// blob the OS broker needs for later silent acquisitions.
type BrokerToken struct {
	AccessToken string
	ExpiresOn   time.Time
	Account     json.RawMessage // opaque; persisted verbatim, never parsed by this package
}

// BrokerSource is satisfied by whatever OS-specific SSO broker binding a
// caller links in (e.g. an MSAL broker on Windows/macOS). Broker SSO is
// platform-specific, so this package only defines the contract and the
// sidecar-persistence/fallback behavior around it.
type BrokerSource interface {
	// AcquireInteractive prompts the user via the broker's own UI.
	AcquireInteractive(ctx context.Context, clientID string) (BrokerToken, error)
	// AcquireSilently attempts a non-interactive acquisition using a
	// previously persisted account blob.
	AcquireSilently(ctx context.Context, account json.RawMessage, clientID string) (BrokerToken, error)
}

// intuneAccountFile is the sidecar holding the broker's opaque account blob,
// written alongside the refresh_token file.
const intuneAccountFile = "intune_account"

// intuneAccountPath joins tokenDir with the fixed sidecar filename.
func intuneAccountPath(tokenDir string) string {
	return filepath.Join(tokenDir, intuneAccountFile)
}

// brokerTokenSource adapts a successfully-acquired BrokerToken into the
// package's TokenSource interface, refreshing silently through the broker
// once the token is within ensureValidSkew of expiry.
type brokerTokenSource struct {
	broker    BrokerSource
	clientID  string
	tokenDir  string
	logger    *slog.Logger
	cached    BrokerToken
}

// ensureValidSkew refreshes proactively rather than waiting for the exact
// expiry instant, so an in-flight request never races a token that expires
// mid-call.
const ensureValidSkew = 2 * time.Minute

func (b *brokerTokenSource) Token() (string, error) {
	if time.Now().Add(ensureValidSkew).Before(b.cached.ExpiresOn) {
		return b.cached.AccessToken, nil
	}

	ctx := context.Background()

	tok, err := b.broker.AcquireSilently(ctx, b.cached.Account, b.clientID)
	if err != nil {
		b.logger.Warn("broker silent acquisition failed, falling back to interactive",
			slog.String("error", err.Error()))

		if rmErr := os.Remove(intuneAccountPath(b.tokenDir)); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			b.logger.Warn("failed to remove stale intune account sidecar", slog.String("error", rmErr.Error()))
		}

		tok, err = b.broker.AcquireInteractive(ctx, b.clientID)
		if err != nil {
			return "", fmt.Errorf("graph: broker interactive fallback failed: %w", err)
		}
	}

	if err := saveBrokerAccount(b.tokenDir, tok.Account); err != nil {
		b.logger.Warn("failed to persist refreshed intune account blob", slog.String("error", err.Error()))
	}

	b.cached = tok

	return tok.AccessToken, nil
}

// LoginWithBroker performs the Intune broker flow: an interactive
// acquisition on first use, persisting the returned account blob to the
// `intune_account` sidecar (0600) in tokenDir, then silent reacquisition on
// every subsequent Token() call that finds the cached token within
// ensureValidSkew of expiry. On a silent-acquisition failure the sidecar is
// deleted and the flow falls back to a fresh interactive acquisition.
func LoginWithBroker(
	ctx context.Context, tokenDir string, broker BrokerSource, clientID string, logger *slog.Logger,
) (TokenSource, error) {
	if clientID == "" {
		clientID = defaultClientID
	}

	var tok BrokerToken

	if account, err := loadBrokerAccount(tokenDir); err == nil && account != nil {
		tok, err = broker.AcquireSilently(ctx, account, clientID)
		if err != nil {
			logger.Info("silent broker acquisition failed, starting interactive flow",
				slog.String("error", err.Error()))

			if rmErr := os.Remove(intuneAccountPath(tokenDir)); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				logger.Warn("failed to remove stale intune account sidecar", slog.String("error", rmErr.Error()))
			}

			tok = BrokerToken{}
		}
	}

	if tok.AccessToken == "" {
		var err error

		tok, err = broker.AcquireInteractive(ctx, clientID)
		if err != nil {
			return nil, fmt.Errorf("graph: broker interactive acquisition failed: %w", err)
		}
	}

	if err := saveBrokerAccount(tokenDir, tok.Account); err != nil {
		return nil, fmt.Errorf("graph: persisting intune account blob: %w", err)
	}

	return &brokerTokenSource{broker: broker, clientID: clientID, tokenDir: tokenDir, logger: logger, cached: tok}, nil
}

// loadBrokerAccount reads the intune_account sidecar. Returns (nil, nil) if
// it does not exist — not logged in via the broker yet.
func loadBrokerAccount(tokenDir string) (json.RawMessage, error) {
	data, err := os.ReadFile(intuneAccountPath(tokenDir))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil //nolint:nilnil // sentinel for "not present"
	}

	if err != nil {
		return nil, fmt.Errorf("graph: reading intune account sidecar: %w", err)
	}

	return json.RawMessage(data), nil
}

// saveBrokerAccount atomically writes the opaque account blob to the
// intune_account sidecar with 0600 permissions, creating tokenDir (0700) if
// needed. Writes are whole-file replacements so a concurrent reader never
// sees a torn blob.
func saveBrokerAccount(tokenDir string, account json.RawMessage) error {
	if len(account) == 0 {
		return nil
	}

	if err := os.MkdirAll(tokenDir, 0o700); err != nil { //nolint:mnd // owner-only dir perms
		return fmt.Errorf("graph: creating token directory %s: %w", tokenDir, err)
	}

	path := intuneAccountPath(tokenDir)

	tmp, err := os.CreateTemp(tokenDir, ".intune_account-*.tmp")
	if err != nil {
		return fmt.Errorf("graph: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()
	success := false

	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, 0o600); err != nil { //nolint:mnd // owner-only file perms
		tmp.Close()
		return fmt.Errorf("graph: setting permissions: %w", err)
	}

	if _, err := tmp.Write(account); err != nil {
		tmp.Close()
		return fmt.Errorf("graph: writing intune account blob: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("graph: closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("graph: renaming intune account sidecar into place: %w", err)
	}

	success = true

	return nil
}
