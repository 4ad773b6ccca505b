package graph

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"golang.org/x/oauth2"

	"github.com/tonimelisma/onedrive-go/internal/tokenfile"
)

// readOnlyScopes is used when AuthOptions.ReadOnlyScope is set. Mirrors
// defaultScopes but requests Files.Read.All instead of Files.ReadWrite.All.
var readOnlyScopes = []string{
	"offline_access",
	"Files.Read.All",
	"User.Read",
}

// writeCapabilityMarker detects, in a granted scope string, that Entra
// ignored a read-only request and issued write capability anyway.
const writeCapabilityMarker = "Write"

// ErrWriteScopeGranted is returned when a read-only login request comes back
// with a token whose granted scope still contains write capability. The
// token is not persisted; the user must revoke consent for this application
// online before retrying.
var ErrWriteScopeGranted = errors.New(
	"graph: read-only login was granted write access; revoke consent for this app and retry")

// AuthOptions selects the region, tenant, client id, and scope for a login
// flow. The zero value resolves to RegionGlobal, tenant "common", this
// module's built-in defaultClientID, and the default read-write scope set —
// the same behavior Login and LoginWithBrowser give without options.
type AuthOptions struct {
	Region        RegionProfile
	TenantID      string
	ClientID      string // empty uses defaultClientID
	ReadOnlyScope bool
}

// isDefaultClientID reports whether o selects this module's first-party
// client id, whose app registration only lists the global authority host as
// a redirect target, regardless of region.
func (o AuthOptions) isDefaultClientID() bool {
	return o.ClientID == "" || o.ClientID == defaultClientID
}

func (o AuthOptions) clientID() string {
	if o.ClientID == "" {
		return defaultClientID
	}

	return o.ClientID
}

func (o AuthOptions) scopes() []string {
	if o.ReadOnlyScope {
		return readOnlyScopes
	}

	return defaultScopes
}

// regionOAuthConfig builds an oauth2.Config against the region/tenant pair in
// opts instead of the hardcoded "common" global endpoint oauthConfig() uses,
// so every login flow can target a sovereign cloud.
func regionOAuthConfig(tokenPath string, meta map[string]string, logger *slog.Logger, opts AuthOptions) *oauth2.Config {
	ep := ResolveEndpoints(opts.Region, opts.TenantID, opts.isDefaultClientID(), logger)

	cfg := oauthConfig(tokenPath, meta, logger)
	cfg.ClientID = opts.clientID()
	cfg.Scopes = opts.scopes()
	cfg.Endpoint = oauth2.Endpoint{
		AuthURL:       ep.AuthorizeURL,
		TokenURL:      ep.TokenURL,
		DeviceAuthURL: ep.DeviceCodeURL,
	}

	return cfg
}

// LoginWithRegion is Login generalized to an arbitrary sovereign cloud,
// tenant, and scope. Login itself remains the global/common/read-write
// entry point.
func LoginWithRegion(
	ctx context.Context,
	tokenPath string,
	opts AuthOptions,
	display func(DeviceAuth),
	logger *slog.Logger,
) (TokenSource, error) {
	cfg := regionOAuthConfig(tokenPath, nil, logger, opts)

	ts, err := doLogin(ctx, tokenPath, cfg, display, logger)
	if err != nil {
		return nil, err
	}

	return ts, checkReadOnlyGrant(tokenPath, opts, logger)
}

// LoginWithBrowserWithRegion is LoginWithBrowser generalized the same way.
func LoginWithBrowserWithRegion(
	ctx context.Context,
	tokenPath string,
	opts AuthOptions,
	openURL func(string) error,
	logger *slog.Logger,
) (TokenSource, error) {
	cfg := regionOAuthConfig(tokenPath, nil, logger, opts)

	ts, err := doAuthCodeLogin(ctx, tokenPath, cfg, openURL, logger)
	if err != nil {
		return nil, err
	}

	return ts, checkReadOnlyGrant(tokenPath, opts, logger)
}

// checkReadOnlyGrant re-reads the just-saved token's "scope" extra field: if
// ReadOnlyScope was requested but the server's granted scope still contains
// write capability, the saved token file is removed and ErrWriteScopeGranted
// is returned so the caller does not silently proceed with more access than
// it asked for.
func checkReadOnlyGrant(tokenPath string, opts AuthOptions, logger *slog.Logger) error {
	if !opts.ReadOnlyScope {
		return nil
	}

	tok, _, err := tokenfile.Load(tokenPath)
	if err != nil || tok == nil {
		return nil //nolint:nilerr // best-effort check; Load already logged/returned its own error to the caller
	}

	granted, _ := tok.Extra("scope").(string)
	if !strings.Contains(granted, writeCapabilityMarker) {
		return nil
	}

	logger.Warn("read-only login granted write capability, aborting",
		slog.String("granted_scope", granted),
	)

	if rmErr := os.Remove(tokenPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		logger.Warn("failed to remove token after write-scope abort", slog.String("error", rmErr.Error()))
	}

	return ErrWriteScopeGranted
}

// TokenSourceFromPathWithRegion loads a saved token the same way
// TokenSourceFromPath does, but rebuilds the oauth2.Config against opts'
// region/tenant/client-id/scope instead of the hardcoded global defaults —
// needed so silent refresh keeps hitting the correct cloud's token endpoint.
func TokenSourceFromPathWithRegion(
	ctx context.Context, tokenPath string, opts AuthOptions, logger *slog.Logger,
) (TokenSource, error) {
	tok, meta, err := tokenfile.Load(tokenPath)
	if err != nil {
		return nil, err
	}

	if tok == nil {
		return nil, ErrNotLoggedIn
	}

	cfg := regionOAuthConfig(tokenPath, meta, logger, opts)
	src := newPersistingTokenSource(cfg.TokenSource(ctx, tok), tokenPath, meta, tok, logger)

	return &tokenBridge{src: src, logger: logger}, nil
}

// codeParamRe pulls the authorization `code` out of a pasted redirect URI
// without requiring the URI to parse as a well-formed URL (real-world
// terminals and clipboard managers sometimes mangle surrounding characters).
var codeParamRe = regexp.MustCompile(`[?&]code=([\w\d\-.]+)`)

// ExtractAuthCode pulls the `code` query parameter out of a redirect URI
// using the tolerant regex rather than full URL parsing.
func ExtractAuthCode(redirectURI string) (string, error) {
	m := codeParamRe.FindStringSubmatch(redirectURI)
	if m == nil {
		return "", fmt.Errorf("graph: no authorization code found in redirect URI")
	}

	return m[1], nil
}

// filePollInterval paces the wait-for-response-file loop. Polling keeps the
// loop portable; the files in question appear at most once per login.
const filePollInterval = 100 * time.Millisecond

// RedirectURIIntake describes the three ways a caller can supply the pasted
// browser redirect URI back to the interactive code flow:
// typed at a real console, exchanged through a watched file pair (headless
// hosts, e.g. over SSH with no browser), or handed over directly as a string
// (already known to the caller, e.g. a test harness).
type RedirectURIIntake struct {
	// Direct, if non-empty, is returned as-is — used by callers (tests,
	// scripted logins) that already have the redirect URI in hand.
	Direct string
	// URLFile and ResponseFile implement the watched-file-pair mode: the
	// auth URL is written to URLFile, then ResponseFile is polled until it
	// appears, and its contents are read as the redirect URI. Used on hosts
	// without an interactive console attached to stdin.
	URLFile, ResponseFile string
	// Stdin is read from when neither Direct nor the file pair is set and
	// stdin is a real terminal (per isatty.IsTerminal). Defaults to os.Stdin.
	Stdin *os.File
}

// AwaitRedirectURI resolves the pasted redirect URI per RedirectURIIntake's
// three modes and extracts the authorization code from it, honoring ctx
// cancellation while polling for the response file.
func AwaitRedirectURI(ctx context.Context, authURL string, intake RedirectURIIntake) (string, error) {
	if intake.Direct != "" {
		return ExtractAuthCode(intake.Direct)
	}

	if intake.URLFile != "" && intake.ResponseFile != "" {
		redirectURI, err := awaitRedirectViaFiles(ctx, authURL, intake.URLFile, intake.ResponseFile)
		if err != nil {
			return "", err
		}

		return ExtractAuthCode(redirectURI)
	}

	stdin := intake.Stdin
	if stdin == nil {
		stdin = os.Stdin
	}

	if !isatty.IsTerminal(stdin.Fd()) {
		return "", fmt.Errorf(
			"graph: stdin is not a terminal and no redirect-uri file pair was configured")
	}

	fmt.Fprintln(os.Stderr, "Open this URL in a browser, sign in, then paste the resulting redirect URL:")
	fmt.Fprintln(os.Stderr, authURL)

	reader := bufio.NewReader(stdin)

	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("graph: reading pasted redirect URI: %w", err)
	}

	return ExtractAuthCode(strings.TrimSpace(line))
}

// deviceAuthPendingCodes are the device-flow error codes that mean "keep
// polling". The oauth2 library retries these internally during
// DeviceAccessToken; every other error code (authorization_declined,
// access_denied, expired_token, or anything unexpected) ends the poll for
// good.
var deviceAuthPendingCodes = map[string]bool{
	"authorization_pending": true,
	"slow_down":             true,
}

// IsDeviceAuthDeclined classifies an error returned by Login/doLogin
// (device code flow) as a terminal decline. The caller should treat a true
// result as the signal to clear its own "prefer device auth" setting so the
// next attempt falls back to the interactive flow instead of polling again.
// Errors without a device-flow error code (network failures, unparseable
// responses) are not declines — the next login may still poll.
func IsDeviceAuthDeclined(err error) bool {
	var retrieveErr *oauth2.RetrieveError
	if !errors.As(err, &retrieveErr) {
		return false
	}

	if retrieveErr.ErrorCode == "" {
		return false
	}

	return !deviceAuthPendingCodes[retrieveErr.ErrorCode]
}

// awaitRedirectViaFiles writes authURL to urlFile, then polls for
// responseFile to appear, returning its trimmed contents. Used on headless
// hosts where the caller relays the URL/response pair out-of-band (e.g. a
// companion process watching the same directory over SSH).
func awaitRedirectViaFiles(ctx context.Context, authURL, urlFile, responseFile string) (string, error) {
	if err := os.WriteFile(urlFile, []byte(authURL+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("graph: writing auth url file %s: %w", urlFile, err)
	}

	defer os.Remove(urlFile)

	ticker := time.NewTicker(filePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("graph: waiting for %s: %w", responseFile, ctx.Err())
		case <-ticker.C:
			data, err := os.ReadFile(responseFile)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					continue
				}

				return "", fmt.Errorf("graph: reading response file %s: %w", responseFile, err)
			}

			os.Remove(responseFile)

			return strings.TrimSpace(string(data)), nil
		}
	}
}
