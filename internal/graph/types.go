package graph

import (
	"log/slog"
	"time"

	"github.com/tonimelisma/onedrive-go/internal/driveid"
)

// ChildCountUnknown indicates the child count was not present in the API response.
const ChildCountUnknown = -1

// DownloadURL is a pre-authenticated, ephemeral content URL. It embeds an
// access token, so it must never appear in logs; the slog.LogValuer
// implementation redacts it wholesale no matter how it is passed to a logger.
type DownloadURL string

// LogValue implements slog.LogValuer.
func (DownloadURL) LogValue() slog.Value {
	return slog.StringValue("[REDACTED]")
}

// Item represents a OneDrive drive item (file, folder, or package).
// Fields are normalized from the Graph API response — callers never see raw API data.
type Item struct {
	ID             string
	Name           string
	DriveID        driveid.ID // normalized: lowercase, zero-padded (Graph API casing is inconsistent)
	ParentID       string
	ParentDriveID  driveid.ID // drive containing parent (for cross-drive references)
	Size           int64
	ETag           string
	CTag           string
	IsFolder       bool
	IsRoot         bool // true for the drive's root item
	IsDeleted      bool
	IsPackage      bool // OneNote packages — sync should skip these
	MimeType       string
	QuickXorHash   string // base64-encoded
	SHA1Hash       string // hex (Personal accounts only)
	SHA256Hash     string // hex (Business accounts, sometimes)
	CreatedAt      time.Time
	ModifiedAt     time.Time
	ChildCount     int    // ChildCountUnknown if not present
	DownloadURL    DownloadURL // pre-authenticated, ephemeral; redacted by its LogValuer
	WebURL         string
	CreatedBy      string     // display name, best-effort
	LastModifiedBy string     // display name, best-effort
	RemoteItemID   string     // set for items shared from another drive
	RemoteDriveID  driveid.ID // source drive of a shared item
}

// User represents the authenticated Graph account.
type User struct {
	ID          string
	DisplayName string
	Email       string // mail, falling back to userPrincipalName
}

// Drive represents a OneDrive container: a personal drive, business drive,
// or SharePoint document library.
type Drive struct {
	ID         driveid.ID
	Name       string
	DriveType  string // "personal", "business", "documentLibrary"
	OwnerName  string
	OwnerEmail string
	QuotaUsed  int64
	QuotaTotal int64
}

// Site represents a SharePoint site, the parent container of a document library drive.
type Site struct {
	ID          string
	DisplayName string
	Name        string
	WebURL      string
}

// Organization represents the authenticated account's tenant organization.
// Zero value (empty DisplayName) for Personal accounts, which have none.
type Organization struct {
	DisplayName string
}

// DeltaPage is one page of a delta enumeration: the normalized items plus
// either a continuation link (more pages) or a delta link (enumeration complete).
type DeltaPage struct {
	Items     []Item
	NextLink  string
	DeltaLink string
}

// UploadSession represents a resumable upload session's pre-authenticated URL
// and expiration instant, as returned by CreateUploadSession.
type UploadSession struct {
	UploadURL      string
	ExpirationTime time.Time
}

// UploadSessionStatus represents the status of an in-progress upload session,
// as returned by QueryUploadSession. NextExpectedRanges tells the caller which
// byte ranges the server has not yet received, in "start-end" or "start-" form.
type UploadSessionStatus struct {
	UploadURL          string
	ExpirationTime     time.Time
	NextExpectedRanges []string
}

// Subscription represents a webhook subscription resource.
type Subscription struct {
	ID                 string
	Resource           string
	ChangeType         string
	NotificationURL    string
	ExpirationDateTime time.Time
	ClientState        string
}
