package graph

import "log/slog"

// RegionProfile selects which sovereign cloud a Client talks to — one of
// the five deployments Microsoft Graph actually serves from.
type RegionProfile int

const (
	RegionGlobal RegionProfile = iota
	RegionUSL4                 // US Government L4 (GCC High)
	RegionUSL5                 // US Government L5 (DoD)
	RegionDE                   // Germany
	RegionCN                   // China, operated by 21Vianet
)

// String returns the region's canonical name, used in logs and config views.
func (r RegionProfile) String() string {
	switch r {
	case RegionGlobal:
		return "global"
	case RegionUSL4:
		return "usl4"
	case RegionUSL5:
		return "usl5"
	case RegionDE:
		return "de"
	case RegionCN:
		return "cn"
	default:
		return "unknown"
	}
}

// ParseRegionProfile maps a caller-supplied region name to a RegionProfile.
// Unknown names fall back to RegionGlobal — the caller is expected to log
// the returned ok=false so misconfiguration stays visible.
func ParseRegionProfile(name string) (region RegionProfile, ok bool) {
	switch name {
	case "", "global":
		return RegionGlobal, true
	case "usl4":
		return RegionUSL4, true
	case "usl5":
		return RegionUSL5, true
	case "de":
		return RegionDE, true
	case "cn":
		return RegionCN, true
	default:
		return RegionGlobal, false
	}
}

// Endpoints holds the region-specific URLs a full OAuth2 + Graph session
// needs. AuthorizeURL/TokenURL/DeviceCodeURL follow the tenant-scoped OAuth2
// v2 endpoint shape; GraphBaseURL is the v1.0 Graph API root for that cloud.
type Endpoints struct {
	AuthorizeURL  string
	TokenURL      string
	DeviceCodeURL string
	LogoutURL     string
	GraphBaseURL  string
	RedirectHost  string // host component of the redirect URI for this cloud/app-id combination
}

// regionHosts holds the two hostnames (authority, graph) that vary per cloud.
type regionHosts struct {
	authority string
	graph     string
}

var regionHostTable = map[RegionProfile]regionHosts{
	RegionGlobal: {authority: "login.microsoftonline.com", graph: "graph.microsoft.com"},
	RegionUSL4:   {authority: "login.microsoftonline.us", graph: "graph.microsoft.us"},
	RegionUSL5:   {authority: "login.microsoftonline.us", graph: "dod-graph.microsoft.us"},
	RegionDE:     {authority: "login.microsoftonline.de", graph: "graph.microsoft.de"},
	RegionCN:     {authority: "login.chinacloudapi.cn", graph: "microsoftgraph.chinacloudapi.cn"},
}

// defaultClientRedirectHost is the redirect host Microsoft's own first-party
// client IDs use regardless of cloud; third-party app registrations redirect
// to the cloud-specific authority host instead.
const defaultClientRedirectHost = "login.microsoftonline.com"

// ResolveEndpoints builds the full set of URLs for a region, tenant, and
// client-id combination. tenantID may be "common", "organizations",
// "consumers", or a tenant GUID. isDefaultClientID should be true only when
// the caller is using this module's own built-in first-party client id
// (defaultClientID in auth.go) — third-party app registrations always
// redirect to the region's own authority host.
func ResolveEndpoints(region RegionProfile, tenantID string, isDefaultClientID bool, logger *slog.Logger) Endpoints {
	hosts, ok := regionHostTable[region]
	if !ok {
		if logger != nil {
			logger.Warn("unknown region profile, falling back to global", slog.Int("region", int(region)))
		}

		hosts = regionHostTable[RegionGlobal]
	}

	if tenantID == "" {
		tenantID = "common"
	}

	redirectHost := hosts.authority
	if isDefaultClientID {
		redirectHost = defaultClientRedirectHost
	}

	return Endpoints{
		AuthorizeURL:  "https://" + hosts.authority + "/" + tenantID + "/oauth2/v2.0/authorize",
		TokenURL:      "https://" + hosts.authority + "/" + tenantID + "/oauth2/v2.0/token",
		DeviceCodeURL: "https://" + hosts.authority + "/" + tenantID + "/oauth2/v2.0/devicecode",
		LogoutURL:     "https://" + hosts.authority + "/" + tenantID + "/oauth2/v2.0/logout",
		GraphBaseURL:  "https://" + hosts.graph + "/v1.0",
		RedirectHost:  redirectHost,
	}
}
