package ipfs

import "strings"

// DefaultGateway is used when no gateway is configured.
const DefaultGateway = "https://ipfs.io/ipfs/"

// ResolveGatewayURL rewrites an ipfs:// URI into a directly fetchable HTTP
// URL via gateway prefix substitution. Anything else passes through
// unchanged, so already-HTTP URIs keep working.
func ResolveGatewayURL(uri, gateway string) string {
	if uri == "" {
		return ""
	}
	if gateway == "" {
		gateway = DefaultGateway
	}
	if rest, ok := strings.CutPrefix(uri, "ipfs://"); ok {
		return gateway + rest
	}
	return uri
}
