// Package api provides the HTTP surface of the passkey backend.
package api

// APIVersion is the capability level reported by /status so clients can
// detect which features this server supports.
const APIVersion = 1

// Capabilities lists the features available at the current API version.
var Capabilities = []string{
	"webauthn",
	"discoverable-login",
	"jwt-sessions",
}

// StatusResponse is the response from the /status endpoint.
type StatusResponse struct {
	Status       string   `json:"status"`
	Service      string   `json:"service"`
	APIVersion   int      `json:"api_version"`
	Capabilities []string `json:"capabilities,omitempty"`
}
