package wellknown

// OpenIDConfigurationPath is the discovery document path appended to an issuer URL.
const OpenIDConfigurationPath = "/.well-known/openid-configuration"

// OpenIDConfiguration is the subset of the OpenID Connect discovery document
// (https://openid.net/specs/openid-connect-discovery-1_0.html) that this
// module reads. Unknown members are ignored on decode.
type OpenIDConfiguration struct {
	Issuer                           string   `json:"issuer"`
	JwksURI                          string   `json:"jwks_uri"`
	AuthorizationEndpoint            string   `json:"authorization_endpoint,omitempty"`
	TokenEndpoint                    string   `json:"token_endpoint,omitempty"`
	UserinfoEndpoint                 string   `json:"userinfo_endpoint,omitempty"`
	ResponseTypesSupported           []string `json:"response_types_supported,omitempty"`
	IDTokenSigningAlgValuesSupported []string `json:"id_token_signing_alg_values_supported,omitempty"`
}
