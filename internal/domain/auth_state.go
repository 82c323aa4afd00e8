package domain

// AuthState is the published authentication state of the session
type AuthState int

const (
	// StateUnknown is only observed before bootstrap completes its first step
	StateUnknown AuthState = iota
	// StateUnauthenticated means no usable session is stored
	StateUnauthenticated
	// StateAuthenticated means a backend session is stored and assumed valid
	StateAuthenticated
)

// String returns the state name used in logs and metrics
func (s AuthState) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Credentials holds the backend session tokens and the identity-provider tokens they were minted from
type Credentials struct {
	AccessToken                 string `json:"accessToken"`
	RefreshToken                string `json:"refreshToken,omitempty"`
	IdentityProviderAccessToken string `json:"identityProviderAccessToken,omitempty"`
	IdentityProviderIDToken     string `json:"identityProviderIdToken,omitempty"`
}

// IdentityCredentials is the pair returned by an interactive identity-provider login
type IdentityCredentials struct {
	AccessToken string
	IDToken     string
}
