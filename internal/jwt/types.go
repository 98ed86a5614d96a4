package jwt

import (
	"github.com/golang-jwt/jwt/v5"
)

// Auth mints LiveKit access tokens and verifies tokens signed with the same API key pair.
type Auth interface {
	// Sign issues a token for identity carrying grant.
	Sign(identity string, grant VideoGrant) (string, error)
	Verify(tokenString string) (*AccessClaims, error)
	// VerifyBody checks a webhook Authorization token and that its sha256 claim matches body.
	VerifyBody(tokenString string, body []byte) error
	// SignBody produces a webhook Authorization token for body, as the room service does.
	SignBody(body []byte) (string, error)
}

// VideoGrant is the LiveKit "video" claim.
type VideoGrant struct {
	RoomCreate bool   `json:"roomCreate,omitempty"`
	RoomList   bool   `json:"roomList,omitempty"`
	RoomAdmin  bool   `json:"roomAdmin,omitempty"`
	RoomJoin   bool   `json:"roomJoin,omitempty"`
	Room       string `json:"room,omitempty"`
}

type AccessClaims struct {
	Video  *VideoGrant `json:"video,omitempty"`
	SHA256 string      `json:"sha256,omitempty"`
	jwt.RegisteredClaims
}
