package jwt

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/imtaco/stream-coordinator/internal/errors"
)

const DefaultTTL = 6 * time.Hour

// NewAuth creates an HS256 authenticator for a LiveKit API key/secret pair.
func NewAuth(apiKey, apiSecret string, ttl time.Duration) Auth {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &jwtAuthImpl{
		apiKey:        apiKey,
		secret:        []byte(apiSecret),
		signingMethod: jwt.SigningMethodHS256,
		ttl:           ttl,
		now:           time.Now,
	}
}

type jwtAuthImpl struct {
	apiKey        string
	secret        []byte
	signingMethod jwt.SigningMethod
	ttl           time.Duration
	now           func() time.Time
}

func (j *jwtAuthImpl) Sign(identity string, grant VideoGrant) (string, error) {
	if grant.RoomJoin && (identity == "" || grant.Room == "") {
		return "", errors.New(ErrInvalidRequest, "identity and room are required to join")
	}

	now := j.now()
	claims := &AccessClaims{
		Video: &grant,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.apiKey,
			Subject:   identity,
			ID:        identity,
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.ttl)),
		},
	}

	return jwt.NewWithClaims(j.signingMethod, claims).SignedString(j.secret)
}

func (j *jwtAuthImpl) Verify(tokenString string) (*AccessClaims, error) {
	tokenString = strings.TrimSpace(strings.TrimPrefix(tokenString, "Bearer "))
	if tokenString == "" {
		return nil, ErrNoToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(token *jwt.Token) (any, error) {
		return j.secret, nil
	},
		jwt.WithValidMethods([]string{j.signingMethod.Alg()}),
		jwt.WithIssuer(j.apiKey),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidToken, err, "parse token")
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (j *jwtAuthImpl) SignBody(body []byte) (string, error) {
	now := j.now()
	claims := &AccessClaims{
		SHA256: bodyChecksum(body),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.apiKey,
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(5 * time.Minute)),
		},
	}
	return jwt.NewWithClaims(j.signingMethod, claims).SignedString(j.secret)
}

func bodyChecksum(body []byte) string {
	sum := sha256.Sum256(body)
	return base64.StdEncoding.EncodeToString(sum[:])
}

func (j *jwtAuthImpl) VerifyBody(tokenString string, body []byte) error {
	claims, err := j.Verify(tokenString)
	if err != nil {
		return err
	}

	expected := bodyChecksum(body)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(claims.SHA256)) != 1 {
		return errors.New(ErrBodyMismatch, "sha256 claim does not match body")
	}
	return nil
}
