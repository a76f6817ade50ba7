package service

import (
	stderrors "errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pesio-ai/be-ar-invoicing/internal/errors"
)

// StateClaims is the signed OAuth state parameter. The JWT ID is the
// one-time nonce that keys the stored PKCE verifier.
type StateClaims struct {
	Relay  string `json:"relay,omitempty"`
	Origin string `json:"origin"`
	jwt.RegisteredClaims
}

// Nonce returns the one-time nonce.
func (c *StateClaims) Nonce() string {
	return c.ID
}

// StateSigner signs and verifies OAuth state with HMAC-SHA256.
type StateSigner struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewStateSigner creates a signer. now may be nil.
func NewStateSigner(secret []byte, issuer string, ttl time.Duration, now func() time.Time) *StateSigner {
	if now == nil {
		now = time.Now
	}
	return &StateSigner{secret: secret, issuer: issuer, ttl: ttl, now: now}
}

// Sign returns the state for a new authorization.
func (s *StateSigner) Sign(nonce, relay, origin string) (string, error) {
	now := s.now()
	claims := StateClaims{
		Relay:  relay,
		Origin: origin,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        nonce,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternal, "failed to sign oauth state")
	}
	return signed, nil
}

// Verify checks the signature, issuer and expiry of a state value.
func (s *StateSigner) Verify(state string) (*StateClaims, error) {
	var claims StateClaims
	_, err := jwt.ParseWithClaims(state, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, mapJWTError(err)
	}
	if claims.ID == "" {
		return nil, errors.InvalidInput("state", "authorization state has no nonce")
	}
	return &claims, nil
}

// mapJWTError translates jwt library errors to application errors.
func mapJWTError(err error) error {
	if stderrors.Is(err, jwt.ErrTokenExpired) {
		return &errors.Error{Code: errors.ErrCodeInvalidInput, Field: "state", Message: "authorization request expired, please try again", Cause: err}
	}
	return &errors.Error{Code: errors.ErrCodeInvalidInput, Field: "state", Message: "invalid authorization state", Cause: err}
}
