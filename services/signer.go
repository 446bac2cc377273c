package services

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidKeyID = errors.New("invalid key id")

const defaultKeyID = "default"

// TokenSigner signs and verifies access tokens with named HS256 keys.
type TokenSigner struct {
	keys map[string][]byte
}

// NewTokenSigner creates a new Signer instance
func NewTokenSigner() *TokenSigner {
	return &TokenSigner{
		keys: make(map[string][]byte),
	}
}

// AddKeySigner registers the default signing key.
func (s *TokenSigner) AddKeySigner(secretKey string) {
	s.AddNamedKeySigner(defaultKeyID, secretKey)
}

// AddNamedKeySigner registers a signing key under an explicit key ID, which
// is stamped into the kid header so Parse can pick the right key back.
func (s *TokenSigner) AddNamedKeySigner(keyID, secretKey string) {
	s.keys[keyID] = []byte(secretKey)
}

func (s *TokenSigner) Sign(claims jwt.Claims, keyID string) (string, error) {
	if keyID == "" { // using default signer
		keyID = defaultKeyID
	}

	secret, ok := s.keys[keyID]
	if !ok {
		return "", ErrInvalidKeyID
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = keyID

	tokenString, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// Parse verifies the signature of a token this signer issued and returns
// its claims. Lifetime is not judged here, the ledger owns expiry.
func (s *TokenSigner) Parse(tokenValue string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenValue, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}

		keyID := defaultKeyID
		if kid, ok := token.Header["kid"].(string); ok && kid != "" {
			keyID = kid
		}

		secret, ok := s.keys[keyID]
		if !ok {
			return nil, ErrInvalidKeyID
		}

		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	return claims, nil
}
