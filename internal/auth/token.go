package auth

import (
	"crypto/ed25519"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/knightwatch/arena/internal/arena"
)

// Service signs and verifies the bearer tokens handed out at login.
// Tokens carry the user id in the sub claim and expire after ttl; a ttl
// of zero issues non-expiring tokens.
type Service struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
	ttl  time.Duration
}

// NewService generates a fresh ed25519 key pair. Tokens signed by a
// previous process die with it, which is acceptable for ephemeral
// deployments and tests.
func NewService(ttl time.Duration) (*Service, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, err
	}
	return &Service{priv: priv, pub: pub, ttl: ttl}, nil
}

// NewServiceFromFiles loads a raw ed25519 key pair from disk so tokens
// survive restarts.
func NewServiceFromFiles(privPath, pubPath string, ttl time.Duration) (*Service, error) {
	priv, err := os.ReadFile(privPath)
	if err != nil {
		return nil, err
	}
	pub, err := os.ReadFile(pubPath)
	if err != nil {
		return nil, err
	}
	return &Service{priv: ed25519.PrivateKey(priv), pub: ed25519.PublicKey(pub), ttl: ttl}, nil
}

// IssueToken signs a token for the user.
func (s *Service) IssueToken(userID uuid.UUID) (string, error) {
	claims := jwt.MapClaims{
		"sub": userID.String(),
		"iat": time.Now().Unix(),
	}
	if s.ttl > 0 {
		claims["exp"] = time.Now().Add(s.ttl).Unix()
	}
	return jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(s.priv)
}

// VerifyToken validates signature and expiry and returns the user id.
// Every failure mode reads as Unauthorized to the caller.
func (s *Service) VerifyToken(token string) (uuid.UUID, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, arena.E(arena.Unauthorized, "unexpected signing method %v", t.Header["alg"])
		}
		return s.pub, nil
	})
	if err != nil {
		return uuid.Nil, arena.Wrap(arena.Unauthorized, err, "invalid token")
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return uuid.Nil, arena.E(arena.Unauthorized, "invalid token claims")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return uuid.Nil, arena.E(arena.Unauthorized, "token has no subject")
	}
	userID, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, arena.E(arena.Unauthorized, "malformed token subject")
	}
	return userID, nil
}
