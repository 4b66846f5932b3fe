package signature

import (
	"errors"
	"fmt"
	"time"

	"github.com/EternisAI/silo-sidecar/internal/environment"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Issuer is the iss claim expected by the sidecar's static claims verifier.
const Issuer = "wsmaster"

var ErrInvalidToken = errors.New("invalid machine token")

// MachineClaims are carried by tokens that authenticate requests to a
// workspace's secured servers.
type MachineClaims struct {
	WorkspaceID string `json:"workspace_id"`
	jwt.RegisteredClaims
}

// TokenIssuer signs machine tokens with the key pair from a KeyManager.
type TokenIssuer struct {
	keys KeyManager
	now  func() time.Time
}

func NewTokenIssuer(keys KeyManager) *TokenIssuer {
	return &TokenIssuer{keys: keys, now: time.Now}
}

// Issue returns an RS256 token whose kid and audience are the workspace ID,
// matching the sidecar's preshared key server options.
func (i *TokenIssuer) Issue(identity environment.RuntimeIdentity, ttl time.Duration) (string, error) {
	if identity.WorkspaceID == "" {
		return "", fmt.Errorf("workspace ID is required")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("token ttl must be positive, got %s", ttl)
	}

	pair, err := i.keys.GetKeyPair()
	if err != nil {
		return "", fmt.Errorf("get key pair: %w", err)
	}

	now := i.now()
	claims := MachineClaims{
		WorkspaceID: identity.WorkspaceID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    Issuer,
			Subject:   identity.OwnerID,
			Audience:  jwt.ClaimStrings{identity.WorkspaceID},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = identity.WorkspaceID

	signed, err := token.SignedString(pair.Private)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses a token issued for workspaceID and returns its claims.
func (i *TokenIssuer) Verify(tokenString, workspaceID string) (*MachineClaims, error) {
	pair, err := i.keys.GetKeyPair()
	if err != nil {
		return nil, fmt.Errorf("get key pair: %w", err)
	}

	claims := &MachineClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) {
			if kid, _ := t.Header["kid"].(string); kid != workspaceID {
				return nil, fmt.Errorf("unexpected key id %q", kid)
			}
			return pair.Public, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithAudience(workspaceID),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
