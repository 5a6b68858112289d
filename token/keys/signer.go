package keys

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/kay-gateway/internal/config"
)

// minHMACSecretLength rejects secrets too short for HS256.
const minHMACSecretLength = 32

// Signer is an interface for signing and verifying JWT tokens
type Signer interface {
	// Sign creates a signed JWT token from claims
	Sign(claims jwt.MapClaims) (string, error)

	// GetVerificationKey is a jwt.Keyfunc returning the key to verify token with
	GetVerificationKey(token *jwt.Token) (any, error)

	// GetSigningMethod returns the JWT signing method used
	GetSigningMethod() jwt.SigningMethod
}

// HMACSigner implements Signer using symmetric HMAC-SHA256
type HMACSigner struct {
	secret []byte
}

func NewHMACSigner(secret string) (*HMACSigner, error) {
	if len(secret) < minHMACSecretLength {
		return nil, fmt.Errorf("hmac secret must be at least %d bytes", minHMACSecretLength)
	}
	return &HMACSigner{secret: []byte(secret)}, nil
}

func (h *HMACSigner) Sign(claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(h.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token with HMAC: %w", err)
	}
	return signedToken, nil
}

func (h *HMACSigner) GetVerificationKey(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return h.secret, nil
}

func (h *HMACSigner) GetSigningMethod() jwt.SigningMethod {
	return jwt.SigningMethodHS256
}

// KeyPairSigner implements Signer using RSA with RS256
type KeyPairSigner struct {
	keyPair *KeyPair
}

func NewKeyPairSigner(keyPair *KeyPair) *KeyPairSigner {
	return &KeyPairSigner{
		keyPair: keyPair,
	}
}

func (a *KeyPairSigner) Sign(claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(a.keyPair.GetSigningMethod(), claims)
	token.Header["kid"] = a.keyPair.KeyID

	signedToken, err := token.SignedString(a.keyPair.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token with asymmetric key: %w", err)
	}
	return signedToken, nil
}

func (a *KeyPairSigner) GetVerificationKey(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return a.keyPair.PublicKey, nil
}

func (a *KeyPairSigner) GetSigningMethod() jwt.SigningMethod {
	return a.keyPair.GetSigningMethod()
}

// NewSignerFromConfig prefers an RSA key when one is configured and falls
// back to the HMAC secret.
func NewSignerFromConfig(cfg config.SecurityConfig) (Signer, error) {
	if pemData := cfg.GetSigningKeyPEM(); pemData != "" {
		kp, err := LoadKeyPairFromPEM(cfg.GetSigningKeyID(), pemData)
		if err != nil {
			return nil, fmt.Errorf("[NewSignerFromConfig] %w", err)
		}
		return NewKeyPairSigner(kp), nil
	}
	secret := cfg.GetSigningSecret()
	if secret == "" {
		return nil, errors.New("[NewSignerFromConfig] SESSION_SIGNING_SECRET or SESSION_SIGNING_KEY_PEM must be set")
	}
	return NewHMACSigner(secret)
}
