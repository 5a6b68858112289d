package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	apperrors "github.com/jrsteele09/kay-gateway/internal/errors"
	"github.com/jrsteele09/kay-gateway/token/keys"
)

// Inspector validates session tokens. It never touches storage: a token that
// verifies may still have been revoked.
type Inspector struct {
	signer keys.Signer
	issuer string
	now    func() time.Time
}

func NewInspector(signer keys.Signer, issuer string, opts ...Option) *Inspector {
	o := buildOptions(opts)
	return &Inspector{
		signer: signer,
		issuer: issuer,
		now:    o.now,
	}
}

// Verify checks signature, issuer and expiry. Expired tokens fail with
// ErrTokenExpired, everything else with ErrInvalidToken.
func (i *Inspector) Verify(rawToken string) (*SessionClaims, error) {
	return i.parse(rawToken,
		jwtlib.WithTimeFunc(i.now),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithIssuedAt(),
		jwtlib.WithIssuer(i.issuer),
	)
}

// VerifySignature checks only that the token was signed by us. Expiry is
// ignored so an expired token can still be revoked.
func (i *Inspector) VerifySignature(rawToken string) (*SessionClaims, error) {
	return i.parse(rawToken, jwtlib.WithoutClaimsValidation())
}

func (i *Inspector) parse(rawToken string, parserOpts ...jwtlib.ParserOption) (*SessionClaims, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, apperrors.ErrTokenMissing
	}

	parserOpts = append(parserOpts, jwtlib.WithValidMethods([]string{i.signer.GetSigningMethod().Alg()}))
	token, err := jwtlib.ParseWithClaims(rawToken, jwtlib.MapClaims{}, i.signer.GetVerificationKey, parserOpts...)
	if err != nil {
		if errors.Is(err, jwtlib.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: error extracting claims from token", apperrors.ErrInvalidToken)
	}

	if typ, _ := claims[ClaimType].(string); typ != SessionTokenType {
		return nil, fmt.Errorf("%w: unexpected token type", apperrors.ErrInvalidToken)
	}
	deviceSessionID, _ := claims[ClaimDeviceSessionID].(string)
	if deviceSessionID == "" {
		return nil, fmt.Errorf("%w: token missing %s claim", apperrors.ErrInvalidToken, ClaimDeviceSessionID)
	}

	out := &SessionClaims{DeviceSessionID: deviceSessionID}
	out.ID, _ = claims["jti"].(string)
	out.Issuer, _ = claims["iss"].(string)
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		out.IssuedAt = iat.Time
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out, nil
}
