package keys_test

import (
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/kay-gateway/internal/config"
	"github.com/jrsteele09/kay-gateway/token/keys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestHMACSigner(t *testing.T) {
	_, err := keys.NewHMACSigner("short")
	require.Error(t, err)

	signer, err := keys.NewHMACSigner(testSecret)
	require.NoError(t, err)

	raw, err := signer.Sign(jwt.MapClaims{"sub": "dev-1"})
	require.NoError(t, err)

	token, err := jwt.Parse(raw, signer.GetVerificationKey)
	require.NoError(t, err)
	assert.True(t, token.Valid)
	assert.Equal(t, jwt.SigningMethodHS256, signer.GetSigningMethod())
}

func TestKeyPairSignerRoundTripViaPEM(t *testing.T) {
	kp, err := keys.GenerateRSAKeyPair("kid-1", 1024)
	require.NoError(t, err)

	loaded, err := keys.LoadKeyPairFromPEM("kid-1", kp.ExportPrivateKeyPEM())
	require.NoError(t, err)

	signer := keys.NewKeyPairSigner(loaded)
	raw, err := signer.Sign(jwt.MapClaims{"sub": "dev-1"})
	require.NoError(t, err)

	token, err := jwt.Parse(raw, keys.NewKeyPairSigner(kp).GetVerificationKey)
	require.NoError(t, err)
	assert.Equal(t, "kid-1", token.Header["kid"])
}

func TestSignersRejectForeignAlgorithms(t *testing.T) {
	hmac, err := keys.NewHMACSigner(testSecret)
	require.NoError(t, err)
	kp, err := keys.GenerateRSAKeyPair("kid-1", 2048)
	require.NoError(t, err)
	rsaSigner := keys.NewKeyPairSigner(kp)

	rsaToken, err := rsaSigner.Sign(jwt.MapClaims{"sub": "x"})
	require.NoError(t, err)
	_, err = jwt.Parse(rsaToken, hmac.GetVerificationKey)
	require.Error(t, err)

	hmacToken, err := hmac.Sign(jwt.MapClaims{"sub": "x"})
	require.NoError(t, err)
	_, err = jwt.Parse(hmacToken, rsaSigner.GetVerificationKey)
	require.Error(t, err)
}

func TestLoadKeyPairFromPEMErrors(t *testing.T) {
	_, err := keys.LoadKeyPairFromPEM("k", "not pem")
	require.Error(t, err)

	_, err = keys.LoadKeyPairFromPEM("k", "-----BEGIN CERTIFICATE-----\nAAAA\n-----END CERTIFICATE-----\n")
	require.Error(t, err)
}

func TestNewSignerFromConfig(t *testing.T) {
	config.ResetFile()

	t.Run("missing material", func(t *testing.T) {
		t.Setenv("SESSION_SIGNING_SECRET", "")
		t.Setenv("SESSION_SIGNING_KEY_PEM", "")
		_, err := keys.NewSignerFromConfig(config.Security{})
		require.Error(t, err)
	})

	t.Run("hmac", func(t *testing.T) {
		t.Setenv("SESSION_SIGNING_SECRET", testSecret)
		t.Setenv("SESSION_SIGNING_KEY_PEM", "")
		s, err := keys.NewSignerFromConfig(config.Security{})
		require.NoError(t, err)
		assert.IsType(t, &keys.HMACSigner{}, s)
	})

	t.Run("rsa wins", func(t *testing.T) {
		kp, err := keys.GenerateRSAKeyPair("kid", 2048)
		require.NoError(t, err)
		t.Setenv("SESSION_SIGNING_SECRET", testSecret)
		t.Setenv("SESSION_SIGNING_KEY_PEM", kp.ExportPrivateKeyPEM())
		s, err := keys.NewSignerFromConfig(config.Security{})
		require.NoError(t, err)
		assert.IsType(t, &keys.KeyPairSigner{}, s)
		assert.True(t, strings.HasPrefix(s.GetSigningMethod().Alg(), "RS"))
	})
}
