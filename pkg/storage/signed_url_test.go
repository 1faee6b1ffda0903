package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignedURLRoundTrip(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)

	token, expiresAt, err := signer.Generate("sec-1", "roster_SEC-1.csv")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	ref, path, parsedExpiry, err := signer.Parse(token, false)
	require.NoError(t, err)
	require.Equal(t, "sec-1", ref)
	require.Equal(t, "roster_SEC-1.csv", path)
	require.WithinDuration(t, expiresAt, parsedExpiry, time.Second)
}

func TestSignedURLExpiry(t *testing.T) {
	signer := NewSignedURLSigner("secret", 10*time.Millisecond)

	token, _, err := signer.Generate("sec-1", "roster.pdf")
	require.NoError(t, err)
	time.Sleep(25 * time.Millisecond)

	_, _, _, err = signer.Parse(token, false)
	require.ErrorContains(t, err, "expired")

	ref, path, _, err := signer.Parse(token, true)
	require.NoError(t, err)
	require.Equal(t, "sec-1", ref)
	require.Equal(t, "roster.pdf", path)
}

func TestSignedURLRejectsTampering(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)

	token, _, err := signer.Generate("sec-1", "roster.csv")
	require.NoError(t, err)

	payload, signature, _ := strings.Cut(token, ".")
	_, _, _, err = signer.Parse(payload+"x."+signature, false)
	require.Error(t, err)

	other := NewSignedURLSigner("other-secret", time.Hour)
	_, _, _, err = other.Parse(token, false)
	require.ErrorContains(t, err, "signature")
}
