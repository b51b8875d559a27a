package stripe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifySignatureRoundTrip(t *testing.T) {
	payload := []byte(`{"type":"checkout.session.completed"}`)
	header := SignHeader(payload, "1700000000", "whsec_test")

	require.NoError(t, VerifySignature(payload, header, "whsec_test"))
}

func TestVerifySignatureTamperedBody(t *testing.T) {
	payload := []byte(`{"amount_total":500}`)
	header := SignHeader(payload, "1700000000", "whsec_test")

	tampered := []byte(`{"amount_total":2500}`)
	assert.ErrorIs(t, VerifySignature(tampered, header, "whsec_test"), ErrInvalidSignature)
}

func TestVerifySignatureWrongSecret(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	header := SignHeader(payload, "1700000000", "whsec_test")

	assert.ErrorIs(t, VerifySignature(payload, header, "whsec_other"), ErrInvalidSignature)
}

func TestVerifySignatureTamperedTimestamp(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	header := SignHeader(payload, "1700000000", "whsec_test")

	// Replaying with a different timestamp breaks the signed payload
	forged := "t=1700009999," + header[len("t=1700000000,"):]
	assert.ErrorIs(t, VerifySignature(payload, forged, "whsec_test"), ErrInvalidSignature)
}

func TestVerifySignatureMalformedHeaders(t *testing.T) {
	payload := []byte(`{}`)

	assert.ErrorIs(t, VerifySignature(payload, "", "whsec_test"), ErrMissingSignature)
	assert.ErrorIs(t, VerifySignature(payload, "v1=abc", "whsec_test"), ErrBadSignature)
	assert.ErrorIs(t, VerifySignature(payload, "t=1700000000", "whsec_test"), ErrBadSignature)
	assert.ErrorIs(t, VerifySignature(payload, "t=1700000000,v1=nothex", "whsec_test"), ErrBadSignature)
}
