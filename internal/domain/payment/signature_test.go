package payment

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	secret := "whsec_test"
	body := []byte(`{"id":1,"event":"charge.success"}`)

	assert.True(t, VerifySignature([]byte(secret), body, sign(secret, body)))
	assert.False(t, VerifySignature([]byte(secret), body, sign("wrong-secret", body)))
	assert.False(t, VerifySignature([]byte(secret), []byte(`tampered`), sign(secret, body)))
	assert.False(t, VerifySignature([]byte(secret), body, ""))
	assert.False(t, VerifySignature([]byte(secret), body, "not-hex"))
}
