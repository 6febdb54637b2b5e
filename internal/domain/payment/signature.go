package payment

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
)

// VerifySignature checks the x-signature header of a webhook delivery:
// HMAC-SHA512 over the raw body using the gateway shared secret, hex encoded.
// The comparison is constant-time.
func VerifySignature(secret, body []byte, signature string) bool {
	mac := hmac.New(sha512.New, secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
