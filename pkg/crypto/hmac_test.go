package crypto_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gigmarket/backend/pkg/crypto"
)

func TestSignHMAC_KnownVector(t *testing.T) {
	// RFC 4231 test case 2.
	got := crypto.SignHMAC("Jefe", []byte("what do ya want for nothing?"))
	assert.Equal(t, "5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843", got)
}

func TestVerifyHMAC(t *testing.T) {
	payload := []byte("order_1|pay_1")
	sig := crypto.SignHMAC("secret", payload)

	assert.True(t, crypto.VerifyHMAC("secret", payload, sig))
	assert.False(t, crypto.VerifyHMAC("other", payload, sig))
	assert.False(t, crypto.VerifyHMAC("secret", []byte("order_1|pay_2"), sig))
	assert.False(t, crypto.VerifyHMAC("", payload, sig))
	assert.False(t, crypto.VerifyHMAC("secret", payload, ""))
}

func TestVerifyHMAC_AnyFlippedCharacterFails(t *testing.T) {
	payload := []byte("order_9|pay_9")
	sig := crypto.SignHMAC("k", payload)

	for i := range sig {
		b := []byte(sig)
		if b[i] == 'a' {
			b[i] = 'b'
		} else {
			b[i] = 'a'
		}
		assert.False(t, crypto.VerifyHMAC("k", payload, string(b)), "flip at %d", i)
	}
}
