package secrets

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func testCipher(t *testing.T) *Cipher {
	t.Helper()
	c, err := NewCipher(bytes.Repeat([]byte{0x42}, 32))
	require.NoError(t, err)
	return c
}

func TestNewCipherRejectsBadKeyLength(t *testing.T) {
	t.Parallel()

	_, err := NewCipher([]byte("too-short"))
	require.ErrorIs(t, err, ErrKeyLengthInvalid)

	_, err = NewCipher(bytes.Repeat([]byte{0x01}, 33))
	require.ErrorIs(t, err, ErrKeyLengthInvalid)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	t.Parallel()
	c := testCipher(t)

	sealed, err := c.Encrypt("Xy7kPq2mNv9w")
	require.NoError(t, err)
	require.NotEqual(t, "Xy7kPq2mNv9w", sealed)

	plain, err := c.Decrypt(sealed)
	require.NoError(t, err)
	require.Equal(t, "Xy7kPq2mNv9w", plain)
}

func TestEncryptEmptyStaysEmpty(t *testing.T) {
	t.Parallel()
	c := testCipher(t)

	sealed, err := c.Encrypt("")
	require.NoError(t, err)
	require.Empty(t, sealed)

	plain, err := c.Decrypt("")
	require.NoError(t, err)
	require.Empty(t, plain)
}

func TestEncryptIsNonDeterministic(t *testing.T) {
	t.Parallel()
	c := testCipher(t)

	first, err := c.Encrypt("same-password")
	require.NoError(t, err)
	second, err := c.Encrypt("same-password")
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}

func TestDecryptRejectsCorruptedCiphertext(t *testing.T) {
	t.Parallel()
	c := testCipher(t)

	_, err := c.Decrypt("not base64!!!")
	require.ErrorIs(t, err, ErrCiphertextCorrupted)

	_, err = c.Decrypt("YWJj")
	require.ErrorIs(t, err, ErrCiphertextCorrupted)
}

func TestDecryptRejectsWrongKey(t *testing.T) {
	t.Parallel()

	a := testCipher(t)
	b, err := NewCipher(bytes.Repeat([]byte{0x24}, 32))
	require.NoError(t, err)

	sealed, err := a.Encrypt("secret")
	require.NoError(t, err)

	_, err = b.Decrypt(sealed)
	require.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestDecryptOrPlaintextFallsBackForLegacyRows(t *testing.T) {
	t.Parallel()
	c := testCipher(t)

	// Legacy rows stored the password in the clear.
	require.Equal(t, "legacy-password", c.DecryptOrPlaintext("legacy-password"))

	sealed, err := c.Encrypt("modern-password")
	require.NoError(t, err)
	require.Equal(t, "modern-password", c.DecryptOrPlaintext(sealed))
}

func TestDeriveCipher(t *testing.T) {
	t.Parallel()

	_, err := DeriveCipher("passphrase", []byte("short"))
	require.ErrorIs(t, err, ErrSaltTooShort)

	salt := []byte("lexarbitra-credentials-v1")
	a, err := DeriveCipher("passphrase", salt)
	require.NoError(t, err)
	b, err := DeriveCipher("passphrase", salt)
	require.NoError(t, err)

	sealed, err := a.Encrypt("secret")
	require.NoError(t, err)
	plain, err := b.Decrypt(sealed)
	require.NoError(t, err)
	require.Equal(t, "secret", plain)
}
