package wallet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	encrypted, err := Encrypt("secret-spending-key", "hunter2")
	require.NoError(t, err)
	assert.NotContains(t, encrypted, "secret-spending-key")

	plain, err := Decrypt(encrypted, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "secret-spending-key", plain)
}

func TestDecryptWrongPassphrase(t *testing.T) {
	encrypted, err := Encrypt("secret-spending-key", "hunter2")
	require.NoError(t, err)

	_, err = Decrypt(encrypted, "hunter3")
	assert.Error(t, err)
}

func TestDecryptMalformedCiphertext(t *testing.T) {
	_, err := Decrypt("not-a-ciphertext", "hunter2")
	assert.Error(t, err)
}

func TestFileKeyStoreRoundTrip(t *testing.T) {
	keys := &FileKeyStore{Dir: t.TempDir(), Passphrase: "hunter2"}

	require.NoError(t, keys.SaveKey("zaddr-self", "secret-spending-key"))

	key, err := keys.LoadKey("zaddr-self")
	require.NoError(t, err)
	assert.Equal(t, "secret-spending-key", key)

	_, err = keys.LoadKey("zaddr-unknown")
	assert.Error(t, err)
}
