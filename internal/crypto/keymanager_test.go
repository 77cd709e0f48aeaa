package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptKey(t *testing.T) {
	k := newTestKey(t)

	blob, err := EncryptKey("0x"+k.Hex(), "hunter2")
	require.NoError(t, err)

	keyHex, err := DecryptKey(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, k.Hex(), keyHex)

	_, err = DecryptKey(blob, "wrong")
	assert.Error(t, err)
}

func TestEncryptKeyValidation(t *testing.T) {
	_, err := EncryptKey("abcd", "pw")
	assert.Error(t, err, "short key")

	_, err = EncryptKey("zz", "pw")
	assert.Error(t, err, "non-hex key")

	_, err = EncryptKey(newTestKey(t).Hex(), "")
	assert.Error(t, err, "empty password")
}

func TestLoadGroupKey(t *testing.T) {
	k := newTestKey(t)

	raw, err := LoadGroupKey(KeySource{RawKey: k.Hex(), EncryptedKeyPath: "/does/not/exist"})
	require.NoError(t, err)
	assert.Equal(t, k.Address(), raw.Address())

	blob, err := EncryptKey(k.Hex(), "pw")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "attestor.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	fromFile, err := LoadGroupKey(KeySource{EncryptedKeyPath: path, Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, k.Address(), fromFile.Address())

	_, err = LoadGroupKey(KeySource{})
	assert.Error(t, err)
}
