package wallet

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// FileKeyStore persists the identity's spending key encrypted in a per-wallet
// .env file under the wallet directory. The database never sees the key.
type FileKeyStore struct {
	Dir        string
	Passphrase string
}

func (f *FileKeyStore) path(address string) string {
	return filepath.Join(f.Dir, address+".env")
}

// SaveKey encrypts the spending key under the passphrase and writes the
// wallet file.
func (f *FileKeyStore) SaveKey(address, key string) error {
	if err := os.MkdirAll(f.Dir, os.ModePerm); err != nil {
		return fmt.Errorf("creating wallet directory: %w", err)
	}

	encrypted, err := Encrypt(key, f.Passphrase)
	if err != nil {
		return fmt.Errorf("encrypting spending key: %w", err)
	}

	err = godotenv.Write(map[string]string{
		"ADDRESS":                address,
		"ENCRYPTED_SPENDING_KEY": encrypted,
	}, f.path(address))
	if err != nil {
		return fmt.Errorf("saving wallet file: %w", err)
	}

	return nil
}

// LoadKey reads the wallet file and decrypts the spending key.
func (f *FileKeyStore) LoadKey(address string) (string, error) {
	values, err := godotenv.Read(f.path(address))
	if err != nil {
		return "", fmt.Errorf("loading wallet file: %w", err)
	}

	encrypted := values["ENCRYPTED_SPENDING_KEY"]
	if encrypted == "" {
		return "", fmt.Errorf("encrypted spending key not found in wallet file")
	}

	key, err := Decrypt(encrypted, f.Passphrase)
	if err != nil {
		return "", fmt.Errorf("decrypting spending key: %w", err)
	}

	return key, nil
}
