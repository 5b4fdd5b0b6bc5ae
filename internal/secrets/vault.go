package secrets

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	json "github.com/goccy/go-json"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	vaultDirMode  = 0o700
	vaultFileMode = 0o600

	saltSize = 16

	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// ErrDecrypt is returned when the vault cannot be opened with the configured passphrase.
var ErrDecrypt = errors.New("secrets: unable to decrypt vault")

// FileVault is a Backend storing all records in one encrypted file.
//
// File layout: salt (16 bytes) | nonce (24 bytes) | sealed JSON array of records.
type FileVault struct {
	path       string
	passphrase []byte
	mu         sync.RWMutex
}

var _ Backend = (*FileVault)(nil)

// NewFileVault returns a vault at path protected by passphrase. The file is created on
// the first Save.
func NewFileVault(path, passphrase string) (*FileVault, error) {
	if path == "" {
		return nil, errors.New("secrets: vault path is required")
	}
	if passphrase == "" {
		return nil, errors.New("secrets: vault passphrase is required")
	}
	return &FileVault{path: filepath.Clean(path), passphrase: []byte(passphrase)}, nil
}

// Load decrypts and returns the stored records. A missing file holds no records.
func (v *FileVault) Load(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	data, err := os.ReadFile(v.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read vault: %w", err)
	}

	if len(data) < saltSize+chacha20poly1305.NonceSizeX {
		return nil, ErrDecrypt
	}
	salt := data[:saltSize]
	nonce := data[saltSize : saltSize+chacha20poly1305.NonceSizeX]
	sealed := data[saltSize+chacha20poly1305.NonceSizeX:]

	aead, err := chacha20poly1305.NewX(v.deriveKey(salt))
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	plain, err := aead.Open(nil, nonce, sealed, salt)
	if err != nil {
		return nil, ErrDecrypt
	}

	var records []Record
	if err := json.Unmarshal(plain, &records); err != nil {
		return nil, fmt.Errorf("decode vault: %w", err)
	}
	return records, nil
}

// Save encrypts records with a fresh salt and nonce and replaces the vault file.
func (v *FileVault) Save(ctx context.Context, records []Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if records == nil {
		records = []Record{}
	}

	plain, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode vault: %w", err)
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("generate salt: %w", err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}

	aead, err := chacha20poly1305.NewX(v.deriveKey(salt))
	if err != nil {
		return fmt.Errorf("init cipher: %w", err)
	}

	out := make([]byte, 0, saltSize+len(nonce)+len(plain)+aead.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, plain, salt)

	v.mu.Lock()
	defer v.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(v.path), vaultDirMode); err != nil {
		return fmt.Errorf("create vault directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(v.path), ".vault-*")
	if err != nil {
		return fmt.Errorf("create temp vault: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp vault: %w", err)
	}
	if err := tmp.Chmod(vaultFileMode); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp vault: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp vault: %w", err)
	}
	if err := os.Rename(tmpName, v.path); err != nil {
		return fmt.Errorf("replace vault: %w", err)
	}

	return nil
}

func (v *FileVault) deriveKey(salt []byte) []byte {
	return argon2.IDKey(v.passphrase, salt, argonTime, argonMemory, argonThreads, chacha20poly1305.KeySize)
}
