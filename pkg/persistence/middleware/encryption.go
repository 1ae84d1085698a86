package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/blobrelay/pkg/domain"
	"github.com/aretw0/blobrelay/pkg/ports"
)

// KeySize is the required key length (AES-256).
const KeySize = 32

// ErrInvalidKey is returned when a configured key is not KeySize bytes long.
var ErrInvalidKey = errors.New("encryption key must be 32 bytes (AES-256)")

// ErrNotSealed is returned when a checkpoint was stored without encryption.
var ErrNotSealed = errors.New("checkpoint is missing its sealed envelope")

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new checkpoints.
	ActiveKey []byte

	// FallbackKeys are older keys tried when decryption with ActiveKey fails,
	// so keys can be rotated without rewriting existing checkpoints.
	FallbackKeys [][]byte
}

func (c EncryptionConfig) validate() error {
	if len(c.ActiveKey) != KeySize {
		return ErrInvalidKey
	}
	for i, k := range c.FallbackKeys {
		if len(k) != KeySize {
			return fmt.Errorf("fallback key %d: %w", i, ErrInvalidKey)
		}
	}
	return nil
}

type encryptionMiddleware struct {
	next   ports.StateStore
	config EncryptionConfig
}

// NewEncryptionMiddleware creates a middleware that seals checkpoints with AES-GCM.
// The stored envelope keeps only the fields needed to list and monitor
// instances; fetched content, history and output live inside the ciphertext.
func NewEncryptionMiddleware(config EncryptionConfig) (Middleware, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	return func(next ports.StateStore) ports.StateStore {
		return &encryptionMiddleware{
			next:   next,
			config: config,
		}
	}, nil
}

func (m *encryptionMiddleware) Save(ctx context.Context, instanceID string, inst *domain.Instance) error {
	plain := *inst
	plain.Sealed = nil
	plainText, err := json.Marshal(&plain)
	if err != nil {
		return fmt.Errorf("failed to marshal instance: %w", err)
	}

	ciphertext, err := encrypt(plainText, m.config.ActiveKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt instance: %w", err)
	}

	envelope := &domain.Instance{
		ID:        inst.ID,
		ObjectID:  inst.ObjectID,
		Phase:     inst.Phase,
		StepIndex: inst.StepIndex,
		Attempt:   inst.Attempt,
		CreatedAt: inst.CreatedAt,
		UpdatedAt: inst.UpdatedAt,
		Sealed:    ciphertext,
	}
	return m.next.Save(ctx, instanceID, envelope)
}

func (m *encryptionMiddleware) Load(ctx context.Context, instanceID string) (*domain.Instance, error) {
	envelope, err := m.next.Load(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	// Fail closed: a plain checkpoint under an encrypting store is treated as tampering.
	if len(envelope.Sealed) == 0 {
		return nil, ErrNotSealed
	}

	plainText, err := decryptWithRotation(envelope.Sealed, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt instance: %w", err)
	}

	var inst domain.Instance
	if err := json.Unmarshal(plainText, &inst); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decrypted instance: %w", err)
	}
	return &inst, nil
}

func (m *encryptionMiddleware) Delete(ctx context.Context, instanceID string) error {
	return m.next.Delete(ctx, instanceID)
}

func (m *encryptionMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

// Helpers

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}

	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}

	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce, sealed := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, sealed, nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
