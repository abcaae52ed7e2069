package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/stagecraft/pkg/domain"
	"github.com/aretw0/stagecraft/pkg/ports"
)

// ErrMissingEnvelope is returned when an encrypted store holds a plain record.
var ErrMissingEnvelope = errors.New("task is missing encrypted data envelope")

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys are old keys tried when decryption with ActiveKey fails.
	FallbackKeys [][]byte
}

type encryptionMiddleware struct {
	next ports.TaskStore
	keys *keyring
}

// NewEncryptionMiddleware seals task records with AES-GCM.
// The envelope keeps the id, status and timestamps readable so listings work;
// errors, run ids and results only exist inside the sealed blob.
func NewEncryptionMiddleware(config EncryptionConfig) (Middleware, error) {
	if len(config.ActiveKey) != 32 {
		return nil, fmt.Errorf("active key must be 32 bytes (AES-256), got %d", len(config.ActiveKey))
	}
	keys, err := newKeyring(config)
	if err != nil {
		return nil, err
	}
	return func(next ports.TaskStore) ports.TaskStore {
		return &encryptionMiddleware{next: next, keys: keys}
	}, nil
}

func (m *encryptionMiddleware) Save(ctx context.Context, task *domain.Task) error {
	plainText, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}
	ciphertext, err := m.keys.seal(plainText)
	if err != nil {
		return fmt.Errorf("failed to encrypt task: %w", err)
	}

	envelope := &domain.Task{
		ID:        task.ID,
		Status:    task.Status,
		Stopped:   task.Stopped,
		CreatedAt: task.CreatedAt,
		UpdatedAt: task.UpdatedAt,
		Sealed:    base64.StdEncoding.EncodeToString(ciphertext),
	}
	for _, a := range task.Agents {
		envelope.Agents = append(envelope.Agents, &domain.AgentRun{Agent: a.Agent, Status: a.Status})
	}
	return m.next.Save(ctx, envelope)
}

func (m *encryptionMiddleware) Load(ctx context.Context, id string) (*domain.Task, error) {
	envelope, err := m.next.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if envelope.Sealed == "" {
		return nil, ErrMissingEnvelope
	}

	ciphertext, err := base64.StdEncoding.DecodeString(envelope.Sealed)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}
	plainText, err := m.keys.open(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt task: %w", err)
	}

	var task domain.Task
	if err := json.Unmarshal(plainText, &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decrypted task: %w", err)
	}
	return &task, nil
}

func (m *encryptionMiddleware) Delete(ctx context.Context, id string) error {
	return m.next.Delete(ctx, id)
}

func (m *encryptionMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

// keyring seals with the active key and opens with the active key, then the fallbacks.
type keyring struct {
	aeads []cipher.AEAD
}

func newKeyring(config EncryptionConfig) (*keyring, error) {
	k := &keyring{}
	for i, key := range append([][]byte{config.ActiveKey}, config.FallbackKeys...) {
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("key %d: %w", i, err)
		}
		aead, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("key %d: %w", i, err)
		}
		k.aeads = append(k.aeads, aead)
	}
	return k, nil
}

// seal prefixes the ciphertext with its random nonce.
func (k *keyring) seal(plain []byte) ([]byte, error) {
	active := k.aeads[0]
	nonce := make([]byte, active.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return active.Seal(nonce, nonce, plain, nil), nil
}

func (k *keyring) open(data []byte) ([]byte, error) {
	for _, aead := range k.aeads {
		n := aead.NonceSize()
		if len(data) < n {
			return nil, errors.New("ciphertext too short")
		}
		if plain, err := aead.Open(nil, data[:n], data[n:], nil); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}
