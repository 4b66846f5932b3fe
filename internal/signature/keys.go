package signature

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

const (
	PublicKeyHeader = "-----BEGIN PUBLIC KEY-----\n"
	PublicKeyFooter = "\n-----END PUBLIC KEY-----"

	DefaultKeyBits = 2048

	privateKeyFile = "signature-key.pem"
	publicKeyFile  = "signature-key.pub"
)

var ErrKeyPairNotFound = errors.New("signature key pair not found")

// KeyPair is the asymmetric pair used to sign and verify machine tokens.
type KeyPair struct {
	Public  *rsa.PublicKey
	Private *rsa.PrivateKey
}

// KeyManager provides the signature key pair for machine authentication.
// Implementations return ErrKeyPairNotFound when no pair is available.
type KeyManager interface {
	GetKeyPair() (*KeyPair, error)
}

// StaticKeyManager serves a key pair held in memory. A nil pair reports
// ErrKeyPairNotFound.
type StaticKeyManager struct {
	mu   sync.RWMutex
	pair *KeyPair
}

func NewStaticKeyManager(pair *KeyPair) *StaticKeyManager {
	return &StaticKeyManager{pair: pair}
}

func (m *StaticKeyManager) GetKeyPair() (*KeyPair, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.pair == nil {
		return nil, ErrKeyPairNotFound
	}
	return m.pair, nil
}

func (m *StaticKeyManager) Set(pair *KeyPair) {
	m.mu.Lock()
	m.pair = pair
	m.mu.Unlock()
}

// FileKeyManager loads the key pair from PEM files in Dir. With Generate set,
// a missing pair is generated and written on first use.
type FileKeyManager struct {
	Dir      string
	Generate bool
	Bits     int

	mu   sync.Mutex
	pair *KeyPair
}

func NewFileKeyManager(dir string, generate bool) *FileKeyManager {
	return &FileKeyManager{Dir: dir, Generate: generate, Bits: DefaultKeyBits}
}

func (m *FileKeyManager) GetKeyPair() (*KeyPair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pair != nil {
		return m.pair, nil
	}

	privatePath := filepath.Join(m.Dir, privateKeyFile)
	if !fileExists(privatePath) {
		if !m.Generate {
			return nil, ErrKeyPairNotFound
		}
		slog.Info("Signature key pair not found, generating new pair", "dir", m.Dir)
		pair, err := GenerateKeyPair(m.Bits)
		if err != nil {
			return nil, err
		}
		if err := SaveKeyPair(m.Dir, pair); err != nil {
			return nil, err
		}
		m.pair = pair
		return pair, nil
	}

	pair, err := LoadKeyPair(m.Dir)
	if err != nil {
		slog.Error("Failed to load signature key pair", "error", err, "dir", m.Dir)
		return nil, err
	}
	slog.Debug("Using existing signature key pair", "dir", m.Dir)
	m.pair = pair
	return pair, nil
}

func GenerateKeyPair(bits int) (*KeyPair, error) {
	if bits <= 0 {
		bits = DefaultKeyBits
	}
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate signature key: %w", err)
	}
	return &KeyPair{Public: &key.PublicKey, Private: key}, nil
}

// SaveKeyPair writes the pair to dir. The private key file is 0600.
func SaveKeyPair(dir string, pair *KeyPair) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	keyBytes, err := x509.MarshalPKCS8PrivateKey(pair.Private)
	if err != nil {
		return fmt.Errorf("failed to marshal private key: %w", err)
	}
	privatePEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyBytes})
	if err := os.WriteFile(filepath.Join(dir, privateKeyFile), privatePEM, 0600); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}

	pubBytes, err := x509.MarshalPKIXPublicKey(pair.Public)
	if err != nil {
		return fmt.Errorf("failed to marshal public key: %w", err)
	}
	publicPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})
	if err := os.WriteFile(filepath.Join(dir, publicKeyFile), publicPEM, 0644); err != nil {
		return fmt.Errorf("failed to write public key: %w", err)
	}

	return nil
}

// LoadKeyPair reads a pair written by SaveKeyPair. The public half is derived
// from the private key and checked against the stored public key.
func LoadKeyPair(dir string) (*KeyPair, error) {
	keyBytes, err := os.ReadFile(filepath.Join(dir, privateKeyFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}

	keyBlock, _ := pem.Decode(keyBytes)
	if keyBlock == nil {
		return nil, fmt.Errorf("failed to decode private key PEM")
	}

	key, err := x509.ParsePKCS8PrivateKey(keyBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	private, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("signature key is not an RSA private key")
	}

	pubBytes, err := os.ReadFile(filepath.Join(dir, publicKeyFile))
	if err == nil {
		pubBlock, _ := pem.Decode(pubBytes)
		if pubBlock == nil {
			return nil, fmt.Errorf("failed to decode public key PEM")
		}
		pub, err := x509.ParsePKIXPublicKey(pubBlock.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse public key: %w", err)
		}
		rsaPub, ok := pub.(*rsa.PublicKey)
		if !ok || !rsaPub.Equal(&private.PublicKey) {
			return nil, fmt.Errorf("public key does not match private key")
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read public key: %w", err)
	}

	return &KeyPair{Public: &private.PublicKey, Private: private}, nil
}

// PublicKeyPEM frames the PKIX encoding of pub as a single base64 line
// between PublicKeyHeader and PublicKeyFooter.
func PublicKeyPEM(pub *rsa.PublicKey) (string, error) {
	if pub == nil {
		return "", fmt.Errorf("public key is nil")
	}
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("failed to marshal public key: %w", err)
	}
	return PublicKeyHeader + base64.StdEncoding.EncodeToString(der) + PublicKeyFooter, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
