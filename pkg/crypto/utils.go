package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

const minKeyBits = 1024

const privateKeyPEMType = "RSA PRIVATE KEY"

// ErrKeyMismatch is returned when a public key does not belong to the
// private key it is validated against.
var ErrKeyMismatch = errors.New("public key does not match private key")

// KeyPair holds the RSA keys used to sign and verify file manifests.
type KeyPair struct {
	PrivateKey *rsa.PrivateKey
	PublicKey  *rsa.PublicKey
}

// GenerateKeyPair creates a fresh RSA key pair. Keys shorter than 1024 bits
// are refused.
func GenerateKeyPair(bits int) (*KeyPair, error) {
	if bits < minKeyBits {
		return nil, fmt.Errorf("key size %d below minimum %d bits", bits, minKeyBits)
	}
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair: %w", err)
	}
	return &KeyPair{PrivateKey: priv, PublicKey: &priv.PublicKey}, nil
}

// Validate checks that the pair's public key belongs to its private key.
func (k *KeyPair) Validate() error {
	pub := &k.PrivateKey.PublicKey
	if pub.N.Cmp(k.PublicKey.N) != 0 || pub.E != k.PublicKey.E {
		return ErrKeyMismatch
	}
	return nil
}

// PrivateKeyToPEM encodes the private key in PKCS1 PEM form for storage.
func PrivateKeyToPEM(priv *rsa.PrivateKey) []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  privateKeyPEMType,
		Bytes: x509.MarshalPKCS1PrivateKey(priv),
	})
}

// PrivateKeyFromPEM decodes a PKCS1 PEM private key.
func PrivateKeyFromPEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	if block.Type != privateKeyPEMType {
		return nil, fmt.Errorf("unexpected PEM block type %q", block.Type)
	}
	priv, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return priv, nil
}
