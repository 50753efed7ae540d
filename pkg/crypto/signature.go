package crypto

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/json"
	"fmt"

	"github.com/okarpov/peerLink/pkg/fileInfo"
)

// ManifestSigner signs the file manifest sent with a transfer offer so the
// receiver can detect tampering between offer and delivered content.
type ManifestSigner struct {
	keyPair *KeyPair
}

// SignedManifest is the offer payload: the file description plus the sender's
// public key and an RSA signature over the serialized description.
type SignedManifest struct {
	File      fileInfo.FileNode `json:"file"`
	PublicKey []byte            `json:"public_key"`
	Signature []byte            `json:"signature"`
}

const keyPairBitSize = 2048

// NewManifestSigner creates a signer with a freshly generated RSA key pair.
func NewManifestSigner() (*ManifestSigner, error) {
	keyPair, err := GenerateKeyPair(keyPairBitSize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair: %w", err)
	}
	return &ManifestSigner{keyPair: keyPair}, nil
}

// NewManifestSignerFromKeyPair creates a signer from an existing key pair.
func NewManifestSignerFromKeyPair(keyPair *KeyPair) *ManifestSigner {
	return &ManifestSigner{keyPair: keyPair}
}

// SignManifest produces a signed manifest for one file node.
func (s *ManifestSigner) SignManifest(file fileInfo.FileNode) (*SignedManifest, error) {
	payload, err := json.Marshal(file)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal manifest for signing: %w", err)
	}

	hash := sha256.Sum256(payload)
	signature, err := rsa.SignPKCS1v15(rand.Reader, s.keyPair.PrivateKey, crypto.SHA256, hash[:])
	if err != nil {
		return nil, fmt.Errorf("failed to sign manifest: %w", err)
	}

	publicKeyBytes, err := x509.MarshalPKIXPublicKey(s.keyPair.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}

	return &SignedManifest{
		File:      file,
		PublicKey: publicKeyBytes,
		Signature: signature,
	}, nil
}

// VerifyManifest checks the signature of a received manifest against the
// public key it carries.
func VerifyManifest(signed *SignedManifest) error {
	publicKeyInterface, err := x509.ParsePKIXPublicKey(signed.PublicKey)
	if err != nil {
		return fmt.Errorf("failed to parse public key: %w", err)
	}

	publicKey, ok := publicKeyInterface.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("public key is not RSA key")
	}

	payload, err := json.Marshal(signed.File)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest for verification: %w", err)
	}

	hash := sha256.Sum256(payload)
	if err := rsa.VerifyPKCS1v15(publicKey, crypto.SHA256, hash[:], signed.Signature); err != nil {
		return fmt.Errorf("signature verification failed: %w", err)
	}
	return nil
}

// PublicKey returns the signer's public key.
func (s *ManifestSigner) PublicKey() *rsa.PublicKey {
	return s.keyPair.PublicKey
}
