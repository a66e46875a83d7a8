package identity

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"

	"code.dogecoin.org/kadchain/internal/spec"
)

const KeyBits = 1024

var ErrBadSignature = errors.New("incorrect signature")

// KeyPair is a node's RSA identity. The private half never leaves the node.
type KeyPair struct {
	priv *rsa.PrivateKey
	Pub  []byte // PEM "PUBLIC KEY"
}

func Generate() (KeyPair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, KeyBits)
	if err != nil {
		return KeyPair{}, fmt.Errorf("cannot generate keypair: %w", err)
	}
	pub, err := EncodePublicKey(&priv.PublicKey)
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{priv: priv, Pub: pub}, nil
}

// Sign signs content with RSA PKCS#1 v1.5 over SHA-256.
func (k KeyPair) Sign(content string) ([]byte, error) {
	if k.priv == nil {
		return nil, errors.New("no private key")
	}
	hash := sha256.Sum256([]byte(content))
	return rsa.SignPKCS1v15(rand.Reader, k.priv, crypto.SHA256, hash[:])
}

// Verify checks sig over content against a PEM public key.
// This only proves the signer holds the presented key.
func Verify(content string, sig []byte, pubPEM []byte) error {
	pub, err := ParsePublicKey(pubPEM)
	if err != nil {
		return err
	}
	hash := sha256.Sum256([]byte(content))
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, hash[:], sig); err != nil {
		return ErrBadSignature
	}
	return nil
}

func EncodePublicKey(pub *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("cannot encode public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// ParsePublicKey accepts PKIX "PUBLIC KEY" or PKCS#1 "RSA PUBLIC KEY" PEM.
func ParsePublicKey(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("public key: no PEM block")
	}
	switch block.Type {
	case "RSA PUBLIC KEY":
		return x509.ParsePKCS1PublicKey(block.Bytes)
	case "PUBLIC KEY":
		key, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("public key: %w", err)
		}
		pub, ok := key.(*rsa.PublicKey)
		if !ok {
			return nil, errors.New("public key: not RSA")
		}
		return pub, nil
	default:
		return nil, fmt.Errorf("public key: unexpected PEM type %q", block.Type)
	}
}

// NewNodeID hashes a random seed and truncates it to IDSize hex digits.
func NewNodeID() (spec.NodeID, error) {
	var seed [8]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return "", fmt.Errorf("cannot read random seed: %w", err)
	}
	return truncateID(seed[:]), nil
}

// NodeIDFromPublicKey binds the id to the key, so it cannot be spoofed
// at first contact.
func NodeIDFromPublicKey(pubPEM []byte) spec.NodeID {
	return truncateID(pubPEM)
}

func truncateID(data []byte) spec.NodeID {
	hash := sha256.Sum256(data)
	return spec.NodeID(hex.EncodeToString(hash[:])[:spec.IDSize])
}
