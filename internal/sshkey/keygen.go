// Package sshkey generates RSA key pairs for bot host accounts and encodes
// the public half in OpenSSH authorized_keys format.
package sshkey

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/binary"
	"encoding/pem"
	"fmt"
	"math/big"
	"strings"
)

const (
	// KeyBits is the RSA modulus size for generated keys.
	KeyBits = 4096

	keyType    = "ssh-rsa"
	keyComment = "botpanel"
)

// acceptedPrefixes are the key types ValidatePublicKey recognizes.
var acceptedPrefixes = []string{
	"ssh-rsa",
	"ssh-ed25519",
	"ecdsa-sha2-nistp256",
	"ecdsa-sha2-nistp384",
	"ecdsa-sha2-nistp521",
}

// KeyPair holds a generated key pair. PrivateKey is empty when the caller
// supplied their own public key and nothing was generated.
type KeyPair struct {
	// PublicKey is in OpenSSH authorized_keys format ("ssh-rsa AAAA... botpanel").
	PublicKey string
	// PrivateKey is the PEM-encoded PKCS#1 private key.
	PrivateKey string
}

// Generate creates a new 4096-bit RSA key pair. Generation is CPU-bound and
// can take a few seconds; callers run it off any latency-sensitive path.
// A generation failure is fatal to the caller and is never retried.
func Generate() (*KeyPair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, KeyBits)
	if err != nil {
		return nil, fmt.Errorf("generate RSA key: %w", err)
	}
	if err := priv.Validate(); err != nil {
		return nil, fmt.Errorf("validate RSA key: %w", err)
	}

	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(priv),
	})

	return &KeyPair{
		PublicKey:  EncodePublicKey(&priv.PublicKey),
		PrivateKey: string(privPEM),
	}, nil
}

// EncodePublicKey renders an RSA public key in OpenSSH wire format: the
// "ssh-rsa" tag, the exponent, and the modulus, each prefixed with a 4-byte
// big-endian length, concatenated and base64-encoded. Multi-precision
// integers whose high bit is set get a leading zero byte so they are read
// as non-negative.
func EncodePublicKey(pub *rsa.PublicKey) string {
	var wire []byte
	wire = appendString(wire, []byte(keyType))
	wire = appendMPInt(wire, big.NewInt(int64(pub.E)))
	wire = appendMPInt(wire, pub.N)

	return keyType + " " + base64.StdEncoding.EncodeToString(wire) + " " + keyComment
}

func appendString(dst, s []byte) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(s)))
	return append(dst, s...)
}

func appendMPInt(dst []byte, n *big.Int) []byte {
	b := n.Bytes()
	if len(b) > 0 && b[0]&0x80 != 0 {
		b = append([]byte{0}, b...)
	}
	return appendString(dst, b)
}

// ValidatePublicKey reports whether key looks like an OpenSSH public key of
// a supported type. This is a format sniff on the leading type tag only; it
// does not parse the blob or verify the key cryptographically.
func ValidatePublicKey(key string) bool {
	trimmed := strings.TrimSpace(key)
	for _, prefix := range acceptedPrefixes {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return false
}
