package conn

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"
	"os/user"

	"golang.org/x/crypto/ssh"
)

// rsaKeyBits is the size of generated key pairs. 2048 matches what the lab
// servers accept everywhere.
const rsaKeyBits = 2048

// GenerateKeyPair creates a new RSA key pair, writes the private key to
// keyPath in PEM form with owner-only permissions, and returns the public key
// as one authorized_keys line:
//
//	ssh-rsa <base64-key-material> <local-user>@<local-host>
//
// The trailing comment identifies this machine on the remote server.
func GenerateKeyPair(keyPath string) (string, error) {
	key, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return "", fmt.Errorf("generate key pair: %w", err)
	}

	block := &pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(block), 0o600); err != nil {
		return "", fmt.Errorf("write private key %s: %w", keyPath, err)
	}

	pub, err := ssh.NewPublicKey(&key.PublicKey)
	if err != nil {
		return "", fmt.Errorf("derive public key: %w", err)
	}
	material := base64.StdEncoding.EncodeToString(pub.Marshal())
	return fmt.Sprintf("%s %s %s", pub.Type(), material, localIdentity()), nil
}

func localIdentity() string {
	username := "unknown"
	if u, err := user.Current(); err == nil && u.Username != "" {
		username = u.Username
	}
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "localhost"
	}
	return username + "@" + hostname
}
