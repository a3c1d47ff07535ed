package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"github.com/cuemby/warren/pkg/types"
)

const pbkdf2Iterations = 1000

// HashPassword produces a "$5$salt$hex" string in the same shape as the
// /etc/shadow SHA-256 format, mirroring ApiUser::CreateHashedPasswordString.
// The salt is random and 8 bytes, hex-encoded.
func HashPassword(password string) (string, error) {
	salt := make([]byte, 8)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	saltHex := hex.EncodeToString(salt)
	derived := pbkdf2.Key([]byte(password), []byte(saltHex), pbkdf2Iterations, 32, sha256.New)
	return fmt.Sprintf("$5$%s$%s", saltHex, hex.EncodeToString(derived)), nil
}

// ComparePassword checks password against a user's stored hash in
// constant time, mirroring ApiUser::ComparePassword.
func ComparePassword(user *types.APIUser, password string) bool {
	if user == nil || user.PasswordHash == "" {
		return false
	}
	parts := strings.SplitN(user.PasswordHash, "$", 4)
	if len(parts) != 4 || parts[0] != "" || parts[1] != "5" {
		return false
	}
	salt, want := parts[2], parts[3]

	derived := pbkdf2.Key([]byte(password), []byte(salt), pbkdf2Iterations, 32, sha256.New)
	got := hex.EncodeToString(derived)

	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// AuthenticateByClientCN resolves an APIUser by the CommonName a peer
// asserted over mTLS, mirroring ApiUser::GetByClientCN.
func AuthenticateByClientCN(users []*types.APIUser, cn string) *types.APIUser {
	for _, u := range users {
		if u.ClientCN != "" && u.ClientCN == cn {
			return u
		}
	}
	return nil
}

// AuthenticateByPassword resolves an APIUser by name and verifies password,
// mirroring basic-auth lookup via ApiUser::GetByAuthHeader.
func AuthenticateByPassword(users []*types.APIUser, name, password string) *types.APIUser {
	for _, u := range users {
		if u.Name == name && ComparePassword(u, password) {
			return u
		}
	}
	return nil
}

// clusterEncryptionKey is the global encryption key for the cluster.
// This is derived from the cluster ID during initialization.
var clusterEncryptionKey []byte

// SetClusterEncryptionKey sets the global cluster encryption key.
// This should be called once during cluster initialization.
func SetClusterEncryptionKey(key []byte) error {
	if len(key) != 32 {
		return fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}
	clusterEncryptionKey = key
	return nil
}

// DeriveKeyFromClusterID derives an encryption key from the cluster ID.
// This is used during cluster initialization to create a consistent key.
func DeriveKeyFromClusterID(clusterID string) []byte {
	hash := sha256.Sum256([]byte(clusterID))
	return hash[:]
}

// Encrypt encrypts data using the cluster encryption key. Used for
// encrypting sensitive data such as the CA's private key at rest.
func Encrypt(plaintext []byte) ([]byte, error) {
	if len(clusterEncryptionKey) == 0 {
		return nil, fmt.Errorf("cluster encryption key not set")
	}

	block, err := aes.NewCipher(clusterEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, plaintext, nil)
	return ciphertext, nil
}

// Decrypt decrypts data using the cluster encryption key.
func Decrypt(ciphertext []byte) ([]byte, error) {
	if len(clusterEncryptionKey) == 0 {
		return nil, fmt.Errorf("cluster encryption key not set")
	}

	block, err := aes.NewCipher(clusterEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}

	return plaintext, nil
}
