package security

import (
	"bytes"
	"testing"

	"github.com/cuemby/warren/pkg/types"
)

func TestHashAndComparePassword(t *testing.T) {
	hash, err := HashPassword("correct-horse-battery-staple")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}

	user := &types.APIUser{Name: "root", PasswordHash: hash}

	if !ComparePassword(user, "correct-horse-battery-staple") {
		t.Error("ComparePassword() should accept the original password")
	}
	if ComparePassword(user, "wrong-password") {
		t.Error("ComparePassword() should reject a wrong password")
	}
}

func TestHashPasswordProducesUniqueSalts(t *testing.T) {
	h1, err := HashPassword("same-password")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	h2, err := HashPassword("same-password")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if h1 == h2 {
		t.Error("HashPassword() should use a random salt per call")
	}
}

func TestComparePasswordRejectsMalformedHash(t *testing.T) {
	user := &types.APIUser{Name: "root", PasswordHash: "not-a-valid-hash"}
	if ComparePassword(user, "anything") {
		t.Error("ComparePassword() should reject a malformed hash")
	}
}

func TestComparePasswordRejectsEmptyHash(t *testing.T) {
	user := &types.APIUser{Name: "root"}
	if ComparePassword(user, "anything") {
		t.Error("ComparePassword() should reject a user with no password set")
	}
}

func TestAuthenticateByClientCN(t *testing.T) {
	users := []*types.APIUser{
		{Name: "master1", ClientCN: "icinga2-master1"},
		{Name: "satellite1", ClientCN: "icinga2-satellite1"},
	}

	got := AuthenticateByClientCN(users, "icinga2-satellite1")
	if got == nil || got.Name != "satellite1" {
		t.Errorf("AuthenticateByClientCN() = %v, want satellite1", got)
	}

	if AuthenticateByClientCN(users, "unknown-cn") != nil {
		t.Error("AuthenticateByClientCN() should return nil for unknown CN")
	}
}

func TestAuthenticateByPassword(t *testing.T) {
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	users := []*types.APIUser{{Name: "root", PasswordHash: hash}}

	got := AuthenticateByPassword(users, "root", "hunter2")
	if got == nil {
		t.Error("AuthenticateByPassword() should authenticate with correct credentials")
	}

	if AuthenticateByPassword(users, "root", "wrong") != nil {
		t.Error("AuthenticateByPassword() should reject wrong password")
	}
	if AuthenticateByPassword(users, "nobody", "hunter2") != nil {
		t.Error("AuthenticateByPassword() should reject unknown user")
	}
}

func TestEncryptDecryptRoundtrip(t *testing.T) {
	key := make([]byte, 32)
	copy(key, []byte("test-encryption-key-32-bytes-!!"))
	if err := SetClusterEncryptionKey(key); err != nil {
		t.Fatalf("SetClusterEncryptionKey() error = %v", err)
	}

	tests := []struct {
		name      string
		plaintext []byte
	}{
		{name: "simple string", plaintext: []byte("hello world")},
		{name: "json data", plaintext: []byte(`{"cn":"icinga2-master1"}`)},
		{name: "binary data", plaintext: []byte{0x00, 0x01, 0x02, 0xFF, 0xFE, 0xFD}},
		{name: "large data", plaintext: bytes.Repeat([]byte("test"), 1000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ciphertext, err := Encrypt(tt.plaintext)
			if err != nil {
				t.Fatalf("Encrypt() error = %v", err)
			}
			if bytes.Equal(ciphertext, tt.plaintext) {
				t.Error("ciphertext should not equal plaintext")
			}

			decrypted, err := Decrypt(ciphertext)
			if err != nil {
				t.Fatalf("Decrypt() error = %v", err)
			}
			if !bytes.Equal(decrypted, tt.plaintext) {
				t.Errorf("Decrypt() = %v, want %v", decrypted, tt.plaintext)
			}
		})
	}
}

func TestEncryptWithoutKeySet(t *testing.T) {
	clusterEncryptionKey = nil
	if _, err := Encrypt([]byte("data")); err == nil {
		t.Error("Encrypt() should fail when no key is set")
	}
}

func TestDecryptErrors(t *testing.T) {
	key := make([]byte, 32)
	if err := SetClusterEncryptionKey(key); err != nil {
		t.Fatalf("SetClusterEncryptionKey() error = %v", err)
	}

	tests := []struct {
		name       string
		ciphertext []byte
	}{
		{name: "empty data", ciphertext: []byte{}},
		{name: "too short data", ciphertext: []byte{0x01, 0x02}},
		{name: "corrupted data", ciphertext: bytes.Repeat([]byte("x"), 100)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decrypt(tt.ciphertext); err == nil {
				t.Errorf("Decrypt() should fail on %s", tt.name)
			}
		})
	}
}

func TestDecryptWithWrongKey(t *testing.T) {
	key1 := make([]byte, 32)
	copy(key1, []byte("key-one-32-bytes-long-!!!!!!!!!!"))

	if err := SetClusterEncryptionKey(key1); err != nil {
		t.Fatalf("SetClusterEncryptionKey() error = %v", err)
	}
	ciphertext, err := Encrypt([]byte("secret data"))
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	key2 := make([]byte, 32)
	copy(key2, []byte("key-two-32-bytes-long-!!!!!!!!!!"))
	if err := SetClusterEncryptionKey(key2); err != nil {
		t.Fatalf("SetClusterEncryptionKey() error = %v", err)
	}

	if _, err := Decrypt(ciphertext); err == nil {
		t.Error("Decrypt() should fail with wrong key")
	}
}

func TestDeriveKeyFromClusterID(t *testing.T) {
	tests := []string{"cluster-123", "550e8400-e29b-41d4-a716-446655440000"}

	for _, clusterID := range tests {
		t.Run(clusterID, func(t *testing.T) {
			key := DeriveKeyFromClusterID(clusterID)
			if len(key) != 32 {
				t.Errorf("DeriveKeyFromClusterID() returned key of length %d, want 32", len(key))
			}

			key2 := DeriveKeyFromClusterID(clusterID)
			if !bytes.Equal(key, key2) {
				t.Error("DeriveKeyFromClusterID() should be deterministic")
			}

			differentKey := DeriveKeyFromClusterID(clusterID + "-different")
			if bytes.Equal(key, differentKey) {
				t.Error("different cluster IDs should produce different keys")
			}
		})
	}
}
