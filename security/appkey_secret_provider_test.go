package security

import (
	"bytes"
	"context"
	"testing"
)

func TestAppKeySecretProvider_EncryptDecryptRoundTrip(t *testing.T) {
	provider, err := NewAppKeySecretProviderFromString("shared-lms-secret-key", WithKeyID("bridge-v1"), WithVersion(2))
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	plaintext := []byte("consumer-shared-secret")
	encrypted, err := provider.Encrypt(context.Background(), plaintext)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if bytes.Equal(encrypted, plaintext) {
		t.Fatalf("expected encrypted payload to differ from plaintext")
	}
	if !bytes.HasPrefix(encrypted, []byte(envelopePrefix)) {
		t.Fatalf("expected envelope prefix")
	}

	decrypted, err := provider.Decrypt(context.Background(), encrypted)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Fatalf("expected roundtrip plaintext; got %q", string(decrypted))
	}
}

func TestAppKeySecretProvider_RejectsMetadataMismatch(t *testing.T) {
	issuer, err := NewAppKeySecretProviderFromString("shared-lms-secret-key", WithKeyID("bridge-v1"), WithVersion(1))
	if err != nil {
		t.Fatalf("new issuer provider: %v", err)
	}
	receiver, err := NewAppKeySecretProviderFromString("shared-lms-secret-key", WithKeyID("bridge-v2"), WithVersion(2))
	if err != nil {
		t.Fatalf("new receiver provider: %v", err)
	}

	encrypted, err := issuer.Encrypt(context.Background(), []byte("payload"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := receiver.Decrypt(context.Background(), encrypted); err == nil {
		t.Fatalf("expected metadata mismatch error")
	}
}

func TestAppKeySecretProvider_RejectsTamperedEnvelope(t *testing.T) {
	provider, err := NewAppKeySecretProviderFromString("shared-lms-secret-key")
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	encrypted, err := provider.Encrypt(context.Background(), []byte("payload"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	encrypted[len(encrypted)-2] ^= 0x01

	if _, err := provider.Decrypt(context.Background(), encrypted); err == nil {
		t.Fatalf("expected tampered envelope to fail decryption")
	}
}

func TestNewAppKeySecretProvider_RequiresKeyMaterial(t *testing.T) {
	if _, err := NewAppKeySecretProvider([]byte("   ")); err == nil {
		t.Fatalf("expected blank key material to be rejected")
	}
}
