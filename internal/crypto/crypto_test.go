package crypto

import (
	"testing"

	"github.com/ttygate/ttygate/internal/database"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	if err := db.AutoMigrate(&database.Setting{}, &database.AuditEvent{}); err != nil {
		t.Fatalf("auto-migrate: %v", err)
	}
	old := database.DB
	database.DB = db
	t.Cleanup(func() { database.DB = old })
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	setupTestDB(t)

	enc, err := Encrypt("hunter2")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if enc == "hunter2" {
		t.Fatal("ciphertext equals plaintext")
	}

	dec, err := Decrypt(enc)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if dec != "hunter2" {
		t.Errorf("decrypted = %q, want hunter2", dec)
	}
}

func TestDecryptInvalid(t *testing.T) {
	setupTestDB(t)

	// Prime the key so Decrypt doesn't fail on key setup.
	if _, err := Encrypt("x"); err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := Decrypt("not-a-fernet-token"); err == nil {
		t.Fatal("expected error for garbage ciphertext")
	}
}

func TestSigningSecretConfiguredWins(t *testing.T) {
	setupTestDB(t)

	secret, err := SigningSecret("configured-secret-0123456789abcdef")
	if err != nil {
		t.Fatalf("signing secret: %v", err)
	}
	if secret != "configured-secret-0123456789abcdef" {
		t.Errorf("secret = %q, want configured value", secret)
	}
}

func TestSigningSecretGeneratedAndStable(t *testing.T) {
	setupTestDB(t)

	first, err := SigningSecret("")
	if err != nil {
		t.Fatalf("signing secret: %v", err)
	}
	if len(first) < 32 {
		t.Errorf("generated secret too short: %d chars", len(first))
	}

	second, err := SigningSecret("")
	if err != nil {
		t.Fatalf("signing secret second call: %v", err)
	}
	if second != first {
		t.Error("generated secret not stable across calls")
	}

	// Stored form is encrypted, not the raw secret.
	stored, err := database.GetSetting("jwt_secret")
	if err != nil {
		t.Fatalf("get stored secret: %v", err)
	}
	if stored == first {
		t.Error("secret stored in plaintext")
	}
}

func TestMask(t *testing.T) {
	cases := []struct{ in, want string }{
		{"", ""},
		{"abc", "****"},
		{"abcdefgh", "****efgh"},
	}
	for _, c := range cases {
		if got := Mask(c.in); got != c.want {
			t.Errorf("Mask(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
