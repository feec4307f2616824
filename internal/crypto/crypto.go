package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/fernet/fernet-go"
	"github.com/ttygate/ttygate/internal/database"
)

func getKey() (*fernet.Key, error) {
	keyStr, err := database.GetSetting("fernet_key")
	if err != nil {
		// Generate new key
		var k fernet.Key
		k.Generate()
		keyStr = k.Encode()
		if err := database.SetSetting("fernet_key", keyStr); err != nil {
			return nil, fmt.Errorf("save fernet key: %w", err)
		}
		return &k, nil
	}

	key, err := fernet.DecodeKey(keyStr)
	if err != nil {
		return nil, fmt.Errorf("decode fernet key: %w", err)
	}
	return key, nil
}

func Encrypt(plaintext string) (string, error) {
	key, err := getKey()
	if err != nil {
		return "", err
	}
	tok, err := fernet.EncryptAndSign([]byte(plaintext), key)
	if err != nil {
		return "", fmt.Errorf("encrypt: %w", err)
	}
	return string(tok), nil
}

func Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	key, err := getKey()
	if err != nil {
		return "", err
	}
	msg := fernet.VerifyAndDecrypt([]byte(ciphertext), 0*time.Second, []*fernet.Key{key})
	if msg == nil {
		return "", fmt.Errorf("decrypt: invalid token")
	}
	return string(msg), nil
}

func Mask(value string) string {
	if value == "" {
		return ""
	}
	if len(value) > 4 {
		return "****" + value[len(value)-4:]
	}
	return "****"
}

// SigningSecret returns the token signing secret. A configured value wins;
// otherwise the secret is loaded from the settings table, generated on
// first use and stored encrypted at rest.
func SigningSecret(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}

	stored, err := database.GetSetting("jwt_secret")
	if err == nil {
		secret, err := Decrypt(stored)
		if err != nil {
			return "", fmt.Errorf("decrypt stored signing secret: %w", err)
		}
		return secret, nil
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate signing secret: %w", err)
	}
	secret := hex.EncodeToString(buf)

	enc, err := Encrypt(secret)
	if err != nil {
		return "", err
	}
	if err := database.SetSetting("jwt_secret", enc); err != nil {
		return "", fmt.Errorf("save signing secret: %w", err)
	}
	return secret, nil
}
