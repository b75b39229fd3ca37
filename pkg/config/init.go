package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
)

// EnvTokenSecret is the environment variable that overrides the session
// token secret at runtime.
const EnvTokenSecret = "GATEWAY_SECURITY_TOKEN_SECRET"

// InitConfig creates a sample configuration file at the default location.
// Returns the path of the created file.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath creates a sample configuration file at the given path.
// Fails if the file already exists, unless force is set.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
		}
	}

	cfg := GetDefaultConfig()

	// A random development secret so token authentication works out of the
	// box. Production deployments should set GATEWAY_SECURITY_TOKEN_SECRET.
	secret, err := generateSecret()
	if err != nil {
		return fmt.Errorf("failed to generate token secret: %w", err)
	}
	cfg.Security.Token.Secret = secret

	return SaveConfig(cfg, path)
}

// generateSecret returns a 64-character hex string (32 bytes of entropy).
func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
