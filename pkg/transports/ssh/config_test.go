package ssh

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig("backup.example.com", "testuser")

	if config.Host != "backup.example.com" {
		t.Errorf("expected host 'backup.example.com', got '%s'", config.Host)
	}
	if config.Port != 22 {
		t.Errorf("expected port 22, got %d", config.Port)
	}
	if config.AuthMethod != AuthMethodKey {
		t.Errorf("expected auth method 'key', got '%s'", config.AuthMethod)
	}
	if config.ConnectionTimeout != 30*time.Second {
		t.Errorf("expected connection timeout 30s, got %v", config.ConnectionTimeout)
	}
	if config.InsecureIgnoreHostKey {
		t.Error("expected host key checking to be on by default")
	}
	if !strings.HasSuffix(config.KnownHostsPath, filepath.Join(".ssh", "known_hosts")) {
		t.Errorf("unexpected known_hosts path %q", config.KnownHostsPath)
	}
}

func TestConfigValidation(t *testing.T) {
	keyPath := writeTestKey(t)

	tests := []struct {
		name       string
		modifyFunc func(*Config)
		errorMsg   string
	}{
		{
			name: "valid key config",
			modifyFunc: func(c *Config) {
				c.PrivateKeyPath = keyPath
			},
		},
		{
			name: "valid password config",
			modifyFunc: func(c *Config) {
				c.AuthMethod = AuthMethodPassword
				c.Password = "secret"
			},
		},
		{
			name: "missing host",
			modifyFunc: func(c *Config) {
				c.Host = ""
			},
			errorMsg: "host is required",
		},
		{
			name: "invalid port",
			modifyFunc: func(c *Config) {
				c.Port = 70000
			},
			errorMsg: "invalid port",
		},
		{
			name: "missing user",
			modifyFunc: func(c *Config) {
				c.User = ""
			},
			errorMsg: "user is required",
		},
		{
			name: "password auth without password",
			modifyFunc: func(c *Config) {
				c.AuthMethod = AuthMethodPassword
			},
			errorMsg: "password is required",
		},
		{
			name:       "key auth without key path",
			modifyFunc: func(c *Config) {},
			errorMsg:   "private key path is required",
		},
		{
			name: "missing key file",
			modifyFunc: func(c *Config) {
				c.PrivateKeyPath = "/nonexistent/key"
			},
			errorMsg: "private key file not found",
		},
		{
			name: "unsupported auth method",
			modifyFunc: func(c *Config) {
				c.AuthMethod = "agent"
			},
			errorMsg: "unsupported auth method",
		},
		{
			name: "no known_hosts",
			modifyFunc: func(c *Config) {
				c.PrivateKeyPath = keyPath
				c.KnownHostsPath = ""
			},
			errorMsg: "known_hosts path is required",
		},
		{
			name: "no known_hosts with checking disabled",
			modifyFunc: func(c *Config) {
				c.PrivateKeyPath = keyPath
				c.KnownHostsPath = ""
				c.InsecureIgnoreHostKey = true
			},
		},
		{
			name: "invalid connection timeout",
			modifyFunc: func(c *Config) {
				c.PrivateKeyPath = keyPath
				c.ConnectionTimeout = 0
			},
			errorMsg: "connection timeout must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig("backup.example.com", "testuser")
			config.KnownHostsPath = "/etc/ssh/ssh_known_hosts"
			tt.modifyFunc(config)

			err := config.Validate()
			if tt.errorMsg == "" {
				if err != nil {
					t.Errorf("expected no error, got: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing '%s', got nil", tt.errorMsg)
			}
			if !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("expected error containing '%s', got '%v'", tt.errorMsg, err)
			}
		})
	}
}

func TestConfigAddress(t *testing.T) {
	config := DefaultConfig("backup.example.com", "testuser")
	config.Port = 2222

	if address := config.Address(); address != "backup.example.com:2222" {
		t.Errorf("expected address 'backup.example.com:2222', got '%s'", address)
	}

	config.Host = "::1"
	if address := config.Address(); address != "[::1]:2222" {
		t.Errorf("expected bracketed IPv6 address, got '%s'", address)
	}
}

func TestBuildSSHClientConfig(t *testing.T) {
	t.Run("password authentication", func(t *testing.T) {
		config := DefaultConfig("backup.example.com", "testuser")
		config.AuthMethod = AuthMethodPassword
		config.Password = "secret"
		config.InsecureIgnoreHostKey = true

		clientConfig, err := config.BuildSSHClientConfig()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if clientConfig.User != "testuser" {
			t.Errorf("expected user 'testuser', got '%s'", clientConfig.User)
		}
		// password plus keyboard-interactive
		if len(clientConfig.Auth) != 2 {
			t.Errorf("expected 2 auth methods, got %d", len(clientConfig.Auth))
		}
		if clientConfig.Timeout != 30*time.Second {
			t.Errorf("expected timeout 30s, got %v", clientConfig.Timeout)
		}
	})

	t.Run("key authentication with valid key", func(t *testing.T) {
		config := DefaultConfig("backup.example.com", "testuser")
		config.PrivateKeyPath = writeTestKey(t)
		config.InsecureIgnoreHostKey = true

		clientConfig, err := config.BuildSSHClientConfig()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(clientConfig.Auth) != 1 {
			t.Errorf("expected 1 auth method, got %d", len(clientConfig.Auth))
		}
	})

	t.Run("corrupt key", func(t *testing.T) {
		keyPath := filepath.Join(t.TempDir(), "bad_key")
		if err := os.WriteFile(keyPath, []byte("not a key"), 0o600); err != nil {
			t.Fatalf("failed to write key: %v", err)
		}

		config := DefaultConfig("backup.example.com", "testuser")
		config.PrivateKeyPath = keyPath
		config.InsecureIgnoreHostKey = true

		if _, err := config.BuildSSHClientConfig(); err == nil {
			t.Error("expected error for a corrupt key")
		}
	})

	t.Run("missing known_hosts file", func(t *testing.T) {
		config := DefaultConfig("backup.example.com", "testuser")
		config.AuthMethod = AuthMethodPassword
		config.Password = "secret"
		config.KnownHostsPath = filepath.Join(t.TempDir(), "missing")

		if _, err := config.BuildSSHClientConfig(); err == nil {
			t.Error("expected error for a missing known_hosts file")
		}
	})
}

// writeTestKey writes an unencrypted ED25519 private key and returns its path.
func writeTestKey(t *testing.T) string {
	t.Helper()

	_, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	pemBlock, err := ssh.MarshalPrivateKey(privKey, "")
	if err != nil {
		t.Fatalf("failed to marshal key: %v", err)
	}

	keyPath := filepath.Join(t.TempDir(), "id_ed25519")
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(pemBlock), 0o600); err != nil {
		t.Fatalf("failed to write key: %v", err)
	}
	return keyPath
}
