package commands

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	sshpkg "golang.org/x/crypto/ssh"

	"github.com/evorbrain/evorbrain/pkg/config"
	"github.com/evorbrain/evorbrain/pkg/stores"
)

// backupKeyName is the key generated by init --backup-key for SFTP uploads.
const backupKeyName = "backup-ed25519"

func newInitCommand() *cobra.Command {
	var (
		force     bool
		backupKey bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the EvorBrain data directory",
		Long: `Initialize the data directory with a default configuration file, the log
and backup directories and a migrated database.

An existing configuration file is left untouched unless --force is given.
--backup-key generates an ed25519 key pair to use as backup.remote.key_file.`,
		Example: `  # Initialize the default data directory
  evorbrain init

  # Initialize a separate data directory with an SFTP backup key
  evorbrain init --data-dir ./brain --backup-key`,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()

			dir, err := resolveDataDir()
			if err != nil {
				return err
			}
			path := configPath
			if path == "" {
				path = filepath.Join(dir, config.FileName)
			}

			log.Debug().Str("data_dir", dir).Str("config", path).Msg("Initializing data directory")
			fmt.Fprintf(w, "Initializing EvorBrain in %s\n\n", dir)

			_, statErr := os.Stat(path)
			switch {
			case statErr == nil && !force:
				fmt.Fprintf(w, "✓ Config file already exists: %s\n", path)
			case statErr == nil || errors.Is(statErr, fs.ErrNotExist):
				cfg := config.Default()
				if configPath != "" {
					// The file lives outside the data dir and has to point at it.
					cfg.DataDir = dir
				}
				if err := cfg.Save(path); err != nil {
					return err
				}
				fmt.Fprintf(w, "✓ Created config file: %s\n", path)
			default:
				return fmt.Errorf("failed to check config file: %w", statErr)
			}

			cfg, err := config.Load(path, dir)
			if err != nil {
				return err
			}
			if err := cfg.EnsureDirs(); err != nil {
				return err
			}
			backups, err := cfg.BackupDir()
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "✓ Created directories: %s, %s\n", cfg.LogDir(), backups)

			storeCfg, err := cfg.StoreConfig()
			if err != nil {
				return err
			}
			store, err := stores.NewSQLiteStore(storeCfg)
			if err != nil {
				return fmt.Errorf("failed to create store: %w", err)
			}
			defer store.Close()

			if err := store.Init(cmd.Context()); err != nil {
				return fmt.Errorf("failed to initialize store: %w", err)
			}
			if err := store.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			fmt.Fprintf(w, "✓ Initialized SQLite database: %s\n", storeCfg.Path)

			if backupKey {
				keyPath := filepath.Join(cfg.DataDir, "keys", backupKeyName)
				created, err := generateKeyPair(keyPath)
				if err != nil {
					return err
				}
				if created {
					fmt.Fprintf(w, "✓ Generated SSH keypair: %s\n", keyPath)
				} else {
					fmt.Fprintf(w, "✓ SSH keypair already exists: %s\n", keyPath)
				}
			}

			fmt.Fprintln(w, "\nNext steps:")
			fmt.Fprintln(w, "  evorbrain areas create Health --color '#22c55e'")
			fmt.Fprintln(w, "  evorbrain apply life.cue")
			fmt.Fprintln(w, "  evorbrain serve")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file with the defaults")
	cmd.Flags().BoolVar(&backupKey, "backup-key", false, "generate an ed25519 key pair for SFTP backups")
	return cmd
}

// resolveDataDir applies the same precedence as config.Load without
// reading a file.
func resolveDataDir() (string, error) {
	dir := dataDir
	if dir == "" {
		dir = os.Getenv(config.EnvDataDir)
	}
	if dir == "" {
		var err error
		if dir, err = config.DefaultDataDir(); err != nil {
			return "", err
		}
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve data dir: %w", err)
	}
	return abs, nil
}

// generateKeyPair writes an OpenSSH ed25519 private key to path and its
// authorized_keys line to path.pub. An existing key is kept.
func generateKeyPair(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return false, fmt.Errorf("failed to create key directory: %w", err)
	}

	pubKey, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return false, fmt.Errorf("failed to generate keypair: %w", err)
	}
	block, err := sshpkg.MarshalPrivateKey(privKey, "evorbrain-backup")
	if err != nil {
		return false, fmt.Errorf("failed to marshal private key: %w", err)
	}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		return false, fmt.Errorf("failed to write private key: %w", err)
	}

	sshPubKey, err := sshpkg.NewPublicKey(pubKey)
	if err != nil {
		return false, fmt.Errorf("failed to create SSH public key: %w", err)
	}
	if err := os.WriteFile(path+".pub", sshpkg.MarshalAuthorizedKey(sshPubKey), 0o644); err != nil {
		return false, fmt.Errorf("failed to write public key: %w", err)
	}
	return true, nil
}
