package manager

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
)

// hostSSHKeys locates the per-host ed25519 keypair seeded into every
// instance's cloud-init user-data.
type hostSSHKeys struct {
	PrivateKeyPath   string
	PublicKeyPath    string
	PublicKeyOpenSSH string
}

// configHome resolves $XDG_CONFIG_HOME (if absolute) or
// $HOME/.config, joined with "bento". This is distinct from the data
// home: the keypair persists across reinstalls of any one instance.
func configHome() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); filepath.IsAbs(xdg) {
		return filepath.Join(xdg, "bento"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "", ErrConfigHomeUnavailable
	}
	return filepath.Join(home, ".config", "bento"), nil
}

// ensureHostSSHKeys loads the host's existing ed25519 keypair, or
// generates and persists a fresh one on first use. An existing private
// key with a missing public key file has its public key backfilled
// rather than being treated as corrupt.
func ensureHostSSHKeys() (hostSSHKeys, error) {
	dir, err := configHome()
	if err != nil {
		return hostSSHKeys{}, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return hostSSHKeys{}, fmt.Errorf("create config home: %w", err)
	}

	privPath := filepath.Join(dir, "id_ed25519")
	pubPath := filepath.Join(dir, "id_ed25519.pub")

	if _, err := os.Stat(privPath); err == nil {
		return loadHostSSHKeys(privPath, pubPath)
	} else if !os.IsNotExist(err) {
		return hostSSHKeys{}, fmt.Errorf("stat private key: %w", err)
	}

	return generateHostSSHKeys(privPath, pubPath)
}

func loadHostSSHKeys(privPath, pubPath string) (hostSSHKeys, error) {
	raw, err := os.ReadFile(privPath)
	if err != nil {
		return hostSSHKeys{}, fmt.Errorf("read private key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(raw)
	if err != nil {
		return hostSSHKeys{}, fmt.Errorf("parse private key: %w", err)
	}
	pubLine := ssh.MarshalAuthorizedKey(signer.PublicKey())

	if _, err := os.Stat(pubPath); os.IsNotExist(err) {
		if err := os.WriteFile(pubPath, pubLine, 0o644); err != nil {
			return hostSSHKeys{}, fmt.Errorf("backfill public key: %w", err)
		}
	} else if err != nil {
		return hostSSHKeys{}, fmt.Errorf("stat public key: %w", err)
	}

	return hostSSHKeys{
		PrivateKeyPath:   privPath,
		PublicKeyPath:    pubPath,
		PublicKeyOpenSSH: strings.TrimSpace(string(pubLine)),
	}, nil
}

func generateHostSSHKeys(privPath, pubPath string) (hostSSHKeys, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return hostSSHKeys{}, fmt.Errorf("generate ed25519 key: %w", err)
	}

	block, err := ssh.MarshalPrivateKey(priv, "")
	if err != nil {
		return hostSSHKeys{}, fmt.Errorf("marshal private key: %w", err)
	}
	if err := os.WriteFile(privPath, pem.EncodeToMemory(block), 0o600); err != nil {
		return hostSSHKeys{}, fmt.Errorf("write private key: %w", err)
	}

	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		return hostSSHKeys{}, fmt.Errorf("derive signer from private key: %w", err)
	}
	pubLine := ssh.MarshalAuthorizedKey(signer.PublicKey())
	if err := os.WriteFile(pubPath, pubLine, 0o644); err != nil {
		return hostSSHKeys{}, fmt.Errorf("write public key: %w", err)
	}

	return hostSSHKeys{
		PrivateKeyPath:   privPath,
		PublicKeyPath:    pubPath,
		PublicKeyOpenSSH: strings.TrimSpace(string(pubLine)),
	}, nil
}
