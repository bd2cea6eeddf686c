package manager

import (
	"fmt"
	"os"
	"os/user"
	"strconv"
	"strings"

	"github.com/ghodss/yaml"

	"github.com/bentobox/bentobox/internal/cidata"
	"github.com/bentobox/bentobox/internal/instance"
)

// cloudUser is the single user entry every generated user-data carries:
// the host user, given passwordless sudo and the host's own SSH
// public key so the guest is reachable without a password prompt.
type cloudUser struct {
	Name              string   `json:"name"`
	UID               int      `json:"uid"`
	Gecos             string   `json:"gecos"`
	Homedir           string   `json:"homedir"`
	Shell             string   `json:"shell"`
	Sudo              string   `json:"sudo"`
	LockPasswd        bool     `json:"lock_passwd"`
	SSHAuthorizedKeys []string `json:"ssh_authorized_keys"`
}

// cloudConfig is the #cloud-config document body. Mounts is omitted
// from the rendered YAML entirely when empty, not emitted as `[]`.
type cloudConfig struct {
	Users  []cloudUser `json:"users"`
	Mounts [][]string  `json:"mounts,omitempty"`
}

type metaData struct {
	InstanceID    string `json:"instance-id"`
	LocalHostname string `json:"local-hostname"`
}

// hostUser is the subset of the host's passwd entry cloud-init cares
// about.
type hostUser struct {
	Name  string
	UID   int
	Gecos string
}

// resolveHostUser reads the current process's own user entry. Gecos is
// the first comma-separated field of the passwd GECOS string, falling
// back to the username when that field is empty.
func resolveHostUser() (hostUser, error) {
	u, err := user.Current()
	if err != nil {
		return hostUser{}, fmt.Errorf("resolve host user: %w", err)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return hostUser{}, fmt.Errorf("parse host uid %q: %w", u.Uid, err)
	}

	gecos := gecosFirstField(u.Name, u.Username)
	return hostUser{Name: u.Username, UID: uid, Gecos: gecos}, nil
}

// gecosFirstField returns the first comma-separated field of a raw
// passwd GECOS string, falling back to username when that field is
// empty (some minimal systems leave GECOS blank entirely).
func gecosFirstField(rawGecos, username string) string {
	gecos := rawGecos
	if idx := strings.IndexByte(gecos, ','); idx >= 0 {
		gecos = gecos[:idx]
	}
	if gecos == "" {
		gecos = username
	}
	return gecos
}

// buildCidataISO renders user-data and meta-data for inst and writes
// them into cidata.iso via the ISO9660 encoder. The host's SSH keypair
// is created on first use.
func buildCidataISO(inst *instance.Instance) error {
	hu, err := resolveHostUser()
	if err != nil {
		return err
	}

	keys, err := ensureHostSSHKeys()
	if err != nil {
		return err
	}

	userData, err := renderUserData(hu, keys.PublicKeyOpenSSH, inst.Config.Mounts)
	if err != nil {
		return err
	}
	metaDataBytes, err := renderMetaData(inst.Name)
	if err != nil {
		return err
	}

	out := inst.File(instance.FileCidataISO)
	entries := []cidata.Entry{
		{Name: "user-data", Contents: userData},
		{Name: "meta-data", Contents: metaDataBytes},
	}
	if err := cidata.WriteISO(out, "CIDATA", entries); err != nil {
		_ = os.Remove(out)
		return fmt.Errorf("write cidata iso: %w", err)
	}
	return nil
}

// renderUserData produces the literal "#cloud-config\n" document body:
// a single sudo-capable user seeded with sshPublicKey, plus one
// 6-tuple mount row per configured mount.
func renderUserData(hu hostUser, sshPublicKey string, mounts []instance.MountConfig) ([]byte, error) {
	cu := cloudUser{
		Name:       hu.Name,
		UID:        hu.UID,
		Gecos:      hu.Gecos,
		Homedir:    "/home/" + hu.Name,
		Shell:      "/bin/bash",
		Sudo:       "ALL=(ALL) NOPASSWD:ALL",
		LockPasswd: true,
	}
	if sshPublicKey != "" {
		cu.SSHAuthorizedKeys = []string{sshPublicKey}
	}

	var mountRows [][]string
	for i, m := range mounts {
		resolved, err := instance.ResolveMountLocation(m.Location)
		if err != nil {
			return nil, err
		}
		perm := "ro,nofail"
		if m.Writable {
			perm = "rw,nofail"
		}
		mountRows = append(mountRows, []string{
			fmt.Sprintf("mount%d", i), resolved, "virtiofs", perm, "0", "0",
		})
	}

	cfg := cloudConfig{Users: []cloudUser{cu}, Mounts: mountRows}
	body, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal cloud-config: %w", err)
	}
	return append([]byte("#cloud-config\n"), body...), nil
}

func renderMetaData(name string) ([]byte, error) {
	md := metaData{InstanceID: "bento-" + name, LocalHostname: name}
	out, err := yaml.Marshal(md)
	if err != nil {
		return nil, fmt.Errorf("marshal meta-data: %w", err)
	}
	return out, nil
}
