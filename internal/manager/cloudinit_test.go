package manager

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bentobox/bentobox/internal/instance"
)

func TestRenderUserDataBeginsWithCloudConfigHeader(t *testing.T) {
	hu := hostUser{Name: "nickvd", UID: 504, Gecos: "Nick Van Dyck"}
	out, err := renderUserData(hu, "ssh-ed25519 AAAAtest key", nil)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(out), "#cloud-config\n"))
}

func TestRenderUserDataFieldsMatchHostUser(t *testing.T) {
	hu := hostUser{Name: "nickvd", UID: 504, Gecos: "Nick Van Dyck"}
	out, err := renderUserData(hu, "ssh-ed25519 AAAAtest key", nil)
	require.NoError(t, err)

	body := string(out)
	require.Contains(t, body, "name: nickvd")
	require.Contains(t, body, "uid: 504")
	require.Contains(t, body, "homedir: /home/nickvd")
	require.Contains(t, body, "ssh_authorized_keys")
	require.NotContains(t, body, "network:")
}

func TestRenderUserDataOmitsMountsWhenEmpty(t *testing.T) {
	hu := hostUser{Name: "nickvd", UID: 504, Gecos: "Nick Van Dyck"}
	out, err := renderUserData(hu, "key", nil)
	require.NoError(t, err)
	require.NotContains(t, string(out), "mounts:")
}

func TestRenderUserDataEncodesMountRows(t *testing.T) {
	hu := hostUser{Name: "nickvd", UID: 504, Gecos: "Nick Van Dyck"}
	mounts := []instance.MountConfig{
		{Location: "/Users/nickvd", Writable: true},
		{Location: "/tmp/lima", Writable: false},
	}
	out, err := renderUserData(hu, "key", mounts)
	require.NoError(t, err)

	body := string(out)
	require.Contains(t, body, "mounts:")
	require.Contains(t, body, "- mount0")
	require.Contains(t, body, "- mount1")
	require.Contains(t, body, "/Users/nickvd")
	require.Contains(t, body, "/tmp/lima")
	require.Contains(t, body, "rw,nofail")
	require.Contains(t, body, "ro,nofail")
}

func TestRenderMetaDataFields(t *testing.T) {
	out, err := renderMetaData("vm1")
	require.NoError(t, err)

	body := string(out)
	require.Contains(t, body, "instance-id: bento-vm1")
	require.Contains(t, body, "local-hostname: vm1")
}

func TestGecosFirstFieldFallsBackToUsername(t *testing.T) {
	require.Equal(t, "svc", gecosFirstField("", "svc"))
}

func TestGecosFirstFieldTakesFirstCommaSeparatedValue(t *testing.T) {
	require.Equal(t, "Nick Van Dyck", gecosFirstField("Nick Van Dyck,,,", "nickvd"))
}
