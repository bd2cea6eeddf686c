package client

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// BuildSSHCommand constructs the ssh(1) invocation used to attach an
// interactive shell to instance name. The connection is tunneled
// through this binary's own shell-proxy subcommand (re-invoked as an
// ssh ProxyCommand) rather than ssh dialing the vsock port directly,
// since the guest is only reachable through the instance's control
// socket.
func BuildSSHCommand(instanceDir, name, user string) (*exec.Cmd, error) {
	sshPath, err := exec.LookPath("ssh")
	if err != nil {
		return nil, fmt.Errorf("locate ssh binary: %w", err)
	}
	exePath, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve own executable path: %w", err)
	}

	proxyCommand := fmt.Sprintf("%s shell-proxy --name %s", shellQuote(exePath), shellQuote(name))
	knownHosts := filepath.Join(instanceDir, "known_hosts")

	args := []string{
		"-F", "/dev/null",
		"-o", "ProxyCommand=" + proxyCommand,
		"-o", "HostKeyAlias=bento/" + name,
		"-o", "UserKnownHostsFile=" + knownHosts,
		"-o", "StrictHostKeyChecking=no",
		"-o", "Compression=no",
		"-o", "Ciphers=^aes128-gcm@openssh.com,aes256-gcm@openssh.com",
		"-o", "LogLevel=ERROR",
		"-t",
		"-o", "SendEnv=COLORTERM",
		"-o", "User=" + user,
		name,
	}

	cmd := exec.Command(sshPath, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd, nil
}

// shellQuote wraps s in single quotes for safe embedding in the
// ProxyCommand string, escaping any embedded single quotes.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
