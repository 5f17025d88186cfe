package sshexec

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestSSHArgs(t *testing.T) {
	e := New("/tmp/kh", zerolog.Nop())

	tests := []struct {
		name string
		host Host
		want []string
	}{
		{
			name: "default port omitted",
			host: Host{IP: "203.0.113.10", Port: "22", User: "root"},
			want: []string{
				"-o", "BatchMode=yes",
				"-o", "ConnectTimeout=15",
				"-o", "StrictHostKeyChecking=accept-new",
				"-o", "UserKnownHostsFile=/tmp/kh",
				"root@203.0.113.10", "uptime",
			},
		},
		{
			name: "custom port",
			host: Host{IP: "203.0.113.11", Port: "2222", User: "deploy"},
			want: []string{
				"-o", "BatchMode=yes",
				"-o", "ConnectTimeout=15",
				"-o", "StrictHostKeyChecking=accept-new",
				"-o", "UserKnownHostsFile=/tmp/kh",
				"-p", "2222",
				"deploy@203.0.113.11", "uptime",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.sshArgs(tt.host, "accept-new", "uptime")
			if len(got) != len(tt.want) {
				t.Fatalf("sshArgs = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("arg %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestAcceptNewUnsupported(t *testing.T) {
	tests := []struct {
		name   string
		stderr string
		want   bool
	}{
		{
			name:   "old client rejects option name",
			stderr: "command-line line 0: Bad configuration option: stricthostkeychecking=accept-new",
			want:   true,
		},
		{
			name:   "old client rejects option value",
			stderr: `command-line line 0: unsupported option "accept-new".`,
			want:   true,
		},
		{
			name:   "ordinary auth failure",
			stderr: "Permission denied (publickey).",
			want:   false,
		},
		{
			name:   "connection refused",
			stderr: "ssh: connect to host 203.0.113.10 port 22: Connection refused",
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := acceptNewUnsupported(tt.stderr); got != tt.want {
				t.Errorf("acceptNewUnsupported(%q) = %v, want %v", tt.stderr, got, tt.want)
			}
		})
	}
}

func TestCommandErrorNamesManualCommand(t *testing.T) {
	err := &CommandError{
		Host:     Host{IP: "203.0.113.10", Port: "22", User: "root"},
		Command:  "true",
		ExitCode: 255,
		Stderr:   "Connection timed out",
		SSHArgs:  []string{"-o", "BatchMode=yes", "root@203.0.113.10", "true"},
	}

	msg := err.Error()
	if !strings.Contains(msg, "exit 255") {
		t.Errorf("error message missing exit status: %s", msg)
	}
	if !strings.Contains(msg, "Connection timed out") {
		t.Errorf("error message missing stderr: %s", msg)
	}
	if !strings.Contains(msg, "diagnose manually with: ssh") {
		t.Errorf("error message missing manual reproduction command: %s", msg)
	}
}

func TestHostAddr(t *testing.T) {
	h := Host{IP: "203.0.113.10", User: "deploy"}
	if h.Addr() != "deploy@203.0.113.10" {
		t.Errorf("Addr() = %q", h.Addr())
	}
}
