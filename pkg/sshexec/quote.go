package sshexec

import "strings"

// ShellQuote wraps s in single quotes, escaping embedded single quotes, so
// arbitrary values (passwords, paths, key material) survive the remote
// shell intact.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
