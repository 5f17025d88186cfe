/*
Package sshexec runs commands on remote hosts through the operator's
OpenSSH client.

It deliberately drives the ssh binary instead of an in-process SSH library:
the tool inherits the operator's agent, config and key setup, and the
compatibility quirks it must handle (accept-new support varying by client
version) only exist at the binary's surface.

Host-key trust is scoped per migration via a dedicated known-hosts file:
first contact is accepted automatically, later contacts are verified
against the recorded key.
*/
package sshexec
