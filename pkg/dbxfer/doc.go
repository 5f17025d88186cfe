/*
Package dbxfer moves a WordPress database from one host to another.

The sequence a migration follows: extract credentials from each side's
wp-config.php, verify the databases exist, check the destination for a
marker left by a prior run (transfers are destructive, so a found marker
stops the run unless the operator forces or skips), plant a fresh marker
in the source so it travels with the dump, transfer (direct pipe or staged
file), then read the marker back from the destination to confirm arrival.

Every identifier that reaches a shell command is validated against a
strict allow-list first; a hostile database name never becomes a command.
*/
package dbxfer
