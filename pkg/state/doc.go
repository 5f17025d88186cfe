/*
Package state persists the durable, resumable record of a site migration.

Each site gets a single JSON document (wpshift-<site>.json) holding the
profiles in play, the set of completed step IDs, and every fact the steps
have discovered so far. Steps read facts written by earlier steps and fail
with a precondition error when one is missing; they never run ahead of the
ledger.

Writes are atomic (temp file + rename) so a crash mid-save cannot corrupt
the document. There is no file locking: the tool assumes one operator runs
one migration per site at a time.
*/
package state
