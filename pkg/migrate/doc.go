/*
Package migrate is the orchestration core of wpshift: it drives one
WordPress site migration from a source server to a destination server as
an ordered sequence of resumable steps.

# Architecture

A Migrator is assembled from its collaborators (state store, SSH runner,
file syncer, database transfer, directory clients, route detector) and
walks the canonical step sequence:

	1     validate input (directory lookups or seed file)
	1.1   autodetect destination identifiers
	1.2   capture canonical routing (live HTTP probe)
	1.3   validate SSH connectivity
	2     database group
	  2.2   locate wp-config.php and web roots
	  2.5   extract database credentials
	  2.3   verify both databases exist
	  2.4   transfer database (marker guard, dump, restore, verify)
	3     files group
	  3.1   authorize destination key on source
	  3.2   verify sync connectivity, pick direct or relay
	  3.3   synchronize site files with rsync
	  3.4   audit tree sizes
	4     migrate nginx configuration
	5     sync routing and SSL
	6     finalize (verification artifact, cache flush)

The sequence is ordered by data dependency, not by step number:
credentials must be extracted (2.5) before database existence can be
checked (2.3).

# State and resumability

Every step that succeeds is durably recorded in the site's state
document before the next step starts. A re-run of a partially completed
migration skips completed steps and re-displays what they discovered. A
single step (or a whole group) can be re-executed in isolation with
RunStep; it requires existing state and never advances past the
requested step.

Steps read their inputs from recorded facts and fail fast, naming the
producing step, when a fact is missing. Facts supplied by the operator
through a seed file always win over discovered values.

# Safety

The database transfer is the only destructive operation. It is guarded
by a migration marker planted in the source database before the dump:
finding a marker already present on the destination aborts the transfer
unless the operator explicitly passes --force-db or --skip-db. Dry-run
mode reports every planned mutation without executing it.
*/
package migrate
