/*
Package filesync mirrors a site's directory tree between two remote hosts.

The preferred path is a direct pull: rsync runs on the destination and
fetches from the source over the destination's own SSH connection, so the
payload never transits the orchestrator. When the destination cannot reach
the source, the operator may opt in to relay mode, which stages the tree
locally at the cost of transferring everything twice.
*/
package filesync
