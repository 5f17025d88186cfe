/*
Package directory is the client for the hosting provider's REST API and
its local on-disk cache.

Reads during step execution never hit the provider: they come from a bbolt
cache keyed by (profile, endpoint), populated by an explicit refresh. An
empty cache is a precondition error naming the refresh command. The only
live calls are mutations (routing, SSL) and the duplicate-site check,
where stale data would be dangerous.

Profiles are explicit values threaded through every call; there is no
ambient "current profile" to swap in and out.
*/
package directory
