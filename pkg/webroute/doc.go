// Package webroute determines whether a site's canonical address is the
// apex domain, the www form, or neither, by probing both over HTTP and
// following redirects.
package webroute
