// Package retry provides the bounded-attempt executor used around remote
// model calls. It applies exponential backoff between attempts and widens
// the wait when the failure looks like provider rate limiting, honoring a
// server-supplied retry-after hint when one is available.
package retry
