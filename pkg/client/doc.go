/*
Package client is the Go client for the control-plane HTTP API, used by the
catalyst CLI.

Every call sends the bearer token from New, decodes the response envelope,
and converts error bodies back into classified errdefs errors, so CLI code
can branch on kinds exactly like server-side code does.
*/
package client
