/*
Package api exposes the sandbox over HTTP.

Two surfaces share one handler set. The base surface under the configured
prefix speaks the service's own shapes: execute responses wrap the run in a
{run, language, version, session_id, files} envelope, uploads return full
file objects and errors are RFC 7807 problem documents. The adapter surface
under {prefix}/adapter speaks the downstream chat client's dialect instead:
flat stdout/stderr execution results, fileId/filename upload objects,
composite "session/file" names in listings, {"message": ...} errors, and an
unsupported language reported as a successful run whose stdout carries the
explanation. The adapter surface additionally requires the shared X-Api-Key
secret.

Routing is chi with the usual stack: request ids, real client addresses,
one zerolog line per request and panic recovery. /health and /metrics sit
outside the prefix and are unauthenticated.
*/
package api
