/*
Package files manages uploaded file content alongside its metadata.

Uploads land in per-session directories under the upload root, the same
directories the execution engine bind-mounts into sandbox containers, so an
uploaded file is immediately visible to subsequent code runs in that
session. Every write-through is mirrored in the metadata store: Save
registers (or replaces, by filename) a record with a content md5 etag, and
Delete removes both the bytes and the row, pruning the session directory
once it is empty.

Uploads are bounded by the configured size cap and extension whitelist;
violations surface as ErrFileTooLarge and ErrExtensionNotAllowed for the
HTTP layer to map onto client errors.
*/
package files
