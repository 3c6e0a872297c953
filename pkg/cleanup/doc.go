/*
Package cleanup removes session files that have outlived their retention
window.

Sessions are ephemeral: once a file's last_modified falls behind the
configured maximum age, a periodic pass deletes its metadata row and its
bytes under the upload root, then prunes any session directory left empty.
The store's reap is the source of truth for the pass; disk removal is
best-effort and never fails the loop.
*/
package cleanup
