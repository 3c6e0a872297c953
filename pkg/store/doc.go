/*
Package store persists file metadata in an embedded SQLite database.

Each session owns zero or more file records, keyed two ways: globally by id
for retrieval, and by (session_id, filename) for upserts, so re-creating a
file under the same name updates the existing row instead of accumulating
duplicates. The schema carries a uniqueness constraint on
(session_id, filename) plus indexes on session_id (listing) and
last_modified (age-based reaping).

The database lives at <config_root>/database.db. Every operation is its own
transaction; Reap performs its select and delete inside a single transaction
so the set it returns is exactly the set it removed.
*/
package store
