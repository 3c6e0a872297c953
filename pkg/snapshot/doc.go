/*
Package snapshot implements content-addressed change detection for session
working directories.

The engine takes a snapshot before and after each execution and diffs the
two to find what the interpreter wrote. A snapshot is a pure function of the
directory subtree: relative path to (size, mtime, MD5). The differ reports
only new or modified paths; deletions are observable in logs but are never
part of the change set.
*/
package snapshot
