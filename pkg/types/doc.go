/*
Package types defines the shared domain types for Burrow: the closed set of
supported interpreter languages, persisted file metadata records, live
container metrics, and the structured execution result shape.

Types here carry no behavior beyond validation and derivation (language to
interpreter argv, language to empty-output hint). All components depend on
this package; it depends on nothing inside Burrow.
*/
package types
