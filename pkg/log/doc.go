/*
Package log provides structured logging for Burrow built on zerolog.

Init configures the global logger once at daemon startup (level, JSON or
console output); components then derive child loggers via WithComponent,
WithSession, and WithContainer so every line carries the identifiers needed
to trace one execution across the engine, runtime, and store.
*/
package log
