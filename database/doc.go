// Package database provides connection management with dialect fallback,
// entity-driven schema synchronization, foreign key handling, SQL seed files,
// error classification, logging and health checks built on top of Bun.
package database
