// Package repository provides a generic repository built on Bun for CRUD,
// find-or-create by natural key, counting and pagination. Repositories work
// over a *bun.DB or a bun.Tx.
package repository
