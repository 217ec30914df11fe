// Package model declares the LearnX tables as Bun models together with their
// validation rules, lifecycle transitions and foreign key relationships.
//
// Identifiers are UUID strings generated before insert. Rows are never hard
// deleted: every model carries a soft-delete column and the foreign keys use
// ON DELETE RESTRICT.
package model
