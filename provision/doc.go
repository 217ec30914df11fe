// Package provision creates the LearnX database on a PostgreSQL or MySQL
// server before the first connection from the application.
package provision
