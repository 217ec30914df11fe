// Package service applies enrollment and course lifecycle operations on top
// of the repositories.
package service
