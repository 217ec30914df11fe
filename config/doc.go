// Package config reads the LearnX bootstrap settings from environment
// variables and optional .env files.
package config
