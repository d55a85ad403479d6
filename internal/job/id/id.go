// Package id provides unique identifier generation for jobs.
package id

import "github.com/google/uuid"

// Generate creates a new unique job ID (a random UUID).
// Example: 3f0c9a7e-5d1b-4c3e-9b2a-8f6d7e1a2b3c
func Generate() string {
	return uuid.NewString()
}

// Valid reports whether s has the shape of a generated ID.
func Valid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil && len(s) == 36
}
