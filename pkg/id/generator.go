package id

import (
	"github.com/google/uuid"
)

// Generate generates a new unique entity ID.
func Generate() string {
	return uuid.New().String()
}

// Valid reports whether s is a well-formed entity ID.
func Valid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
