package xid

import "github.com/google/uuid"

func New() string {
	return uuid.NewString()
}

// Valid reports whether id is a canonical UUID string.
func Valid(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}
