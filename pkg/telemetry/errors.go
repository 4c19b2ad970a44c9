package telemetry

import "fmt"

// StorageError wraps a failure at the database layer. Callers decide whether
// to retry; the store never retries internally.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// storageErr wraps err in a StorageError, passing nil through unchanged.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// UnsupportedSchemaVersionError is returned when the on-disk schema version
// is newer than this build understands. The store refuses to run against a
// future schema.
type UnsupportedSchemaVersionError struct {
	Found     int
	Supported int
}

func (e *UnsupportedSchemaVersionError) Error() string {
	return fmt.Sprintf("database schema version %d is newer than supported version %d", e.Found, e.Supported)
}
