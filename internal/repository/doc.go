// Package repository implements the file-backed entity store behind every
// collection of the exam-authoring backend.
//
// # Repository
//
// A Repository owns one collection file holding a JSON array of records. It
// keeps two views of that file in memory:
//
//   - the full set, every record ever written including archived ones
//   - the live set, the full set with archived records filtered out
//
// The live set is recomputed after every change to the full set and is what
// GetAll and GetByID serve. Update and Delete act on the full set so archived
// records can still be modified.
//
// Nothing is read from disk until the first operation. Open only checks that
// the file exists, is a regular file and is readable and writable.
//
// # Persistence
//
// Every mutation serializes the whole full set and replaces the file through
// a temporary file and a rename, so a reader never sees a half-written
// collection. The in-memory state is only committed once the write
// succeeded; a failed write leaves both the cache and the file as they were.
//
// # Concurrency
//
// Each Repository serializes its operations with a mutex held across the
// read-modify-persist sequence. Two processes sharing a file are not
// coordinated.
//
// # Errors
//
// Failures are returned as *Error values whose kind can be matched with
// errors.Is against ErrStoreUnavailable, ErrCorrupt, ErrReadFailure,
// ErrWriteFailure, ErrItemNotFound and ErrInvalidPatch. The repository never
// logs.
package repository
