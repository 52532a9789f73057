/*
store.go - Persistence conventions shared by every repository

PURPOSE:
  The engine never talks to a database directly. Each domain package
  declares its own Repository interface (labor.Repository,
  budget.Repository); this file holds the rules all of them follow.

CONTRACT:
  - Get* returns *NotFoundError when the id is absent
  - Put* is an upsert of the full record (inputs + derived fields)
  - Delete* returns *NotFoundError when the id is absent
  - WithTx runs fn against a transactional view. If fn returns an error
    nothing fn wrote is visible; otherwise all writes become visible at
    once. Readers never observe a partially applied batch.

OPTIMISTIC VERSIONS:
  Versioned records carry an integer version that the owning service
  increments on every write. Callers may pass the version they last
  read; CheckVersion turns a mismatch into a ConflictError. Callers
  that pass nothing get last-writer-wins.

IMPLEMENTATIONS:
  - store/memory: maps guarded by a RWMutex, snapshot + rollback tx
  - store/sqlite: SQLite documents, sql.Tx

SEE ALSO:
  - labor/repository.go, budget/repository.go: the interfaces
  - errors.go: NotFoundError, ConflictError
*/
package generic

// CheckVersion compares the caller's expected version with the stored one.
// A nil expectation always passes.
func CheckVersion(kind, id string, expected *int, actual int) error {
	if expected == nil || *expected == actual {
		return nil
	}
	return &ConflictError{Kind: kind, ID: id, Expected: *expected, Actual: actual}
}
