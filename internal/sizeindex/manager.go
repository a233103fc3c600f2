package sizeindex

import (
	"fmt"
	"path/filepath"
	"sync"
)

// manager provides shared database access so multiple Store handles on
// the same CAS root don't each open their own bbolt file and contend
// over its single-writer lock. Adapted from the teacher's
// store.Manager/GetSharedDB singleton.
type manager struct {
	mu     sync.Mutex
	db     *DB
	dbPath string
	refs   int
}

var globalManager *manager
var managerMu sync.Mutex

// GetShared returns a reference-counted handle to the size index at
// casRoot/sizeindex.db. Multiple calls with the same casRoot share one
// underlying bbolt.DB; the handle must be closed when the caller is
// done with it.
func GetShared(casRoot string) (*SharedDB, error) {
	managerMu.Lock()
	defer managerMu.Unlock()

	dbPath := filepath.Join(casRoot, "sizeindex.db")

	if globalManager == nil || globalManager.dbPath != dbPath {
		if globalManager != nil {
			globalManager.close()
		}
		db, err := Open(dbPath)
		if err != nil {
			return nil, fmt.Errorf("sizeindex: open shared db: %w", err)
		}
		globalManager = &manager{db: db, dbPath: dbPath}
	}

	globalManager.refs++
	return &SharedDB{manager: globalManager, DB: globalManager.db}, nil
}

func (m *manager) close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

// SharedDB is a reference-counted handle returned by GetShared.
type SharedDB struct {
	manager *manager
	*DB
}

// Close releases this handle's reference, closing the underlying
// database once no handles remain.
func (s *SharedDB) Close() error {
	if s.manager == nil {
		return nil
	}
	managerMu.Lock()
	defer managerMu.Unlock()

	s.manager.refs--
	if s.manager.refs <= 0 {
		err := s.manager.close()
		if globalManager == s.manager {
			globalManager = nil
		}
		return err
	}
	return nil
}
