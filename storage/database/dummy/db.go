// Package dummydb provides in-memory repositories backing the services in
// tests and local development without a database.
package dummydb

import (
	"sync"

	"github.com/enlighten-ed/backend/core/attendance"
	"github.com/enlighten-ed/backend/core/chat"
	"github.com/enlighten-ed/backend/core/user"
)

type (
	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	chatTables struct {
		sync.RWMutex
		nextID  int64
		direct  []chat.Message
		group   []chat.Message
	}

	attendanceTable struct {
		sync.RWMutex
		nextID  int64
		records []attendance.Record
	}

	DB struct {
		user       *userTable
		chat       *chatTables
		attendance *attendanceTable
	}
)

func Open() *DB {
	return &DB{
		user:       &userTable{table: make(map[string]*user.User)},
		chat:       &chatTables{},
		attendance: &attendanceTable{},
	}
}
