// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package service

import (
	"sync"

	"github.com/google/uuid"
)

type hubKey struct {
	tenantID uuid.UUID
	hubID    string
}

type hubLock struct {
	sync.Mutex
	refs int
}

// hubLocks hands out one mutex per hub of a tenant. Entries are removed when
// nobody holds or waits for them.
type hubLocks struct {
	mu    sync.Mutex
	locks map[hubKey]*hubLock
}

func (l *hubLocks) lock(tenantID uuid.UUID, hubID string) (unlock func()) {
	key := hubKey{tenantID, hubID}
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[hubKey]*hubLock)
	}
	lock, ok := l.locks[key]
	if !ok {
		lock = &hubLock{}
		l.locks[key] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			lock.Unlock()
			l.mu.Lock()
			lock.refs--
			if lock.refs == 0 {
				delete(l.locks, key)
			}
			l.mu.Unlock()
		})
	}
}

func (l *hubLocks) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
