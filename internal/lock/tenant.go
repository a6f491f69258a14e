package lock

import (
	"sync"

	"github.com/google/uuid"
)

// TenantLocker выдаёт мьютекс на каждого арендатора. Вызовы для разных
// арендаторов не блокируют друг друга.
type TenantLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*tenantLock
}

type tenantLock struct {
	mu   sync.Mutex
	refs int
}

func NewTenantLocker() *TenantLocker {
	return &TenantLocker{locks: make(map[uuid.UUID]*tenantLock)}
}

// Lock захватывает мьютекс арендатора и возвращает функцию освобождения.
func (l *TenantLocker) Lock(tenantID uuid.UUID) func() {
	l.mu.Lock()
	tl, ok := l.locks[tenantID]
	if !ok {
		tl = &tenantLock{}
		l.locks[tenantID] = tl
	}
	tl.refs++
	l.mu.Unlock()

	tl.mu.Lock()

	return func() {
		tl.mu.Unlock()

		l.mu.Lock()
		tl.refs--
		if tl.refs == 0 {
			delete(l.locks, tenantID)
		}
		l.mu.Unlock()
	}
}

// WithLock выполняет fn под мьютексом арендатора.
func (l *TenantLocker) WithLock(tenantID uuid.UUID, fn func() error) error {
	unlock := l.Lock(tenantID)
	defer unlock()
	return fn()
}
