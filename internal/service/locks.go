// locks.go — поресурсные блокировки операций жизненного цикла.
// Finalize/Replace/Rematerialize/Delete сериализуются по идентификатору
// ресурса внутри процесса. Предполагается один экземпляр модуля на
// развёртывание; распределённая блокировка не требуется.
package service

import "sync"

// resourceLocks — набор именованных мьютексов с учётом ссылок.
// Мьютекс существует, только пока кто-то его держит или ждёт.
type resourceLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newResourceLocks() *resourceLocks {
	return &resourceLocks{entries: make(map[string]*lockEntry)}
}

// Lock захватывает блокировку ресурса и возвращает функцию освобождения.
func (l *resourceLocks) Lock(resourceID string) func() {
	l.mu.Lock()
	entry, ok := l.entries[resourceID]
	if !ok {
		entry = &lockEntry{}
		l.entries[resourceID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.entries, resourceID)
		}
		l.mu.Unlock()
	}
}
