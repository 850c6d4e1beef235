// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package core

import (
	"slices"
	"sort"
	"sync"

	"github.com/smo-cookie/detect-and-match2/internal/paths"
)

// pathLocks serializes passes over the same input document or masked copy. Entries are
// reference counted and dropped when the last holder unlocks.
type pathLocks struct {
	mu    sync.Mutex
	locks map[string]*pathLock
}

type pathLock struct {
	mu   sync.Mutex
	refs int
}

func newPathLocks() *pathLocks {
	return &pathLocks{locks: make(map[string]*pathLock)}
}

// lock blocks until every path is free and returns the matching unlock.
// Keys are taken in sorted order so passes sharing paths cannot deadlock.
func (l *pathLocks) lock(names ...string) func() {
	keys := make([]string, 0, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		keys = append(keys, lockKey(name))
	}
	sort.Strings(keys)
	keys = slices.Compact(keys)

	entries := make([]*pathLock, len(keys))
	l.mu.Lock()
	for i, key := range keys {
		entry, ok := l.locks[key]
		if !ok {
			entry = &pathLock{}
			l.locks[key] = entry
		}
		entry.refs++
		entries[i] = entry
	}
	l.mu.Unlock()

	for _, entry := range entries {
		entry.mu.Lock()
	}

	return func() {
		for i := len(entries) - 1; i >= 0; i-- {
			entries[i].mu.Unlock()
		}

		l.mu.Lock()
		for i, key := range keys {
			entries[i].refs--
			if entries[i].refs == 0 {
				delete(l.locks, key)
			}
		}
		l.mu.Unlock()
	}
}

// lockKey resolves path so different spellings of one file share a lock
func lockKey(path string) string {
	key, err := paths.ResolvePath(path)
	if err != nil || key == "" {
		return path
	}
	return key
}

func (l *pathLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
