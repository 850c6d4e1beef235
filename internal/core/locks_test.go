// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package core

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPathLocks_OppositeOrderDoesNotDeadlock(t *testing.T) {
	dir := t.TempDir()
	a, b := filepath.Join(dir, "a.docx"), filepath.Join(dir, "b.docx")
	locks := newPathLocks()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unlock := locks.lock(a, b)
			unlock()
		}()
		go func() {
			defer wg.Done()
			unlock := locks.lock(b, a)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, locks.size())
}

func TestPathLocks_SpellingsShareOneKey(t *testing.T) {
	dir := t.TempDir()
	locks := newPathLocks()

	unlock := locks.lock(filepath.Join(dir, "a.docx"), filepath.Join(dir, ".", "a.docx"), "")
	assert.Equal(t, 1, locks.size())
	unlock()
	assert.Equal(t, 0, locks.size())
}
