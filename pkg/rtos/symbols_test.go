package rtos

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSymbolCacheResolvesOnce(t *testing.T) {
	s := newFakeSession()
	s.globals[symCurrentTCB] = &fakeVar{name: symCurrentTCB, value: "0x20000000"}

	cache := newSymbolCache(s)
	v1, err := cache.resolve(symCurrentTCB, true)
	require.NoError(t, err)
	v2, err := cache.resolve(symCurrentTCB, true)
	require.NoError(t, err)

	assert.Same(t, v1.(*fakeVar), v2.(*fakeVar))
	assert.Equal(t, 1, s.resolveCalls[symCurrentTCB])
}

func TestSymbolCacheRetriesFailedLookups(t *testing.T) {
	s := newFakeSession()
	cache := newSymbolCache(s)

	_, err := cache.resolve(symCurrentTCB, true)
	require.ErrorIs(t, err, ErrSymbolNotFound)

	// Symbol appears on a later pause (e.g. firmware reflashed): the
	// failed lookup was not cached and resolves now.
	s.globals[symCurrentTCB] = &fakeVar{name: symCurrentTCB, value: "0x20000000"}
	v, err := cache.resolve(symCurrentTCB, true)
	require.NoError(t, err)
	assert.NotNil(t, v)
	assert.Equal(t, 2, s.resolveCalls[symCurrentTCB])
}

func TestSymbolCacheOptionalSymbolsStaySilent(t *testing.T) {
	s := newFakeSession()
	cache := newSymbolCache(s)

	v, err := cache.resolve(symTotalRunTime, false)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestResolveKernelSymbols(t *testing.T) {
	s := newFakeSession()
	kernelFixture{currentTCB: 0x2000_0000}.install(s)

	cache := newSymbolCache(s)
	ks, err := cache.resolveKernelSymbols()
	require.NoError(t, err)
	assert.NotNil(t, ks.numberOfTasks)
	assert.NotNil(t, ks.readyLists)
	assert.NotNil(t, ks.pendingReady)
	assert.Nil(t, ks.totalRunTime) // not in this fixture
}

func TestResolveKernelSymbolsMissingRequired(t *testing.T) {
	s := newFakeSession()
	kernelFixture{currentTCB: 0x2000_0000}.install(s)
	delete(s.globals, symPendingReadyList)

	cache := newSymbolCache(s)
	_, err := cache.resolveKernelSymbols()
	require.ErrorIs(t, err, ErrSymbolNotFound)
}
