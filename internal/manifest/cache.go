// Copyright (c) 2025 Wayfare
// Licensed under the MIT License. See LICENSE file in the project root for details.

package manifest

import "sync"

var (
	// Process-wide cache keyed by manifest URL. Cleared when the CLI exits.
	globalCache     = map[string]*Manifest{}
	globalCacheLock sync.RWMutex
)

// GetCached returns the cached manifest for url, or nil.
func GetCached(url string) *Manifest {
	globalCacheLock.RLock()
	defer globalCacheLock.RUnlock()
	return globalCache[url]
}

// SetCached stores m for url.
func SetCached(url string, m *Manifest) {
	globalCacheLock.Lock()
	defer globalCacheLock.Unlock()
	globalCache[url] = m
}

// ClearCache empties the cache.
func ClearCache() {
	globalCacheLock.Lock()
	defer globalCacheLock.Unlock()
	globalCache = map[string]*Manifest{}
}
