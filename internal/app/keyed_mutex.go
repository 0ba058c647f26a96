package service

import (
	"sort"
	"sync"

	"github.com/twmb/murmur3"
)

const lockStripes = 256

// keyedMutex serializes work per key over a fixed set of stripes. Distinct
// keys may share a stripe.
type keyedMutex struct {
	stripes [lockStripes]sync.Mutex
}

func stripe(key string) int {
	return int(murmur3.StringSum32(key) % lockStripes)
}

// Lock locks the stripe of key and returns its unlock.
func (k *keyedMutex) Lock(key string) func() {
	mu := &k.stripes[stripe(key)]
	mu.Lock()
	return mu.Unlock
}

// LockAll locks the stripes of keys in ascending stripe order, each once.
func (k *keyedMutex) LockAll(keys ...string) func() {
	idx := make([]int, 0, len(keys))
	seen := make(map[int]bool, len(keys))
	for _, key := range keys {
		i := stripe(key)
		if !seen[i] {
			seen[i] = true
			idx = append(idx, i)
		}
	}
	sort.Ints(idx)
	for _, i := range idx {
		k.stripes[i].Lock()
	}
	return func() {
		for j := len(idx) - 1; j >= 0; j-- {
			k.stripes[idx[j]].Unlock()
		}
	}
}
