// Copyright 2021 Airbus Defence and Space
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package blockcache provides the block stores used to cache the bytes of raw
// band files read through a registered handler.
package blockcache

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru"
)

// Cacher stores fixed size blocks of files, identified by file key and block index.
//
// Get returns the block and wether it was found. PurgeKey drops every block of a
// file, Purge drops everything.
type Cacher interface {
	Add(key string, block int64, data []byte)
	Get(key string, block int64) ([]byte, bool)
	PurgeKey(key string)
	Purge()
}

type blockID struct {
	key   string
	block int64
}

// LRU is a Cacher keeping a bounded number of blocks, evicting the least
// recently used ones
type LRU struct {
	c *lru.Cache
}

var _ Cacher = &LRU{}

// NewLRU creates a cache holding at most blocks entries
func NewLRU(blocks int) (*LRU, error) {
	c, err := lru.New(blocks)
	if err != nil {
		return nil, fmt.Errorf("lru.new: %w", err)
	}
	return &LRU{c: c}, nil
}

func (l *LRU) Add(key string, block int64, data []byte) {
	l.c.Add(blockID{key, block}, data)
}

func (l *LRU) Get(key string, block int64) ([]byte, bool) {
	v, ok := l.c.Get(blockID{key, block})
	if !ok {
		return nil, false
	}
	return v.([]byte), true
}

func (l *LRU) PurgeKey(key string) {
	for _, k := range l.c.Keys() {
		if id, ok := k.(blockID); ok && id.key == key {
			l.c.Remove(k)
		}
	}
}

func (l *LRU) Purge() {
	l.c.Purge()
}

// Len returns the number of cached blocks
func (l *LRU) Len() int {
	return l.c.Len()
}
