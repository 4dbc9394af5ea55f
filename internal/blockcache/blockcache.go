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

// Package blockcache serves ranged reads of keyed files from fixed size cached
// blocks, so that the many small reads of a raw band only hit the underlying
// handler once per block.
package blockcache

import (
	"errors"
	"fmt"
	"io"

	"github.com/airbusgeo/vrt/pkg/blockcache"
	"github.com/vburenin/nsync"
)

// KeyReaderAt reads len(p) bytes of the file identified by key at offset off,
// following the io.ReaderAt contract. Concurrent calls must be supported.
type KeyReaderAt interface {
	ReadAt(key string, p []byte, off int64) (int, error)
}

// namedLocker serializes the loading of a block. Lock returns true if the caller
// acquired the lock, or false once another holder released it.
type namedLocker interface {
	Lock(key interface{}) bool
	Unlock(key interface{})
}

// BlockCache is a KeyReaderAt feeding from a Cacher. Consecutive missing blocks
// are fetched with a single call to the underlying reader, and a block being
// fetched is never requested twice concurrently.
type BlockCache struct {
	src       KeyReaderAt
	cache     blockcache.Cacher
	blockSize int64
	loading   namedLocker
}

type loadKey struct {
	key   string
	block int64
}

// New wraps src with a cache of blockSize byte blocks
func New(src KeyReaderAt, cache blockcache.Cacher, blockSize int) (*BlockCache, error) {
	if src == nil || cache == nil {
		return nil, errors.New("blockcache: nil reader or cache")
	}
	if blockSize <= 0 {
		return nil, fmt.Errorf("blockcache: invalid block size %d", blockSize)
	}
	return &BlockCache{
		src:       src,
		cache:     cache,
		blockSize: int64(blockSize),
		loading:   nsync.NewNamedOnceMutex(),
	}, nil
}

// Invalidate drops the cached blocks of key
func (bc *BlockCache) Invalidate(key string) {
	bc.cache.PurgeKey(key)
}

func (bc *BlockCache) ReadAt(key string, p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("blockcache: negative offset %d", off)
	}
	if len(p) == 0 {
		return 0, nil
	}
	first := off / bc.blockSize
	last := (off + int64(len(p)) - 1) / bc.blockSize
	n := 0
	for id := first; id <= last; {
		blocks, err := bc.blocks(key, id, last)
		if err != nil {
			return n, err
		}
		for i, data := range blocks {
			n += bc.copyBlock(id+int64(i), data, p, off)
			if int64(len(data)) < bc.blockSize && n < len(p) {
				return n, io.EOF
			}
		}
		id += int64(len(blocks))
	}
	return n, nil
}

// copyBlock copies the part of block id overlapping p, which starts at file offset off
func (bc *BlockCache) copyBlock(id int64, data []byte, p []byte, off int64) int {
	start := id * bc.blockSize
	end := start + int64(len(data))
	if end <= off || start >= off+int64(len(p)) {
		return 0
	}
	if start < off {
		return copy(p, data[off-start:])
	}
	return copy(p[start-off:], data)
}

// blocks returns block first, followed by the next consecutive blocks up to last
// that were loaded along with it
func (bc *BlockCache) blocks(key string, first, last int64) ([][]byte, error) {
	if data, ok := bc.cache.Get(key, first); ok {
		return [][]byte{data}, nil
	}
	if !bc.loading.Lock(loadKey{key, first}) {
		// loaded by a concurrent caller, or failed: retry
		return bc.blocks(key, first, last)
	}
	held := []int64{first}
	defer func() {
		for _, id := range held {
			bc.loading.Unlock(loadKey{key, id})
		}
	}()
	if data, ok := bc.cache.Get(key, first); ok {
		return [][]byte{data}, nil
	}
	end := first
	for end < last {
		if _, ok := bc.cache.Get(key, end+1); ok {
			break
		}
		if !bc.loading.Lock(loadKey{key, end + 1}) {
			break
		}
		held = append(held, end+1)
		if _, ok := bc.cache.Get(key, end+1); ok {
			break
		}
		end++
	}
	buf := make([]byte, (end-first+1)*bc.blockSize)
	n, err := bc.src.ReadAt(key, buf, first*bc.blockSize)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	buf = buf[:n]
	var ret [][]byte
	for id := first; id <= end; id++ {
		lo := (id - first) * bc.blockSize
		if lo > int64(len(buf)) {
			lo = int64(len(buf))
		}
		hi := lo + bc.blockSize
		if hi > int64(len(buf)) {
			hi = int64(len(buf))
		}
		data := make([]byte, hi-lo)
		copy(data, buf[lo:hi])
		bc.cache.Add(key, id, data)
		ret = append(ret, data)
		if hi-lo < bc.blockSize {
			break
		}
	}
	return ret, nil
}
