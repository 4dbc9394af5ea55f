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

package vrt

import (
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// sharedKey identifies an opened source dataset
type sharedKey struct {
	uri           string
	flags         string
	openOptions   string
	bandList      string
	relativeToVRT bool
}

func newSharedKey(uri string, openOptions []string, bandList []int, relative bool) sharedKey {
	bl := make([]string, len(bandList))
	for i, b := range bandList {
		bl[i] = strconv.Itoa(b)
	}
	return sharedKey{
		uri:           uri,
		flags:         "r",
		openOptions:   strings.Join(openOptions, "\x00"),
		bandList:      strings.Join(bl, ","),
		relativeToVRT: relative,
	}
}

// sourceRegistry deduplicates the datasets opened by the sources of a virtual
// dataset. It is lock-free until installLock is called, after which get and
// insert are serialized.
type sourceRegistry struct {
	mu      atomic.Pointer[sync.Mutex]
	handles map[sharedKey]SourceDataset
	order   []sharedKey
}

func newSourceRegistry() *sourceRegistry {
	return &sourceRegistry{handles: make(map[sharedKey]SourceDataset)}
}

// installLock switches the registry to locked mode. It must be called before
// the registry is shared between goroutines.
func (r *sourceRegistry) installLock() {
	if r.mu.Load() == nil {
		r.mu.CompareAndSwap(nil, &sync.Mutex{})
	}
}

func (r *sourceRegistry) locked() bool {
	return r.mu.Load() != nil
}

func (r *sourceRegistry) lock() func() {
	if mu := r.mu.Load(); mu != nil {
		mu.Lock()
		return mu.Unlock
	}
	return func() {}
}

func (r *sourceRegistry) get(k sharedKey) (SourceDataset, bool) {
	defer r.lock()()
	ds, ok := r.handles[k]
	return ds, ok
}

// insert stores ds under k. If another handle was inserted concurrently, that
// handle is returned and ds must be released by the caller.
func (r *sourceRegistry) insert(k sharedKey, ds SourceDataset) SourceDataset {
	defer r.lock()()
	if prev, ok := r.handles[k]; ok {
		return prev
	}
	r.handles[k] = ds
	r.order = append(r.order, k)
	return ds
}

func (r *sourceRegistry) len() int {
	defer r.lock()()
	return len(r.handles)
}

// closeAll releases every handle, most recently opened first
func (r *sourceRegistry) closeAll() error {
	unlock := r.lock()
	order := r.order
	handles := r.handles
	r.order = nil
	r.handles = make(map[sharedKey]SourceDataset)
	unlock()
	var err error
	for i := len(order) - 1; i >= 0; i-- {
		if ds := handles[order[i]]; ds != nil {
			err = combine(err, ds.Close())
		}
	}
	return err
}

// openShared returns the dataset registered for k, opening it with open on a miss
func (r *sourceRegistry) openShared(k sharedKey, open func() (SourceDataset, error)) (SourceDataset, error) {
	if ds, ok := r.get(k); ok {
		return ds, nil
	}
	ds, err := open()
	if err != nil {
		return nil, err
	}
	if kept := r.insert(k, ds); kept != ds {
		_ = ds.Close()
		return kept, nil
	}
	return ds, nil
}
