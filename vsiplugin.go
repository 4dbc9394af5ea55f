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
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/airbusgeo/vrt/internal/blockcache"
	pcache "github.com/airbusgeo/vrt/pkg/blockcache"
	"github.com/spf13/afero"
)

// KeySizerReaderAt is the interface that must be provided to RegisterVSIHandler.
//
// When registering a handler with
//  RegisterVSIHandler("scheme://", handler)
// a raw band whose SourceFilename is "scheme://bucket/file.raw" results in calls to
//  handler.ReadAt("bucket/file.raw", buf, offset)
//
// Size is used to determine whether the given key exists, and should
// return an error if no such key exists.
type KeySizerReaderAt interface {
	ReadAt(key string, p []byte, off int64) (int, error)
	Size(key string) (int64, error)
}

type vsiHandlerOpts struct {
	keepPrefix   bool
	blockSize    int
	cacheSize    int
	cacher       pcache.Cacher
	errorHandler ErrorHandler
}

// VSIHandlerOption is an option that can be passed to RegisterVSIHandler
//
// Available VSIHandlerOptions are:
//
// • VSIHandlerStripPrefix
//
// • VSIHandlerBlockSize
//
// • VSIHandlerCacheSize
//
// • VSIHandlerCacher
//
// • ErrLogger
type VSIHandlerOption interface {
	setVSIHandlerOpt(o *vsiHandlerOpts)
}

type stripPrefixOpt struct {
	strip bool
}

func (sp stripPrefixOpt) setVSIHandlerOpt(o *vsiHandlerOpts) {
	o.keepPrefix = !sp.strip
}

// VSIHandlerStripPrefix sets wether the prefix is removed from the filename before
// it is passed to the handler as key. Defaults to true.
func VSIHandlerStripPrefix(strip bool) VSIHandlerOption {
	return stripPrefixOpt{strip}
}

type vsiBlockSizeOpt struct {
	bs int
}

func (bs vsiBlockSizeOpt) setVSIHandlerOpt(o *vsiHandlerOpts) {
	o.blockSize = bs.bs
}

// VSIHandlerBlockSize sets the size of the requests emitted to the handler.
// Defaults to 64Kb.
func VSIHandlerBlockSize(s int) VSIHandlerOption {
	return vsiBlockSizeOpt{s}
}

type vsiCacheSizeOpt struct {
	cs int
}

func (cs vsiCacheSizeOpt) setVSIHandlerOpt(o *vsiHandlerOpts) {
	o.cacheSize = cs.cs
}

// VSIHandlerCacheSize sets the total number of bytes kept in cache for the
// handler. 0 disables caching. Defaults to 8Mb.
func VSIHandlerCacheSize(s int) VSIHandlerOption {
	return vsiCacheSizeOpt{s}
}

type vsiCacherOpt struct {
	c pcache.Cacher
}

func (co vsiCacherOpt) setVSIHandlerOpt(o *vsiHandlerOpts) {
	o.cacher = co.c
}

// VSIHandlerCacher replaces the default in memory lru cache. VSIHandlerCacheSize
// is not honored when a Cacher is provided, block eviction is up to the Cacher.
func VSIHandlerCacher(c pcache.Cacher) VSIHandlerOption {
	return vsiCacherOpt{c}
}

type vsiHandler struct {
	prefix     string
	keepPrefix bool
	h          KeySizerReaderAt
	reader     blockcache.KeyReaderAt
}

var vsiMu sync.RWMutex
var vsiHandlers []*vsiHandler

// RegisterVSIHandler registers handler on the given prefix. Raw bands whose file
// name starts with prefix are read through handler instead of the dataset's
// filesystem.
func RegisterVSIHandler(prefix string, handler KeySizerReaderAt, opts ...VSIHandlerOption) error {
	vo := vsiHandlerOpts{
		blockSize: 64 * 1024,
		cacheSize: 8 * 1024 * 1024,
	}
	for _, o := range opts {
		o.setVSIHandlerOpt(&vo)
	}
	d := newDiagnostics(vo.errorHandler)
	if prefix == "" || handler == nil {
		return d.fail(errorf(ErrInvalidInput, "invalid vsi handler registration"))
	}
	if vo.blockSize <= 0 || vo.cacheSize < 0 {
		return d.fail(errorf(ErrInvalidInput, "invalid vsi handler block size %d or cache size %d", vo.blockSize, vo.cacheSize))
	}
	vh := &vsiHandler{prefix: prefix, keepPrefix: vo.keepPrefix, h: handler, reader: handler}
	cacher := vo.cacher
	if cacher == nil && vo.cacheSize >= vo.blockSize {
		lru, err := pcache.NewLRU(vo.cacheSize / vo.blockSize)
		if err != nil {
			return d.fail(errorf(ErrInvalidInput, "vsi handler cache: %w", err))
		}
		cacher = lru
	}
	if cacher != nil {
		bc, err := blockcache.New(handler, cacher, vo.blockSize)
		if err != nil {
			return d.fail(errorf(ErrInvalidInput, "vsi handler cache: %w", err))
		}
		vh.reader = bc
	}
	vsiMu.Lock()
	defer vsiMu.Unlock()
	for _, h := range vsiHandlers {
		if h.prefix == prefix {
			return d.fail(errorf(ErrInconsistentState, "handler already registered on prefix %s", prefix))
		}
	}
	vsiHandlers = append(vsiHandlers, vh)
	sort.SliceStable(vsiHandlers, func(i, j int) bool {
		return len(vsiHandlers[i].prefix) > len(vsiHandlers[j].prefix)
	})
	d.debugf("registered vsi handler on %s", prefix)
	return nil
}

// vsiHandlerFor returns the handler serving name, and the key to pass to it
func vsiHandlerFor(name string) (*vsiHandler, string) {
	vsiMu.RLock()
	defer vsiMu.RUnlock()
	for _, h := range vsiHandlers {
		if strings.HasPrefix(name, h.prefix) {
			if h.keepPrefix {
				return h, name
			}
			return h, name[len(h.prefix):]
		}
	}
	return nil, ""
}

// randomAccessFile is an opened file read by raw bands
type randomAccessFile interface {
	io.ReaderAt
	io.Closer
}

type vsiFile struct {
	h   *vsiHandler
	key string
}

func (f vsiFile) ReadAt(p []byte, off int64) (int, error) {
	return f.h.reader.ReadAt(f.key, p, off)
}

func (f vsiFile) Close() error {
	return nil
}

// openRandomAccess opens name through a registered handler, or through fs
func openRandomAccess(fs afero.Fs, name string) (randomAccessFile, error) {
	if h, key := vsiHandlerFor(name); h != nil {
		if _, err := h.h.Size(key); err != nil {
			return nil, errorf(ErrIOFailure, "%s: %w", name, err)
		}
		return vsiFile{h: h, key: key}, nil
	}
	f, err := fs.Open(name)
	if err != nil {
		return nil, errorf(ErrIOFailure, "open %s: %w", name, err)
	}
	return f, nil
}
