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

// Package gcs serves the raw bands of virtual datasets stored on google cloud
// storage buckets.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"syscall"

	"github.com/airbusgeo/vrt"
	"github.com/airbusgeo/vrt/pkg/blockcache"

	"cloud.google.com/go/storage"
	lru "github.com/hashicorp/golang-lru"
	"google.golang.org/api/googleapi"
)

// Handler reads objects of cloud storage buckets by key
type Handler struct {
	ctx                context.Context
	prefix             string
	client             *storage.Client
	cacher             blockcache.Cacher
	blockSize          int
	cacheSize          int
	maxCachedMetadatas int
	sizecache          *lru.Cache
	billingProjectID   string
}

// Option is an option that can be passed to NewHandler or RegisterHandler
type Option func(o *Handler)

// Prefix is the prefix that a file must have in order to be handled by this handler.
// Defaults to "gs://", i.e. a raw band with SourceFilename "gs://mybucket/band.raw"
// is read through this handler.
func Prefix(prefix string) Option {
	return func(o *Handler) {
		o.prefix = prefix
	}
}

// Client sets the cloud.google.com/go/storage.Client that will be used
// by the handler
func Client(cl *storage.Client) Option {
	return func(o *Handler) {
		o.client = cl
	}
}

// Cacher allows to plugin a custom cache mechanism instead of the default in
// memory lru cache. CacheSize() will not be honored if you provide your
// own cacher, it is up to your cacher implementation to handle block eviction
func Cacher(cacher blockcache.Cacher) Option {
	return func(o *Handler) {
		o.cacher = cacher
	}
}

// BlockSize sets the size of requests that will go out to the storage API.
// Defaults to 1Mb
func BlockSize(bs int) Option {
	return func(o *Handler) {
		o.blockSize = bs
	}
}

// CacheSize sets the number of bytes kept in the block cache. Defaults to 1000
// blocks.
func CacheSize(n int) Option {
	return func(o *Handler) {
		o.cacheSize = n
	}
}

// BillingProject sets the project name which should be billed for the requests.
// This is mandatory if the bucket is in requester-pays mode.
func BillingProject(projectID string) Option {
	return func(o *Handler) {
		o.billingProjectID = projectID
	}
}

// MaxCachedMetadatas sets the number of keys whose size will be kept in cache.
// This also accounts for non-existing objects, i.e. probing a missing raw file twice
// will not result in an API call going to the storage endpoint the second time
func MaxCachedMetadatas(n int) Option {
	return func(o *Handler) {
		o.maxCachedMetadatas = n
	}
}

// NewHandler creates a handler without registering it
func NewHandler(ctx context.Context, opts ...Option) (*Handler, error) {
	handler := &Handler{
		ctx:                ctx,
		prefix:             "gs://",
		blockSize:          1024 * 1024,
		maxCachedMetadatas: 10000,
	}
	for _, o := range opts {
		o(handler)
	}
	if handler.blockSize < 1 {
		return nil, fmt.Errorf("invalid blocksize %d", handler.blockSize)
	}
	if handler.cacheSize == 0 {
		handler.cacheSize = 1000 * handler.blockSize
	}
	if handler.maxCachedMetadatas < 1 {
		return nil, fmt.Errorf("invalid max cached metadatas %d", handler.maxCachedMetadatas)
	}
	var err error
	if handler.sizecache, err = lru.New(handler.maxCachedMetadatas); err != nil {
		return nil, fmt.Errorf("size cache: %w", err)
	}
	if handler.client == nil {
		cl, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("storage.newclient: %w", err)
		}
		handler.client = cl
	}
	return handler, nil
}

// RegisterHandler registers a handler using cloud.google.com/go/storage
// APIs to read the raw bands of virtual datasets
func RegisterHandler(ctx context.Context, opts ...Option) error {
	handler, err := NewHandler(ctx, opts...)
	if err != nil {
		return err
	}
	vopts := []vrt.VSIHandlerOption{
		vrt.VSIHandlerBlockSize(handler.blockSize),
		vrt.VSIHandlerCacheSize(handler.cacheSize),
	}
	if handler.cacher != nil {
		vopts = append(vopts, vrt.VSIHandlerCacher(handler.cacher))
	}
	return vrt.RegisterVSIHandler(handler.prefix, handler, vopts...)
}

func gcsparse(gsURI string) (bucket, object string) {
	gsURI = strings.TrimPrefix(gsURI, "/")
	bucket, object, _ = strings.Cut(gsURI, "/")
	return
}

func (gcs *Handler) precheck(key string, off int64) error {
	s, ok := gcs.sizecache.Get(key)
	if ok {
		s64 := s.(int64)
		if s64 == -1 {
			return syscall.ENOENT
		}
		if off >= s64 {
			return io.EOF
		}
	}
	return nil
}

// ReadAt reads len(p) bytes of object key starting at off
func (gcs *Handler) ReadAt(key string, p []byte, off int64) (int, error) {
	if err := gcs.precheck(key, off); err != nil {
		return 0, err
	}
	bucket, object := gcsparse(key)
	if len(bucket) == 0 || len(object) == 0 {
		return 0, fmt.Errorf("invalid key %q", key)
	}
	gbucket := gcs.client.Bucket(bucket)
	if gcs.billingProjectID != "" {
		gbucket = gbucket.UserProject(gcs.billingProjectID)
	}
	r, err := gbucket.Object(object).NewRangeReader(gcs.ctx, off, int64(len(p)))
	if err != nil {
		var gerr *googleapi.Error
		if off > 0 && errors.As(err, &gerr) && gerr.Code == 416 {
			return 0, io.EOF
		}
		if off == 0 && errors.Is(err, storage.ErrObjectNotExist) {
			gcs.sizecache.Add(key, int64(-1))
			return 0, syscall.ENOENT
		}
		return 0, fmt.Errorf("new reader for gs://%s/%s: %w", bucket, object, err)
	}
	if sz := r.Attrs.Size; sz > 0 {
		gcs.sizecache.Add(key, sz)
	}
	defer r.Close()
	n, err := io.ReadFull(r, p)
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	return n, err
}

// Size returns the size of object key, or an error if it does not exist
func (gcs *Handler) Size(key string) (int64, error) {
	s, ok := gcs.sizecache.Get(key)
	if !ok {
		buf := make([]byte, 1)
		_, _ = gcs.ReadAt(key, buf, 0) //ignore errors as we just want to populate the size cache
		s, ok = gcs.sizecache.Get(key)
	}
	if !ok {
		return 0, fmt.Errorf("size cache miss for %s", key)
	}
	size := s.(int64)
	if size == -1 {
		return 0, syscall.ENOENT
	}
	return size, nil
}
