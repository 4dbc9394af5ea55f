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
	"context"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// WorkerPool runs the jobs of a multi-threaded read.
//
// Run executes every job with at most maxConcurrency of them running at once, and
// returns once all jobs have completed. The returned slice holds the error of each
// job, in job order. done, if not nil, is called after each job completes.
type WorkerPool interface {
	Run(maxConcurrency int, jobs []func() error, done func(job int)) []error
}

// maxPoolSize caps the number of threads of the default pool
const maxPoolSize = 1024

// sharedPool is a WorkerPool bounding the jobs of all reads of the process to a
// fixed number of goroutines
type sharedPool struct {
	sem  *semaphore.Weighted
	size int
}

var defaultPoolOnce sync.Once
var defaultPoolInst *sharedPool

func defaultPool() *sharedPool {
	defaultPoolOnce.Do(func() {
		n := runtime.NumCPU()
		if n > maxPoolSize {
			n = maxPoolSize
		}
		defaultPoolInst = &sharedPool{sem: semaphore.NewWeighted(int64(n)), size: n}
	})
	return defaultPoolInst
}

// NewWorkerPool returns a pool running at most size jobs at once across all the
// reads it serves
func NewWorkerPool(size int) WorkerPool {
	if size < 1 {
		size = 1
	}
	return &sharedPool{sem: semaphore.NewWeighted(int64(size)), size: size}
}

func (p *sharedPool) Run(maxConcurrency int, jobs []func() error, done func(job int)) []error {
	errs := make([]error, len(jobs))
	var g errgroup.Group
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	g.SetLimit(maxConcurrency)
	ctx := context.Background()
	for i := range jobs {
		i := i
		g.Go(func() error {
			if err := p.sem.Acquire(ctx, 1); err != nil {
				errs[i] = err
				return nil
			}
			errs[i] = jobs[i]()
			p.sem.Release(1)
			if done != nil {
				done(i)
			}
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

// resolveThreads computes the number of threads of a multi-threaded read: the
// NUM_THREADS open option, then the VRT_NUM_THREADS dataset and process config,
// then GDAL_NUM_THREADS, defaulting to ALL_CPUS. The result is capped to the
// number of cpus and the pool size.
func resolveThreads(openOption string, cfg configScope) (int, error) {
	v := strings.TrimSpace(openOption)
	if v == "" {
		v = cfg.get("VRT_NUM_THREADS", "")
	}
	if v == "" {
		v = cfg.get("GDAL_NUM_THREADS", "")
	}
	if v == "" {
		v = "ALL_CPUS"
	}
	ncpu := runtime.NumCPU()
	limit := ncpu
	if limit > maxPoolSize {
		limit = maxPoolSize
	}
	if strings.EqualFold(v, "ALL_CPUS") {
		return limit, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errorf(ErrInvalidInput, "invalid NUM_THREADS value %q", v)
	}
	if n > limit {
		n = limit
	}
	return n, nil
}
