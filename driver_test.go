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
	"errors"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// prefixDriver serves memory datasets under its own scheme
type prefixDriver struct {
	name   DriverName
	opened int32
}

func (d *prefixDriver) Name() DriverName {
	return d.name
}

func (d *prefixDriver) Identify(name string) bool {
	return strings.HasPrefix(name, "testdrv://")
}

func (d *prefixDriver) Open(req OpenRequest) (SourceDataset, error) {
	atomic.AddInt32(&d.opened, 1)
	return OpenSource(memPrefix+strings.TrimPrefix(req.Name, "testdrv://"), Drivers(string(Memory)))
}

func TestRegisterDriver(t *testing.T) {
	memSource(t, "mem://drv", 2, 2, Byte, rowMajor(2, 0))
	drv := &prefixDriver{name: "TESTDRV"}
	RegisterDriver(drv)
	RegisterDriver(&prefixDriver{name: "TESTDRV"})
	n := 0
	for _, d := range registeredDrivers() {
		if d.Name() == "TESTDRV" {
			n++
		}
	}
	assert.Equal(t, 1, n)

	ds, err := OpenSource("testdrv://drv")
	require.NoError(t, err)
	defer ds.Close()
	assert.Equal(t, int32(1), atomic.LoadInt32(&drv.opened))
	b, err := ds.RasterBand(1)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 2, 3}, readAll(t, b))

	_, err = OpenSource("testdrv://drv", Drivers("VRT"))
	assert.True(t, errors.Is(err, ErrIOFailure))
	_, err = OpenSource("unknown://x")
	assert.True(t, errors.Is(err, ErrIOFailure))
}

func TestOpenSourceOverviewLevel(t *testing.T) {
	m := memSource(t, "mem://ovrlevel", 8, 8, Byte, constant(3))
	require.NoError(t, m.BuildOverviews(Average, 2, 4))

	ds, err := OpenSource("mem://ovrlevel", DriverOpenOption("OVERVIEW_LEVEL=1"))
	require.NoError(t, err)
	defer ds.Close()
	st := ds.Structure()
	assert.Equal(t, 2, st.SizeX)
	assert.Equal(t, 2, st.SizeY)

	full, err := OpenSource("mem://ovrlevel", DriverOpenOption("OVERVIEW_LEVEL=NONE"))
	require.NoError(t, err)
	defer full.Close()
	b, err := full.RasterBand(1)
	require.NoError(t, err)
	assert.Equal(t, 8, b.Structure().SizeX)
	assert.Empty(t, b.Overviews())

	_, err = OpenSource("mem://ovrlevel", DriverOpenOption("OVERVIEW_LEVEL=5"))
	assert.True(t, errors.Is(err, ErrIOFailure))
	_, err = OpenSource("mem://ovrlevel", DriverOpenOption("OVERVIEW_LEVEL=-1"))
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestWorkerPool(t *testing.T) {
	p := NewWorkerPool(2)
	var running, peak int32
	var mu sync.Mutex
	var done []int
	jobs := make([]func() error, 8)
	for i := range jobs {
		i := i
		jobs[i] = func() error {
			n := atomic.AddInt32(&running, 1)
			for {
				old := atomic.LoadInt32(&peak)
				if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
					break
				}
			}
			runtime.Gosched()
			atomic.AddInt32(&running, -1)
			if i%3 == 0 {
				return errors.New("odd job")
			}
			return nil
		}
	}
	errs := p.Run(4, jobs, func(job int) {
		mu.Lock()
		done = append(done, job)
		mu.Unlock()
	})
	require.Len(t, errs, 8)
	for i, err := range errs {
		if i%3 == 0 {
			assert.Error(t, err)
		} else {
			assert.NoError(t, err)
		}
	}
	assert.Len(t, done, 8)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestResolveThreads(t *testing.T) {
	ncpu := runtime.NumCPU()
	n, err := resolveThreads("1", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = resolveThreads("", configScope{"VRT_NUM_THREADS=ALL_CPUS"})
	require.NoError(t, err)
	assert.Equal(t, ncpu, n)

	n, err = resolveThreads("", configScope{"GDAL_NUM_THREADS=100000"})
	require.NoError(t, err)
	assert.Equal(t, ncpu, n)

	n, err = resolveThreads("", configScope{"GDAL_NUM_THREADS=8", "VRT_NUM_THREADS=0"})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = resolveThreads("lots", nil)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

type countingSource struct {
	*MemDataset
	closed *int32
}

func (c countingSource) Close(opts ...CloseOption) error {
	atomic.AddInt32(c.closed, 1)
	return nil
}

func TestSourceRegistry(t *testing.T) {
	r := newSourceRegistry()
	m, err := NewMemDataset("", 1, 1, 1, Byte)
	require.NoError(t, err)
	var opens, closed int32
	open := func() (SourceDataset, error) {
		atomic.AddInt32(&opens, 1)
		return countingSource{m, &closed}, nil
	}
	k := newSharedKey("a.tif", nil, nil, false)
	ds1, err := r.openShared(k, open)
	require.NoError(t, err)
	ds2, err := r.openShared(k, open)
	require.NoError(t, err)
	assert.Equal(t, ds1, ds2)
	assert.Equal(t, int32(1), opens)

	_, err = r.openShared(newSharedKey("a.tif", []string{"X=1"}, nil, false), open)
	require.NoError(t, err)
	assert.Equal(t, 2, r.len())

	_, err = r.openShared(newSharedKey("b.tif", nil, nil, false), func() (SourceDataset, error) {
		return nil, errorf(ErrIOFailure, "nope")
	})
	assert.True(t, errors.Is(err, ErrIOFailure))
	assert.Equal(t, 2, r.len())

	require.NoError(t, r.closeAll())
	assert.Equal(t, int32(2), closed)
	assert.Equal(t, 0, r.len())
}
