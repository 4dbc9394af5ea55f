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
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func complexBand(t *testing.T, src string, opts ...SourceOption) *Band {
	t.Helper()
	ds, err := Create("", 4, 1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ds.Close() })
	b, err := ds.AddBand(Float64)
	require.NoError(t, err)
	require.NoError(t, b.SetNoData(-1))
	_, err = b.AddComplexSource(src, 1, opts...)
	require.NoError(t, err)
	return b
}

func TestComplexSourceProcessing(t *testing.T) {
	memSource(t, "mem://cs", 4, 1, Byte, func(x, y int) float64 { return []float64{0, 10, 20, 30}[x] })

	assert.Equal(t, []float64{-1, 10, 20, 30}, readAll(t, complexBand(t, "mem://cs", SourceNoData(0))))
	assert.Equal(t, []float64{1, 21, 41, 61}, readAll(t, complexBand(t, "mem://cs", LinearScaling(1, 2))))
	assert.Equal(t, []float64{0, 25, 100, 100}, readAll(t, complexBand(t, "mem://cs", ExponentialScaling(0, 20, 0, 100, 2))))
	assert.Equal(t, []float64{5, 5, 7.5, 10}, readAll(t, complexBand(t, "mem://cs", LUT([]float64{10, 30}, []float64{5, 10}))))

	// nodata is tested on raw values, before scaling
	assert.Equal(t, []float64{-1, 20, 40, 60}, readAll(t, complexBand(t, "mem://cs", SourceNoData(0), LinearScaling(0, 2))))
}

func TestComplexSourceOptionErrors(t *testing.T) {
	ds, _ := Create("", 4, 1)
	defer ds.Close()
	b, _ := ds.AddBand(Byte)
	_, err := b.AddComplexSource("mem://x", 1, ColorTableComponent(5))
	assert.True(t, errors.Is(err, ErrInvalidInput))
	_, err = b.AddComplexSource("mem://x", 1, LUT([]float64{2, 1}, []float64{0, 1}))
	assert.True(t, errors.Is(err, ErrInvalidInput))
	_, err = b.AddComplexSource("mem://x", 1, ExponentialScaling(1, 1, 0, 255, 1))
	assert.True(t, errors.Is(err, ErrInvalidInput))
	_, err = b.AddComplexSource("mem://x", 1, ExponentialScaling(0, 1, 0, 255, 0))
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestComplexSourceMask(t *testing.T) {
	m := memSource(t, "mem://csmask", 4, 1, Byte, constant(8))
	mask, err := m.CreateMaskBand()
	require.NoError(t, err)
	require.NoError(t, mask.Write(0, 0, []byte{255, 0, 255, 0}, 4, 1))

	b := complexBand(t, "mem://csmask", UseMaskBand())
	assert.Equal(t, []float64{8, -1, 8, -1}, readAll(t, b))

	doc, err := b.ds.XML()
	require.NoError(t, err)
	assert.Contains(t, doc, "<UseMaskBand>true</UseMaskBand>")
}

func TestComplexSourceRoundTrip(t *testing.T) {
	memSource(t, "mem://csrt", 4, 1, Byte, func(x, y int) float64 { return float64(x) })
	b := complexBand(t, "mem://csrt", SourceNoData(math.NaN()), LUT([]float64{0, 3}, []float64{0, 300}))
	doc, err := b.ds.XML()
	require.NoError(t, err)
	assert.Contains(t, doc, "<NODATA>nan</NODATA>")

	rt, err := Open(doc)
	require.NoError(t, err)
	defer rt.Close()
	cs, ok := rt.Bands()[0].Sources()[0].(*ComplexSource)
	require.True(t, ok)
	nd, ok := cs.NoData()
	assert.True(t, ok)
	assert.True(t, math.IsNaN(nd))
	assert.Equal(t, []float64{0, 100, 200, 300}, readAll(t, rt.Bands()[0]))
}

func TestKernelFilteredSource(t *testing.T) {
	memSource(t, "mem://kernel", 4, 1, Byte, func(x, y int) float64 { return []float64{0, 30, 60, 90}[x] })
	ds, _ := Create("", 4, 1)
	defer ds.Close()
	b, _ := ds.AddBand(Float64)
	_, err := b.AddKernelFilteredSource("mem://kernel", 1, 3, []float64{0, 0, 0, 1, 1, 1, 0, 0, 0}, true)
	require.NoError(t, err)
	got := readAll(t, b)
	assert.InDelta(t, 30, got[1], 1e-9)
	assert.InDelta(t, 60, got[2], 1e-9)

	_, err = b.AddKernelFilteredSource("mem://kernel", 1, 2, []float64{1, 1, 1, 1}, false)
	assert.True(t, errors.Is(err, ErrInvalidInput))
	_, err = b.AddKernelFilteredSource("mem://kernel", 1, 3, []float64{1}, false)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}
