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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func grid(w int, vals []float64) pixelGetter {
	return func(x, y int) float64 {
		return vals[y*w+x]
	}
}

func TestResampleWindow(t *testing.T) {
	src := grid(4, seq(0, 16))
	half := ioWindow{0, 0, 4, 4, 2, 2}

	assert.Equal(t, []float64{5, 7, 13, 15}, resampleWindow(src, 4, 4, half, Nearest, 0, false))
	assert.Equal(t, []float64{2.5, 4.5, 10.5, 12.5}, resampleWindow(src, 4, 4, half, Average, 0, false))
	assert.Equal(t, []float64{0, 2, 8, 10}, resampleWindow(src, 4, 4, half, Min, 0, false))
	assert.Equal(t, []float64{10, 18, 42, 50}, resampleWindow(src, 4, 4, half, Sum, 0, false))
	// nodata pixels do not take part in the average
	assert.Equal(t, []float64{10.0 / 3, 4.5, 10.5, 12.5}, resampleWindow(src, 4, 4, half, Average, 0, true))

	flat := pixelGetter(func(x, y int) float64 { return 7 })
	for _, alg := range []ResamplingAlg{Bilinear, Cubic, CubicSpline, Lanczos, Gauss} {
		out := resampleWindow(flat, 4, 4, ioWindow{0, 0, 4, 4, 3, 3}, alg, 0, false)
		for _, v := range out {
			assert.InDelta(t, 7, v, 1e-9, alg.String())
		}
	}

	same := resampleWindow(src, 4, 4, ioWindow{1, 1, 2, 2, 2, 2}, Average, 0, false)
	assert.Equal(t, []float64{5, 6, 9, 10}, same)
}

func TestAggregate(t *testing.T) {
	vals := []float64{4, 1, 3, 3, 2}
	assert.Equal(t, 3.0, aggregate(Mode, vals))
	assert.Equal(t, 3.0, aggregate(Median, vals))
	assert.Equal(t, 2.0, aggregate(Q1, vals))
	assert.Equal(t, 3.0, aggregate(Q3, vals))
	assert.Equal(t, 4.0, aggregate(Max, vals))
	assert.InDelta(t, 2.7928480, aggregate(RMS, vals), 1e-6)
}

func TestBufferConversion(t *testing.T) {
	vals := []float64{-3, 2.5, 300, 7.4}
	memSource(t, "mem://conv", 4, 1, Float64, func(x, y int) float64 { return vals[x] })
	ds, err := Create("", 4, 1)
	require.NoError(t, err)
	defer ds.Close()
	b, err := ds.AddBand(Float64)
	require.NoError(t, err)
	_, err = b.AddSimpleSource("mem://conv", 1)
	require.NoError(t, err)

	bytes := make([]byte, 4)
	require.NoError(t, b.Read(0, 0, bytes, 4, 1))
	assert.Equal(t, []byte{0, 3, 255, 7}, bytes)

	i16 := make([]int16, 4)
	require.NoError(t, b.Read(0, 0, i16, 4, 1))
	assert.Equal(t, []int16{-3, 3, 300, 7}, i16)

	strided := make([]uint16, 8)
	require.NoError(t, b.Read(0, 0, strided, 4, 1, PixelSpacing(4)))
	assert.Equal(t, []uint16{0, 0, 3, 0, 300, 0, 7, 0}, strided)

	err = b.Read(0, 0, make([]uint16, 8), 4, 1, PixelSpacing(3))
	assert.True(t, errors.Is(err, ErrInvalidInput))
	err = b.Read(0, 0, make([]byte, 3), 4, 1)
	assert.True(t, errors.Is(err, ErrInvalidInput))
	err = b.Read(0, 0, []string{"a"}, 1, 1)
	assert.True(t, errors.Is(err, ErrInvalidInput))
	err = b.Read(0, 0, make([]complex64, 4), 4, 1)
	assert.True(t, errors.Is(err, ErrUnsupported))
}

func TestNames(t *testing.T) {
	assert.Equal(t, Byte, ParseDataType("uint8"))
	assert.Equal(t, Float32, ParseDataType("FLOAT32"))
	assert.Equal(t, Unknown, ParseDataType("float16"))
	alg, err := ParseResampling("NearestNeighbour")
	require.NoError(t, err)
	assert.Equal(t, Nearest, alg)
	_, err = ParseResampling("bogus")
	assert.True(t, errors.Is(err, ErrInvalidInput))
}
