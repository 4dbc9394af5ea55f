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
	"testing"

	"github.com/stretchr/testify/require"
)

// memSource registers a named single band memory dataset whose pixel at x,y is
// fn(x, y). It is released when the test ends.
func memSource(t *testing.T, name string, w, h int, dtype DataType, fn func(x, y int) float64) *MemDataset {
	t.Helper()
	m, err := NewMemDataset(name, w, h, 1, dtype)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	data := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			data[y*w+x] = fn(x, y)
		}
	}
	require.NoError(t, m.Bands()[0].Write(0, 0, data, w, h))
	return m
}

// rowMajor returns the pixel function of a raster holding start, start+1, ...
func rowMajor(w int, start float64) func(x, y int) float64 {
	return func(x, y int) float64 {
		return start + float64(y*w+x)
	}
}

func constant(v float64) func(x, y int) float64 {
	return func(x, y int) float64 {
		return v
	}
}

func readAll(t *testing.T, b SourceBand) []float64 {
	t.Helper()
	st := b.Structure()
	buf := make([]float64, st.SizeX*st.SizeY)
	require.NoError(t, b.Read(0, 0, buf, st.SizeX, st.SizeY))
	return buf
}

func seq(start, n int) []float64 {
	ret := make([]float64, n)
	for i := range ret {
		ret[i] = float64(start + i)
	}
	return ret
}
