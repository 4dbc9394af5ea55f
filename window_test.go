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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowMapping(t *testing.T) {
	ds, err := Create("", 100, 100)
	require.NoError(t, err)
	defer ds.Close()
	b, _ := ds.AddBand(Byte)

	cases := []struct {
		src, dst Rect
	}{
		{Rect{0, 0, 10, 10}, Rect{0, 0, 10, 10}},
		{Rect{10, 20, 30, 40}, Rect{1, 2, 15, 80}},
		{Rect{-5, 3.5, 7.25, 9}, Rect{50, 60, 13, 3}},
		{Rect{0, 0, 1000, 1000}, Rect{0, 0, 100, 100}},
	}
	for _, c := range cases {
		s, err := b.AddSimpleSource("mem://unused", 1,
			SrcRect(c.src.XOff, c.src.YOff, c.src.XSize, c.src.YSize),
			DstRect(c.dst.XOff, c.dst.YOff, c.dst.XSize, c.dst.YSize))
		require.NoError(t, err)

		x0, y0, err := s.DstToSrc(c.dst.XOff, c.dst.YOff)
		require.NoError(t, err)
		assert.InDelta(t, c.src.XOff, x0, 1e-9)
		assert.InDelta(t, c.src.YOff, y0, 1e-9)
		x1, y1, _ := s.DstToSrc(c.dst.XOff+c.dst.XSize, c.dst.YOff+c.dst.YSize)
		assert.InDelta(t, c.src.XOff+c.src.XSize, x1, 1e-9)
		assert.InDelta(t, c.src.YOff+c.src.YSize, y1, 1e-9)

		for py := 0; py < int(c.dst.YSize); py++ {
			for px := 0; px < int(c.dst.XSize); px++ {
				cx, cy := c.dst.XOff+float64(px)+0.5, c.dst.YOff+float64(py)+0.5
				sx, sy, err := s.DstToSrc(cx, cy)
				require.NoError(t, err)
				bx, by, err := s.SrcToDst(sx, sy)
				require.NoError(t, err)
				assert.InDelta(t, cx, bx, 0.5)
				assert.InDelta(t, cy, by, 0.5)
			}
		}
	}
}

func TestSourceWindowDefaults(t *testing.T) {
	memSource(t, "mem://defwin", 8, 6, Byte, constant(1))
	ds, _ := Create("", 20, 10)
	defer ds.Close()
	b, _ := ds.AddBand(Byte)
	s, err := b.AddSimpleSource("mem://defwin", 1)
	require.NoError(t, err)
	assert.Equal(t, Rect{0, 0, 20, 10}, s.DstWindow())
	src, err := s.SrcWindow()
	require.NoError(t, err)
	assert.Equal(t, Rect{0, 0, 8, 6}, src)

	s2, err := b.AddSimpleSource("mem://notopened", 1, SourceProperties(BandStructure{SizeX: 3, SizeY: 4, DataType: Byte}))
	require.NoError(t, err)
	src, err = s2.SrcWindow()
	require.NoError(t, err)
	assert.Equal(t, Rect{0, 0, 3, 4}, src)
}

func TestPartialSourceWindow(t *testing.T) {
	memSource(t, "mem://clip", 4, 4, Byte, constant(9))
	ds, _ := Create("", 4, 4)
	defer ds.Close()
	b, _ := ds.AddBand(Byte)
	require.NoError(t, b.SetNoData(0))
	// the source window overflows the right half of the source band
	_, err := b.AddSimpleSource("mem://clip", 1, SrcRect(2, 0, 4, 4), DstRect(0, 0, 4, 4))
	require.NoError(t, err)
	buf := make([]byte, 4)
	require.NoError(t, b.Read(0, 0, buf, 4, 1))
	assert.Equal(t, []byte{9, 9, 0, 0}, buf)
}

func TestFootprint(t *testing.T) {
	left := footprint(Rect{0, 0, 1000.5, 1000})
	right := footprint(Rect{1000.5, 0, 999.5, 1000})
	assert.Equal(t, pixelSpan{0, 0, 1001, 1000}, left)
	assert.Equal(t, pixelSpan{1000, 0, 2000, 1000}, right)
	assert.True(t, left.overlaps(right))

	// within the rounding tolerance, windows keep their integer extent
	a := footprint(Rect{0, 0, 2.0004, 4})
	b := footprint(Rect{1.9996, 0, 2, 4})
	assert.Equal(t, pixelSpan{0, 0, 2, 4}, a)
	assert.Equal(t, pixelSpan{2, 0, 4, 4}, b)
	assert.False(t, a.overlaps(b))

	assert.Equal(t, pixelSpan{1000, 0, 1001, 10}, left.clip(pixelSpan{1000, 0, 2000, 10}))
}
