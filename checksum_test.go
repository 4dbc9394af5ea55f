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

func TestChecksum(t *testing.T) {
	memSource(t, "mem://cks", 4, 4, Byte, rowMajor(4, 0))
	ds, err := Create("", 4, 4)
	require.NoError(t, err)
	defer ds.Close()
	b, err := ds.AddBand(Byte)
	require.NoError(t, err)
	_, err = b.AddSimpleSource("mem://cks", 1)
	require.NoError(t, err)

	sum, err := Checksum(b)
	require.NoError(t, err)
	assert.Equal(t, 89, sum)

	sum, err = ChecksumWindow(b, 1, 1, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 30, sum)

	_, err = ChecksumWindow(b, 3, 3, 2, 2)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestChecksumFloat(t *testing.T) {
	vals := []float64{2.5, -0.2, math.NaN(), 7}
	memSource(t, "mem://cksf", 4, 1, Float32, func(x, y int) float64 { return vals[x] })
	ds, err := Create("", 4, 1)
	require.NoError(t, err)
	defer ds.Close()
	b, err := ds.AddBand(Float32)
	require.NoError(t, err)
	_, err = b.AddSimpleSource("mem://cksf", 1)
	require.NoError(t, err)

	// 3%7 + 0%11 + MinInt32%13 + 7%17, masked to 16 bits
	want := (3 + 0 + int(int32(math.MinInt32)%13) + 7) & 0xffff
	sum, err := Checksum(b)
	require.NoError(t, err)
	assert.Equal(t, want, sum)
}
