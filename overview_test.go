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
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverviewList(t *testing.T) {
	var srcs strings.Builder
	for i := 0; i < 4; i++ {
		name := fmt.Sprintf("mem://ovl%d", i)
		m := memSource(t, name, 512, 512, Byte, constant(float64(10*(i+1))))
		require.NoError(t, m.BuildOverviews(Average, 2, 4))
		fmt.Fprintf(&srcs, `<SimpleSource><SourceFilename relativeToVRT="0">%s</SourceFilename><SourceBand>1</SourceBand>
<DstRect xOff="%d" yOff="%d" xSize="512" ySize="512"/></SimpleSource>`, name, i%2*512, i/2*512)
	}
	doc := `<VRTDataset rasterXSize="1024" rasterYSize="1024">
<VRTRasterBand dataType="Byte" band="1">` + srcs.String() + `</VRTRasterBand>
<OverviewList resampling="average">4 2</OverviewList>
</VRTDataset>`
	ds, err := Open(doc)
	require.NoError(t, err)
	defer ds.Close()

	factors, alg := ds.OverviewFactors()
	assert.Equal(t, []int{4, 2}, factors)
	assert.Equal(t, "average", strings.ToLower(alg))

	ovrs := ds.Bands()[0].Overviews()
	require.Len(t, ovrs, 2)
	assert.Equal(t, 512, ovrs[0].Structure().SizeX)
	assert.Equal(t, 512, ovrs[0].Structure().SizeY)
	assert.Equal(t, 256, ovrs[1].Structure().SizeX)
	assert.Equal(t, 256, ovrs[1].Structure().SizeY)

	buf := make([]byte, 256*256)
	require.NoError(t, ovrs[1].Read(0, 0, buf, 256, 256))
	assert.Equal(t, byte(10), buf[0])
	assert.Equal(t, byte(20), buf[200])
	assert.Equal(t, byte(30), buf[200*256])
	assert.Equal(t, byte(40), buf[200*256+200])
}

func TestVirtualOverviews(t *testing.T) {
	m := memSource(t, "mem://virtovr", 256, 256, Byte, func(x, y int) float64 {
		return float64((x/8 + y/8) % 256)
	})
	require.NoError(t, m.BuildOverviews(Nearest, 2, 4, 8))
	ds, err := Create("", 256, 256)
	require.NoError(t, err)
	defer ds.Close()
	b, _ := ds.AddBand(Byte)
	_, err = b.AddSimpleSource("mem://virtovr", 1)
	require.NoError(t, err)

	ovrs := b.Overviews()
	require.Len(t, ovrs, 3)
	last := 256
	for _, o := range ovrs {
		st := o.Structure()
		assert.Less(t, st.SizeX, last)
		assert.Equal(t, st.SizeX, st.SizeY)
		last = st.SizeX
	}
	assert.Equal(t, 32, last)

	want := make([]byte, 64*64)
	require.NoError(t, m.Bands()[0].Overviews()[1].Read(0, 0, want, 64, 64))
	got := make([]byte, 64*64)
	require.NoError(t, ovrs[1].Read(0, 0, got, 64, 64))
	assert.Equal(t, want, got)

	down := make([]byte, 64*64)
	require.NoError(t, b.Read(0, 0, down, 64, 64, Window(256, 256), Resampling(Nearest)))
	assert.Equal(t, want, down)
}

func TestNoVirtualOverviewsForMosaics(t *testing.T) {
	ds := mosaic(t)
	defer ds.Close()
	assert.Empty(t, ds.Bands()[0].Overviews())
}

func TestBuildOverviews(t *testing.T) {
	memSource(t, "mem://buildovr", 64, 64, Byte, rowMajor(64, 0))
	ds, err := Create("", 64, 64)
	require.NoError(t, err)
	defer ds.Close()
	b, _ := ds.AddBand(Byte)
	_, err = b.AddSimpleSource("mem://buildovr", 1)
	require.NoError(t, err)

	err = ds.BuildOverviews(Average, 2)
	assert.True(t, errors.Is(err, ErrUnsupported))

	ds2, err := Create("", 64, 64, ConfigOption("VRT_VIRTUAL_OVERVIEWS=YES"))
	require.NoError(t, err)
	defer ds2.Close()
	b2, _ := ds2.AddBand(Byte)
	_, err = b2.AddSimpleSource("mem://buildovr", 1)
	require.NoError(t, err)
	assert.True(t, errors.Is(ds2.BuildOverviews(Average, 1), ErrInvalidInput))
	require.NoError(t, ds2.BuildOverviews(Average, 4, 2, 4))
	factors, alg := ds2.OverviewFactors()
	assert.Equal(t, []int{2, 4}, factors)
	assert.Equal(t, Average.String(), alg)

	ovrs := b2.Overviews()
	require.Len(t, ovrs, 2)
	assert.Equal(t, 32, ovrs[0].Structure().SizeX)
	assert.Equal(t, 16, ovrs[1].Structure().SizeX)

	doc, err := ds2.XML()
	require.NoError(t, err)
	assert.Contains(t, doc, "<OverviewList")

	require.NoError(t, ds2.BuildOverviews(Average))
	factors, _ = ds2.OverviewFactors()
	assert.Empty(t, factors)
}
