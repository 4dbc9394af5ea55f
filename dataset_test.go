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

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSingleSourcePassthrough(t *testing.T) {
	memSource(t, "mem://s1", 4, 4, Byte, rowMajor(4, 0))
	ds, err := Create("", 4, 4)
	require.NoError(t, err)
	defer ds.Close()
	b, err := ds.AddBand(Byte)
	require.NoError(t, err)
	_, err = b.AddSimpleSource("mem://s1", 1)
	require.NoError(t, err)

	buf := make([]byte, 16)
	require.NoError(t, b.Read(0, 0, buf, 4, 4))
	for i := range buf {
		assert.Equal(t, byte(i), buf[i])
	}
	dbuf := make([]byte, 16)
	require.NoError(t, ds.Read(0, 0, dbuf, 4, 4))
	assert.Equal(t, buf, dbuf)
}

func mosaic(t *testing.T) *Dataset {
	t.Helper()
	memSource(t, "mem://s2a", 2, 4, Byte, rowMajor(2, 0))
	memSource(t, "mem://s2b", 2, 4, Byte, rowMajor(2, 100))
	ds, err := Create("", 4, 4)
	require.NoError(t, err)
	b, err := ds.AddBand(Byte)
	require.NoError(t, err)
	_, err = b.AddSimpleSource("mem://s2a", 1, DstRect(0, 0, 2, 4))
	require.NoError(t, err)
	_, err = b.AddSimpleSource("mem://s2b", 1, DstRect(2, 0, 2, 4))
	require.NoError(t, err)
	return ds
}

func TestTwoSourceMosaic(t *testing.T) {
	ds := mosaic(t)
	defer ds.Close()
	buf := make([]byte, 16)
	require.NoError(t, ds.Bands()[0].Read(0, 0, buf, 4, 4))
	assert.Equal(t, []byte{0, 1, 100, 101}, buf[:4])
	assert.Equal(t, []byte{6, 7, 106, 107}, buf[12:])

	ok, n := ds.Bands()[0].CanParallelize(0, 0, 4, 4)
	assert.True(t, ok)
	assert.Equal(t, 2, n)
	ok, n = ds.Bands()[0].CanParallelize(0, 0, 1, 4)
	assert.False(t, ok)
	assert.Equal(t, 1, n)
}

func TestResampledSource(t *testing.T) {
	memSource(t, "mem://s3", 4, 4, Byte, constant(42))
	ds, err := Create("", 2, 2)
	require.NoError(t, err)
	defer ds.Close()
	b, _ := ds.AddBand(Byte)
	_, err = b.AddSimpleSource("mem://s3", 1, SrcRect(0, 0, 4, 4), DstRect(0, 0, 2, 2))
	require.NoError(t, err)
	buf := make([]byte, 4)
	require.NoError(t, b.Read(0, 0, buf, 2, 2, Resampling(Nearest)))
	assert.Equal(t, []byte{42, 42, 42, 42}, buf)
}

func TestXMLRoundTrip(t *testing.T) {
	ds := mosaic(t)
	defer ds.Close()
	ds.SetDescription("")
	require.NoError(t, ds.SetGeoTransform([6]float64{100, 0.5, 0, 200, 0, -0.5}))
	require.NoError(t, ds.SetSpatialRef(SpatialRef{WKT: "EPSG:4326", AxisMapping: []int{2, 1}, CoordinateEpoch: 2021.3}))
	require.NoError(t, ds.SetMetadata("AREA_OR_POINT", "Area"))
	b := ds.Bands()[0]
	require.NoError(t, b.SetNoData(255))
	require.NoError(t, b.SetColorInterp(CIRed))
	require.NoError(t, b.SetScaleOffset(2, 1))
	require.NoError(t, b.SetUnit("m"))
	b.SetDescription("first")
	require.NoError(t, b.SetCategoryNames([]string{"a", "b"}))

	doc, err := ds.XML()
	require.NoError(t, err)
	rt, err := Open(doc)
	require.NoError(t, err)
	defer rt.Close()

	assert.Equal(t, 4, rt.Structure().SizeX)
	gt, err := rt.GeoTransform()
	assert.NoError(t, err)
	assert.Equal(t, [6]float64{100, 0.5, 0, 200, 0, -0.5}, gt)
	sr := rt.SpatialRef()
	assert.Equal(t, "EPSG:4326", sr.WKT)
	assert.Equal(t, []int{2, 1}, sr.AxisMapping)
	assert.Equal(t, 2021.3, sr.CoordinateEpoch)
	assert.Equal(t, "Area", rt.Metadata("AREA_OR_POINT"))

	rb := rt.Bands()[0]
	nd, ok := rb.NoData()
	assert.True(t, ok)
	assert.Equal(t, 255.0, nd)
	assert.Equal(t, CIRed, rb.ColorInterp())
	scale, offset := rb.ScaleOffset()
	assert.Equal(t, 2.0, scale)
	assert.Equal(t, 1.0, offset)
	assert.Equal(t, "m", rb.Unit())
	assert.Equal(t, "first", rb.Description())
	assert.Equal(t, []string{"a", "b"}, rb.CategoryNames())
	assert.Len(t, rb.Sources(), 2)

	want := make([]byte, 16)
	require.NoError(t, b.Read(0, 0, want, 4, 4))
	got := make([]byte, 16)
	require.NoError(t, rb.Read(0, 0, got, 4, 4))
	assert.Equal(t, want, got)

	doc2, err := rt.XML()
	require.NoError(t, err)
	assert.Equal(t, doc, doc2)
}

func TestReadComposition(t *testing.T) {
	src := memSource(t, "mem://identity", 7, 5, UInt16, func(x, y int) float64 { return float64(x*x + 3*y) })
	ds, err := Create("", 7, 5)
	require.NoError(t, err)
	defer ds.Close()
	b, _ := ds.AddBand(UInt16)
	_, err = b.AddSimpleSource("mem://identity", 1)
	require.NoError(t, err)

	sb := src.Bands()[0]
	windows := [][4]int{{0, 0, 7, 5}, {1, 1, 3, 2}, {6, 4, 1, 1}, {2, 0, 5, 5}}
	for _, w := range windows {
		want := make([]uint16, w[2]*w[3])
		got := make([]uint16, w[2]*w[3])
		require.NoError(t, sb.Read(w[0], w[1], want, w[2], w[3]))
		require.NoError(t, b.Read(w[0], w[1], got, w[2], w[3]))
		assert.Equal(t, want, got, fmt.Sprint(w))
	}
}

func TestOverlappingSources(t *testing.T) {
	memSource(t, "mem://ovla", 4, 4, Byte, constant(1))
	memSource(t, "mem://ovlb", 4, 4, Byte, constant(2))
	ds, _ := Create("", 4, 4)
	defer ds.Close()
	b, _ := ds.AddBand(Byte)
	_, err := b.AddSimpleSource("mem://ovla", 1, SrcRect(0, 0, 3, 4), DstRect(0, 0, 3, 4))
	require.NoError(t, err)
	_, err = b.AddSimpleSource("mem://ovlb", 1, SrcRect(0, 0, 3, 4), DstRect(1, 0, 3, 4))
	require.NoError(t, err)
	ok, _ := b.CanParallelize(0, 0, 4, 4)
	assert.False(t, ok)
	buf := make([]byte, 4)
	require.NoError(t, b.Read(0, 0, buf, 4, 1))
	assert.Equal(t, []byte{1, 2, 2, 2}, buf)
}

func TestMosaicThreading(t *testing.T) {
	for i, name := range []string{"mem://mt0", "mem://mt1", "mem://mt2", "mem://mt3"} {
		off := float64(i * 50)
		memSource(t, name, 512, 512, Byte, func(x, y int) float64 { return float64((x+y)%200) + off })
	}
	build := func(threads string) *Dataset {
		ds, err := Create("", 1024, 1024, ConfigOption("VRT_NUM_THREADS="+threads))
		require.NoError(t, err)
		b, _ := ds.AddBand(Byte)
		for i := 0; i < 4; i++ {
			_, err := b.AddSimpleSource(fmt.Sprintf("mem://mt%d", i), 1,
				DstRect(float64(i%2*512), float64(i/2*512), 512, 512))
			require.NoError(t, err)
		}
		return ds
	}
	single := build("1")
	defer single.Close()
	multi := build("4")
	defer multi.Close()

	a := make([]byte, 1024*1024)
	b := make([]byte, 1024*1024)
	require.NoError(t, single.Read(0, 0, a, 1024, 1024))
	require.NoError(t, multi.Read(0, 0, b, 1024, 1024))
	assert.Equal(t, a, b)
	assert.Equal(t, byte(150), a[512*1024+512])

	var steps []float64
	require.NoError(t, multi.Read(0, 0, b, 1024, 1024, Progress(func(c float64) bool {
		steps = append(steps, c)
		return true
	})))
	assert.Len(t, steps, 4)
	assert.Equal(t, 1.0, steps[3])

	err := multi.Read(0, 0, b, 1024, 1024, Progress(func(c float64) bool { return false }))
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestCreateOptions(t *testing.T) {
	_, err := Create("", 0, 10)
	assert.True(t, errors.Is(err, ErrInvalidInput))
	_, err = Create("", 10, 10, CreationOption("BLOCKXSIZE=abc"))
	assert.True(t, errors.Is(err, ErrInvalidInput))
	_, err = Create("", 10, 10, CreationOption("SUBCLASS=VRTFooDataset"))
	assert.True(t, errors.Is(err, ErrInvalidInput))

	ds, err := Create("", 1000, 10, CreationOption("BLOCKXSIZE=256", "BLOCKYSIZE=8"))
	require.NoError(t, err)
	defer ds.Close()
	st := ds.Structure()
	assert.Equal(t, 256, st.BlockSizeX)
	assert.Equal(t, 8, st.BlockSizeY)
	assert.Equal(t, 0, st.NBands)

	_, err = ds.AddBand(Unknown)
	assert.True(t, errors.Is(err, ErrInvalidInput))
	_, err = ds.AddBand(Byte, CreationOption("subclass=VRTFooRasterBand"))
	assert.True(t, errors.Is(err, ErrInvalidInput))
	_, err = ds.AddBand(Byte, CreationOption("subclass=VRTWarpedRasterBand"))
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestBounds(t *testing.T) {
	ds, _ := Create("", 10, 20)
	defer ds.Close()
	_, err := ds.Bounds()
	assert.Error(t, err)
	require.NoError(t, ds.SetGeoTransform([6]float64{45, 1, 0, 35, 0, -1}))
	bnds, err := ds.Bounds()
	require.NoError(t, err)
	assert.Equal(t, Bounds{45, 15, 55, 35}, bnds)
}

func TestFlushAndReopen(t *testing.T) {
	memSource(t, "mem://flush", 4, 4, Byte, rowMajor(4, 0))
	fs := afero.NewMemMapFs()
	ds, err := Create("/data/out.vrt", 4, 4, FileSystem(fs))
	require.NoError(t, err)
	b, _ := ds.AddBand(Byte)
	_, err = b.AddSimpleSource("mem://flush", 1)
	require.NoError(t, err)
	require.NoError(t, ds.Close())

	exists, _ := afero.Exists(fs, "/data/out.vrt")
	require.True(t, exists)

	rt, err := Open("/data/out.vrt", FileSystem(fs))
	require.NoError(t, err)
	assert.Equal(t, seq(0, 16), readAll(t, rt.Bands()[0]))
	require.NoError(t, rt.Close())

	_, err = Open("/data/missing.vrt", FileSystem(fs))
	assert.True(t, errors.Is(err, ErrIOFailure))
}

func TestRecursion(t *testing.T) {
	fs := afero.NewMemMapFs()
	doc := `<VRTDataset rasterXSize="2" rasterYSize="2">
  <VRTRasterBand dataType="Byte" band="1">
    <SimpleSource>
      <SourceFilename relativeToVRT="1">self.vrt</SourceFilename>
      <SourceBand>1</SourceBand>
    </SimpleSource>
  </VRTRasterBand>
</VRTDataset>`
	require.NoError(t, afero.WriteFile(fs, "/self.vrt", []byte(doc), 0o644))
	ds, err := Open("/self.vrt", FileSystem(fs))
	require.NoError(t, err)
	defer ds.Close()
	buf := make([]byte, 4)
	err = ds.Bands()[0].Read(0, 0, buf, 2, 2)
	assert.Error(t, err)
}

func TestErrorSource(t *testing.T) {
	ds, _ := Create("", 4, 4)
	defer ds.Close()
	b, _ := ds.AddBand(Byte)
	_, err := b.AddSimpleSource("mem://doesnotexist", 1)
	require.NoError(t, err)
	buf := make([]byte, 16)
	err = b.Read(0, 0, buf, 4, 4)
	assert.True(t, errors.Is(err, ErrIOFailure))

	_, err = b.AddSimpleSource("", 1)
	assert.True(t, errors.Is(err, ErrInvalidInput))
	_, err = b.AddSimpleSource("mem://x", -1)
	assert.True(t, errors.Is(err, ErrInvalidInput))
	_, err = b.AddSimpleSource("mem://x", 1, DstRect(0, 0, -1, 2))
	assert.True(t, errors.Is(err, ErrInvalidInput))

	err = b.Read(2, 2, buf, 4, 4)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

// memBands registers a named memory dataset whose band k holds 10*k plus the
// row-major pixel index, offset by start.
func memBands(t *testing.T, name string, w, h, n int, start float64) {
	t.Helper()
	m, err := NewMemDataset(name, w, h, n, Byte)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	for k := 1; k <= n; k++ {
		data := make([]float64, w*h)
		for i := range data {
			data[i] = start + float64(10*k+i)
		}
		require.NoError(t, m.Bands()[k-1].Write(0, 0, data, w, h))
	}
}

func TestMultiBandDatasetRead(t *testing.T) {
	memBands(t, "mem://mb", 4, 4, 3, 0)
	ds, err := Create("", 4, 4)
	require.NoError(t, err)
	defer ds.Close()
	for k := 1; k <= 3; k++ {
		b, _ := ds.AddBand(Byte)
		_, err = b.AddSimpleSource("mem://mb", k)
		require.NoError(t, err)
	}

	buf := make([]byte, 16*3)
	require.NoError(t, ds.Read(0, 0, buf, 4, 4))
	for i := 0; i < 16; i++ {
		for k := 1; k <= 3; k++ {
			assert.Equal(t, byte(10*k+i), buf[i*3+k-1], "pixel %d band %d", i, k)
		}
	}

	sel := make([]byte, 16*2)
	require.NoError(t, ds.Read(0, 0, sel, 4, 4, Bands(2, 0), BandInterleaved()))
	for i := 0; i < 16; i++ {
		assert.Equal(t, byte(30+i), sel[i])
		assert.Equal(t, byte(10+i), sel[16+i])
	}
}

func TestMultiBandMosaicRead(t *testing.T) {
	memBands(t, "mem://mbl", 2, 4, 3, 0)
	memBands(t, "mem://mbr", 2, 4, 3, 100)
	ds, err := Create("", 4, 4)
	require.NoError(t, err)
	defer ds.Close()
	for k := 1; k <= 3; k++ {
		b, _ := ds.AddBand(Byte)
		_, err = b.AddSimpleSource("mem://mbl", k, DstRect(0, 0, 2, 4))
		require.NoError(t, err)
		_, err = b.AddSimpleSource("mem://mbr", k, DstRect(2, 0, 2, 4))
		require.NoError(t, err)
	}

	buf := make([]byte, 16*3)
	require.NoError(t, ds.Read(0, 0, buf, 4, 4, BandInterleaved()))
	for k := 1; k <= 3; k++ {
		band := buf[(k-1)*16 : k*16]
		assert.Equal(t, []byte{byte(10 * k), byte(10*k + 1), byte(110 + 10*k), byte(111 + 10*k)}, band[:4], "band %d", k)
		assert.Equal(t, []byte{byte(10*k + 6), byte(10*k + 7), byte(116 + 10*k), byte(117 + 10*k)}, band[12:], "band %d", k)
	}
}

func TestShortSourceBandList(t *testing.T) {
	memBands(t, "mem://short", 2, 2, 2, 0)
	ds, err := Create("", 2, 2)
	require.NoError(t, err)
	defer ds.Close()
	for k := 1; k <= 2; k++ {
		b, _ := ds.AddBand(Byte)
		_, err = b.AddSimpleSource("mem://short", k, SourceBandList(1))
		require.NoError(t, err)
	}
	buf := make([]byte, 8)
	assert.NotPanics(t, func() {
		err = ds.Read(0, 0, buf, 2, 2)
	})
	assert.True(t, errors.Is(err, ErrIOFailure))
}

// reversePool runs jobs one at a time, last job first
type reversePool struct{}

func (reversePool) Run(maxConcurrency int, jobs []func() error, done func(job int)) []error {
	errs := make([]error, len(jobs))
	for i := len(jobs) - 1; i >= 0; i-- {
		errs[i] = jobs[i]()
		if done != nil {
			done(i)
		}
	}
	return errs
}

func TestFractionalSeamThreading(t *testing.T) {
	memSource(t, "mem://seam1", 1000, 1000, Byte, constant(1))
	memSource(t, "mem://seam2", 1000, 1000, Byte, constant(2))
	build := func(opts ...CreateOption) *Dataset {
		ds, err := Create("", 2000, 1000, opts...)
		require.NoError(t, err)
		b, _ := ds.AddBand(Byte)
		_, err = b.AddSimpleSource("mem://seam1", 1, DstRect(0, 0, 1000.5, 1000))
		require.NoError(t, err)
		_, err = b.AddSimpleSource("mem://seam2", 1, DstRect(1000.5, 0, 999.5, 1000))
		require.NoError(t, err)
		return ds
	}
	serial := build(ConfigOption("VRT_NUM_THREADS=1"))
	defer serial.Close()
	threaded := build(ConfigOption("VRT_NUM_THREADS=4"), WithWorkerPool(reversePool{}))
	defer threaded.Close()

	// both sources touch column 1000
	ok, _ := threaded.Bands()[0].CanParallelize(0, 0, 2000, 1000)
	assert.False(t, ok)

	a := make([]byte, 2000*1000)
	b := make([]byte, 2000*1000)
	require.NoError(t, serial.Read(0, 0, a, 2000, 1000))
	require.NoError(t, threaded.Read(0, 0, b, 2000, 1000))
	assert.Equal(t, a, b)
	assert.Equal(t, byte(1), a[999])
	assert.Equal(t, byte(2), a[1000])
	assert.Equal(t, byte(2), b[1000])
}

func TestXMLIndependentOfReads(t *testing.T) {
	ds := mosaic(t)
	defer ds.Close()
	before, err := ds.XML()
	require.NoError(t, err)
	buf := make([]byte, 16)
	require.NoError(t, ds.Read(0, 0, buf, 4, 4))
	after, err := ds.XML()
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.NotContains(t, after, "SourceProperties")

	b := ds.Bands()[0]
	_, err = b.AddSimpleSource("mem://s2a", 1, DstRect(0, 0, 2, 4),
		SourceProperties(BandStructure{SizeX: 2, SizeY: 4, BlockSizeX: 2, BlockSizeY: 1, DataType: Byte}))
	require.NoError(t, err)
	doc, err := ds.XML()
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(doc, "<SourceProperties"))
	assert.Contains(t, doc, `BlockYSize="1"`)

	rt, err := Open(doc)
	require.NoError(t, err)
	defer rt.Close()
	require.NoError(t, rt.Read(0, 0, buf, 4, 4))
	doc2, err := rt.XML()
	require.NoError(t, err)
	assert.Equal(t, doc, doc2)
}
