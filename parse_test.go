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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRejections(t *testing.T) {
	cases := []struct {
		doc  string
		kind error
	}{
		{`<VRTDataset rasterXSize="2"`, ErrInvalidInput},
		{`<Foo rasterXSize="2" rasterYSize="2"/>`, ErrInvalidInput},
		{`<VRTDataset rasterXSize="2"/>`, ErrInvalidInput},
		{`<VRTDataset rasterXSize="0" rasterYSize="2"/>`, ErrInvalidInput},
		{`<VRTDataset rasterXSize="a" rasterYSize="2"/>`, ErrInvalidInput},
		{`<VRTDataset subClass="VRTFoo" rasterXSize="2" rasterYSize="2"/>`, ErrInvalidInput},
		{`<VRTDataset><Group name="/"/></VRTDataset>`, ErrUnsupported},
		{`<VRTDataset subClass="VRTProcessedDataset"/>`, ErrUnsupported},
		{`<VRTDataset rasterXSize="2" rasterYSize="2"><GeoTransform>1,2,3</GeoTransform></VRTDataset>`, ErrInvalidInput},
		{`<VRTDataset rasterXSize="2" rasterYSize="2"><SRS dataAxisToSRSAxisMapping="a,b">EPSG:4326</SRS></VRTDataset>`, ErrInvalidInput},
		{`<VRTDataset rasterXSize="2" rasterYSize="2"><VRTRasterBand dataType="Foo"/></VRTDataset>`, ErrInvalidInput},
		{`<VRTDataset rasterXSize="2" rasterYSize="2"><VRTRasterBand band="2"/></VRTDataset>`, ErrInconsistentState},
		{`<VRTDataset rasterXSize="2" rasterYSize="2"><VRTRasterBand subClass="VRTFoo"/></VRTDataset>`, ErrInvalidInput},
		{`<VRTDataset rasterXSize="2" rasterYSize="2"><VRTRasterBand subClass="VRTRawRasterBand"><SourceFilename>a</SourceFilename><ByteOrder>VAX</ByteOrder></VRTRasterBand></VRTDataset>`, ErrUnsupported},
		{`<VRTDataset rasterXSize="2" rasterYSize="2"><VRTRasterBand><SimpleSource><SourceBand>1</SourceBand></SimpleSource></VRTRasterBand></VRTDataset>`, ErrInvalidInput},
		{`<VRTDataset rasterXSize="2" rasterYSize="2"><OverviewList>2 1</OverviewList></VRTDataset>`, ErrInvalidInput},
	}
	for _, c := range cases {
		_, err := Open(c.doc)
		assert.True(t, errors.Is(err, c.kind), "%s: %v", c.doc, err)
	}
}

func TestParseCompatibility(t *testing.T) {
	memSource(t, "mem://compat", 2, 2, Byte, constant(4))
	doc := `<VRTDataset rasterXSize="2" rasterYSize="2">
  <VRTRasterBand dataType="Byte" band="1" blockXSize="1" blockYSize="1">
    <SimpleSource>
      <SourceFilename relativetoVRT="0">mem://compat</SourceFilename>
      <SourceBand>1</SourceBand>
    </SimpleSource>
  </VRTRasterBand>
</VRTDataset>`
	ds, err := Open(doc)
	require.NoError(t, err)
	defer ds.Close()
	b := ds.Bands()[0]
	assert.Equal(t, 1, b.Structure().BlockSizeX)
	assert.Equal(t, []float64{4, 4, 4, 4}, readAll(t, b))
	buf := make([]byte, 1)
	require.NoError(t, b.ReadBlock(1, 1, buf))
	assert.Equal(t, byte(4), buf[0])
}

func TestGCPsAndMaskRoundTrip(t *testing.T) {
	m := memSource(t, "mem://gcpmask", 2, 2, Byte, constant(6))
	mask, err := m.CreateMaskBand()
	require.NoError(t, err)
	require.NoError(t, mask.Write(0, 0, []byte{255, 0, 0, 255}, 2, 2))

	ds, _ := Create("", 2, 2)
	defer ds.Close()
	require.NoError(t, ds.SetGCPs([]GCP{
		{ID: "1", Pixel: 0, Line: 0, X: 10, Y: 20},
		{ID: "2", Info: "corner", Pixel: 2, Line: 2, X: 12, Y: 18, Z: 5},
	}, SpatialRef{WKT: "EPSG:4326"}))
	b, _ := ds.AddBand(Byte)
	_, err = b.AddSimpleSource("mem://gcpmask", 1)
	require.NoError(t, err)
	mb, err := ds.CreateMaskBand()
	require.NoError(t, err)
	_, err = mb.AddSimpleSource("mem://gcpmask", 0)
	require.NoError(t, err)
	_, err = ds.CreateMaskBand()
	assert.True(t, errors.Is(err, ErrInconsistentState))

	assert.Equal(t, GMF_PER_DATASET, b.MaskFlags())
	assert.Equal(t, []float64{255, 0, 0, 255}, readAll(t, b.MaskBand()))

	doc, err := ds.XML()
	require.NoError(t, err)
	assert.Contains(t, doc, "<MaskBand>")
	rt, err := Open(doc)
	require.NoError(t, err)
	defer rt.Close()
	gcps, sr := rt.GCPs()
	require.Len(t, gcps, 2)
	assert.Equal(t, "EPSG:4326", sr.WKT)
	assert.Equal(t, "corner", gcps[1].Info)
	assert.Equal(t, 5.0, gcps[1].Z)
	assert.Equal(t, 18.0, gcps[1].Y)
	assert.Equal(t, GMF_PER_DATASET, rt.Bands()[0].MaskFlags())
	assert.Equal(t, []float64{255, 0, 0, 255}, readAll(t, rt.Bands()[0].MaskBand()))
}

func TestMetadataDomains(t *testing.T) {
	ds, _ := Create("", 2, 2)
	defer ds.Close()
	require.NoError(t, ds.SetMetadata("A", "1"))
	require.NoError(t, ds.SetMetadata("B", "2", Domain("custom")))
	require.NoError(t, ds.SetMetadata("", "<doc><x/></doc>", Domain("xml:test")))
	assert.Error(t, ds.SetMetadata("", "x"))
	assert.Error(t, ds.SetMetadata("a=b", "x"))
	assert.Equal(t, []string{"", "custom", "xml:test"}, ds.MetadataDomains())

	doc, err := ds.XML()
	require.NoError(t, err)
	rt, err := Open(doc)
	require.NoError(t, err)
	defer rt.Close()
	assert.Equal(t, map[string]string{"A": "1"}, rt.Metadatas())
	assert.Equal(t, "2", rt.Metadata("B", Domain("custom")))
	assert.True(t, strings.Contains(rt.Metadata("", Domain("xml:test")), "<x"))

	require.NoError(t, rt.SetMetadata("A", ""))
	assert.Nil(t, rt.Metadatas())
}

type constKernel struct{}

func (constKernel) Read(ds *Dataset, band int, xOff, yOff, xSize, ySize int, out []float64, bufWidth, bufHeight int) error {
	for i := range out {
		out[i] = float64(band * 10)
	}
	return nil
}

func TestWarpedDataset(t *testing.T) {
	ds, err := Create("", 4, 4, CreationOption("SUBCLASS=VRTWarpedDataset"))
	require.NoError(t, err)
	defer ds.Close()
	b, err := ds.AddBand(Byte)
	require.NoError(t, err)
	assert.Equal(t, WarpedBand, b.Subclass())
	_, err = b.AddSimpleSource("mem://x", 1)
	assert.True(t, errors.Is(err, ErrUnsupported))
	buf := make([]byte, 16)
	assert.True(t, errors.Is(b.Read(0, 0, buf, 4, 4), ErrUnsupported))

	assert.True(t, errors.Is(ds.SetSubclassOptions([]byte(`<Foo/>`)), ErrInvalidInput))
	require.NoError(t, ds.SetSubclassOptions([]byte(`<GDALWarpOptions><ResampleAlg>Bilinear</ResampleAlg></GDALWarpOptions>`)))

	require.NoError(t, RegisterKernel(WarpedDataset, constKernel{}))
	t.Cleanup(func() { _ = RegisterKernel(WarpedDataset, nil) })
	require.NoError(t, b.Read(0, 0, buf, 4, 4))
	assert.Equal(t, byte(10), buf[15])

	doc, err := ds.XML()
	require.NoError(t, err)
	rt, err := Open(doc)
	require.NoError(t, err)
	defer rt.Close()
	assert.Equal(t, WarpedDataset, rt.Subclass())
	assert.Contains(t, string(rt.SubclassOptions()), "<ResampleAlg>Bilinear</ResampleAlg>")
	assert.Equal(t, 4, rt.Structure().BlockSizeX)

	assert.True(t, errors.Is(RegisterKernel(PlainDataset, constKernel{}), ErrInvalidInput))
	plain, _ := Create("", 2, 2)
	defer plain.Close()
	assert.True(t, errors.Is(plain.SetSubclassOptions([]byte(`<GDALWarpOptions/>`)), ErrUnsupported))
}
