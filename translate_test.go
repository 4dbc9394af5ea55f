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

func TestTranslateWindow(t *testing.T) {
	m := memSource(t, "mem://tw", 4, 4, Byte, rowMajor(4, 0))
	m.SetGeoTransform([6]float64{100, 10, 0, 200, 0, -10})

	ds, err := Translate("", m, []string{"-srcwin", "1", "1", "2", "3"})
	require.NoError(t, err)
	defer ds.Close()
	st := ds.Structure()
	assert.Equal(t, 2, st.SizeX)
	assert.Equal(t, 3, st.SizeY)
	gt, err := ds.GeoTransform()
	require.NoError(t, err)
	assert.Equal(t, [6]float64{110, 10, 0, 190, 0, -10}, gt)
	assert.Equal(t, []float64{5, 6, 9, 10, 13, 14}, readAll(t, ds.Bands()[0]))

	pw, err := Translate("", m, []string{"-projwin", "120", "180", "140", "160"})
	require.NoError(t, err)
	defer pw.Close()
	assert.Equal(t, []float64{10, 11, 14, 15}, readAll(t, pw.Bands()[0]))

	half, err := Translate("", m, []string{"-outsize", "50%", "0"})
	require.NoError(t, err)
	defer half.Close()
	assert.Equal(t, 2, half.Structure().SizeX)
	assert.Equal(t, 2, half.Structure().SizeY)
	gt, _ = half.GeoTransform()
	assert.Equal(t, 20.0, gt[1])

	tr, err := Translate("", m, []string{"-tr", "20", "20"})
	require.NoError(t, err)
	defer tr.Close()
	assert.Equal(t, 2, tr.Structure().SizeX)
}

func TestTranslateAssignments(t *testing.T) {
	m := memSource(t, "mem://ta", 2, 2, Byte, constant(3))
	ds, err := Translate("", m, []string{
		"-a_ullr", "0", "10", "20", "0",
		"-a_srs", "EPSG:32631",
		"-a_coord_epoch", "2020.5",
		"-a_nodata", "255",
		"-a_scale", "2", "-a_offset", "1",
		"-ot", "Int16",
	})
	require.NoError(t, err)
	defer ds.Close()
	gt, err := ds.GeoTransform()
	require.NoError(t, err)
	assert.Equal(t, [6]float64{0, 10, 0, 10, 0, -5}, gt)
	assert.Equal(t, "EPSG:32631", ds.SpatialRef().WKT)
	assert.Equal(t, 2020.5, ds.SpatialRef().CoordinateEpoch)
	b := ds.Bands()[0]
	assert.Equal(t, Int16, b.Structure().DataType)
	nd, ok := b.NoData()
	assert.True(t, ok)
	assert.Equal(t, 255.0, nd)
	scale, offset := b.ScaleOffset()
	assert.Equal(t, 2.0, scale)
	assert.Equal(t, 1.0, offset)
}

func TestTranslateScaling(t *testing.T) {
	m := memSource(t, "mem://tscale", 4, 4, Byte, rowMajor(4, 0))
	ds, err := Translate("", m, []string{"-scale", "0", "15", "0", "255"})
	require.NoError(t, err)
	defer ds.Close()
	b := ds.Bands()[0]
	assert.Equal(t, ComplexSourceKind, b.Sources()[0].Kind())
	got := readAll(t, b)
	for i, v := range got {
		assert.Equal(t, float64(17*i), v)
	}

	_, err = Translate("", m, []string{"-exponent", "2"})
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestTranslateExpand(t *testing.T) {
	m := memSource(t, "mem://texpand", 2, 1, Byte, rowMajor(2, 0))
	m.Bands()[0].SetColorTable(ColorTable{
		PaletteInterp: RGBPalette,
		Entries:       [][4]int16{{10, 20, 30, 255}, {40, 50, 60, 0}},
	})
	ds, err := Translate("", m, []string{"-expand", "rgba"})
	require.NoError(t, err)
	defer ds.Close()
	require.Len(t, ds.Bands(), 4)
	assert.Equal(t, CIRed, ds.Bands()[0].ColorInterp())
	assert.Equal(t, CIAlpha, ds.Bands()[3].ColorInterp())
	assert.Equal(t, []float64{10, 40}, readAll(t, ds.Bands()[0]))
	assert.Equal(t, []float64{30, 60}, readAll(t, ds.Bands()[2]))
	assert.Equal(t, []float64{255, 0}, readAll(t, ds.Bands()[3]))
}

func TestTranslateErrors(t *testing.T) {
	m := memSource(t, "mem://terr", 4, 4, Byte, constant(1))
	for _, sw := range [][]string{
		{"-b", "2"},
		{"-b", "zero"},
		{"-ot", "Int3"},
		{"-outsize", "0", "0"},
		{"-outsize", "2", "2", "-tr", "1", "1"},
		{"-srcwin", "0", "0", "1"},
		{"-srcwin", "10", "10", "2", "2", "-eco"},
		{"-srcwin", "-1", "0", "2", "2", "-epo"},
		{"-tr", "1", "1"},
		{"-expand", "cmyk"},
		{"-r", "magic"},
		{"-unknown"},
	} {
		_, err := Translate("", m, sw)
		assert.True(t, errors.Is(err, ErrInvalidInput), "%v: %v", sw, err)
	}
	_, err := Translate("", m, []string{"-of", "GTiff"})
	assert.True(t, errors.Is(err, ErrUnsupported))
	_, err = Translate("", m, []string{"-ovr", "AUTO-1"})
	assert.True(t, errors.Is(err, ErrUnsupported))
	_, err = Translate("", m, []string{"-projwin_srs", "EPSG:4326"})
	assert.True(t, errors.Is(err, ErrUnsupported))
}
