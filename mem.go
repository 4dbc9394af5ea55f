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
	"strings"
	"sync"
)

const memPrefix = "mem://"

var memMu sync.Mutex
var memDatasets = map[string]*MemDataset{}

// MemDataset is an in-memory raster. Named memory datasets can be referenced by
// the sources of virtual datasets through their "mem://" name.
type MemDataset struct {
	majorObject
	name          string
	width, height int
	bands         []*MemBand
	gt            [6]float64
	hasGT         bool
	srs           SpatialRef
	gcps          []GCP
	gcpSRS        SpatialRef
	mask          *MemBand
}

// MemBand is a band of a MemDataset
type MemBand struct {
	majorObject
	ds          *MemDataset
	w, h        int
	dtype       DataType
	data        []float64
	nodata      float64
	hasNoData   bool
	colorInterp ColorInterp
	colorTable  ColorTable
	scale       float64
	offset      float64
	unit        string
	overviews   []*MemBand
	mask        *MemBand
	maskFlags   int
}

// NewMemDataset creates an in-memory raster of nBands bands. If name is not empty
// it must start with "mem://", and the dataset can then be opened by that name until
// it is closed.
func NewMemDataset(name string, width, height, nBands int, dtype DataType) (*MemDataset, error) {
	if width <= 0 || height <= 0 || nBands < 0 {
		return nil, errorf(ErrInvalidInput, "invalid memory dataset size %dx%dx%d", width, height, nBands)
	}
	if dtype == Unknown || dtype.IsComplex() {
		return nil, errorf(ErrUnsupported, "unsupported memory dataset type %s", dtype)
	}
	if name != "" && !strings.HasPrefix(name, memPrefix) {
		return nil, errorf(ErrInvalidInput, "memory dataset name %q must start with %s", name, memPrefix)
	}
	ds := &MemDataset{name: name, width: width, height: height}
	for i := 0; i < nBands; i++ {
		ds.bands = append(ds.bands, newMemBand(ds, width, height, dtype))
	}
	if name != "" {
		memMu.Lock()
		defer memMu.Unlock()
		if _, ok := memDatasets[name]; ok {
			return nil, errorf(ErrInconsistentState, "memory dataset %s already exists", name)
		}
		memDatasets[name] = ds
	}
	return ds, nil
}

func newMemBand(ds *MemDataset, w, h int, dtype DataType) *MemBand {
	return &MemBand{ds: ds, w: w, h: h, dtype: dtype, data: make([]float64, w*h), scale: 1, colorInterp: CIGray}
}

// Bands returns the dataset's bands
func (m *MemDataset) Bands() []*MemBand {
	return m.bands
}

func (m *MemDataset) Structure() DatasetStructure {
	st := DatasetStructure{NBands: len(m.bands)}
	st.SizeX, st.SizeY = m.width, m.height
	st.BlockSizeX, st.BlockSizeY = m.width, 1
	if len(m.bands) > 0 {
		st.DataType = m.bands[0].dtype
	}
	return st
}

func (m *MemDataset) RasterBand(n int) (SourceBand, error) {
	if n < 1 || n > len(m.bands) {
		return nil, errorf(ErrInvalidInput, "invalid band number %d", n)
	}
	return m.bands[n-1], nil
}

func (m *MemDataset) Description() string {
	return m.name
}

func (m *MemDataset) SetGeoTransform(gt [6]float64) {
	m.gt, m.hasGT = gt, true
}

func (m *MemDataset) GeoTransform() ([6]float64, error) {
	if !m.hasGT {
		return [6]float64{0, 1, 0, 0, 0, 1}, errorf(ErrInvalidInput, "no geotransform set")
	}
	return m.gt, nil
}

func (m *MemDataset) SetSpatialRef(sr SpatialRef) {
	m.srs = sr
}

func (m *MemDataset) SpatialRef() SpatialRef {
	return m.srs
}

func (m *MemDataset) SetGCPs(gcps []GCP, sr SpatialRef) {
	m.gcps, m.gcpSRS = gcps, sr
}

func (m *MemDataset) GCPs() ([]GCP, SpatialRef) {
	return m.gcps, m.gcpSRS
}

// CreateMaskBand creates a mask shared by all bands of the dataset
func (m *MemDataset) CreateMaskBand() (*MemBand, error) {
	if m.mask != nil {
		return nil, errorf(ErrInconsistentState, "dataset already has a mask band")
	}
	m.mask = newMemBand(m, m.width, m.height, Byte)
	m.mask.colorInterp = CIUndefined
	for i := range m.mask.data {
		m.mask.data[i] = 255
	}
	for _, b := range m.bands {
		b.mask = m.mask
		b.maskFlags = GMF_PER_DATASET
	}
	return m.mask, nil
}

func (m *MemDataset) Read(srcX, srcY int, buffer interface{}, bufWidth, bufHeight int, opts ...DatasetIOOption) error {
	return readBandByBand(m.width, m.height, m.RasterBand, len(m.bands), srcX, srcY, buffer, bufWidth, bufHeight, opts)
}

// BuildOverviews computes overviews of all bands for the given decimation factors
func (m *MemDataset) BuildOverviews(alg ResamplingAlg, levels ...int) error {
	for _, b := range m.bands {
		if err := b.BuildOverviews(alg, levels...); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the dataset and unregisters its name
func (m *MemDataset) Close(opts ...CloseOption) error {
	if m.name != "" {
		memMu.Lock()
		if memDatasets[m.name] == m {
			delete(memDatasets, m.name)
		}
		memMu.Unlock()
	}
	return nil
}

func (b *MemBand) Structure() BandStructure {
	return BandStructure{SizeX: b.w, SizeY: b.h, BlockSizeX: b.w, BlockSizeY: 1, DataType: b.dtype}
}

func (b *MemBand) SetNoData(nd float64) {
	b.nodata, b.hasNoData = nd, true
}

func (b *MemBand) NoData() (float64, bool) {
	return b.nodata, b.hasNoData
}

func (b *MemBand) SetColorInterp(ci ColorInterp) {
	b.colorInterp = ci
}

func (b *MemBand) ColorInterp() ColorInterp {
	return b.colorInterp
}

func (b *MemBand) SetColorTable(ct ColorTable) {
	b.colorTable = ct.clone()
}

func (b *MemBand) ColorTable() ColorTable {
	return b.colorTable
}

func (b *MemBand) SetScaleOffset(scale, offset float64) {
	b.scale, b.offset = scale, offset
}

func (b *MemBand) ScaleOffset() (float64, float64) {
	return b.scale, b.offset
}

func (b *MemBand) SetUnit(unit string) {
	b.unit = unit
}

func (b *MemBand) Unit() string {
	return b.unit
}

func (b *MemBand) Overviews() []SourceBand {
	ret := make([]SourceBand, len(b.overviews))
	for i := range b.overviews {
		ret[i] = b.overviews[i]
	}
	return ret
}

// AddOverview attaches ovr as the next overview of the band
func (b *MemBand) AddOverview(ovr *MemBand) error {
	ow, oh := b.w, b.h
	if n := len(b.overviews); n > 0 {
		ow, oh = b.overviews[n-1].w, b.overviews[n-1].h
	}
	if ovr.w >= ow || ovr.h >= oh {
		return errorf(ErrInvalidInput, "overview %dx%d is not smaller than %dx%d", ovr.w, ovr.h, ow, oh)
	}
	b.overviews = append(b.overviews, ovr)
	return nil
}

// BuildOverviews computes overviews of the band for the given decimation factors
func (b *MemBand) BuildOverviews(alg ResamplingAlg, levels ...int) error {
	b.overviews = nil
	for _, lvl := range levels {
		if lvl <= 1 {
			return errorf(ErrInvalidInput, "invalid overview level %d", lvl)
		}
		ow, oh := (b.w+lvl-1)/lvl, (b.h+lvl-1)/lvl
		ovr := newMemBand(b.ds, ow, oh, b.dtype)
		ovr.nodata, ovr.hasNoData = b.nodata, b.hasNoData
		ovr.colorInterp = b.colorInterp
		if err := b.Read(0, 0, ovr.data, ow, oh, Window(b.w, b.h), Resampling(alg), skipOverviewsOpt{}); err != nil {
			return err
		}
		for i := range ovr.data {
			ovr.data[i] = b.dtype.clamp(ovr.data[i])
		}
		if err := b.AddOverview(ovr); err != nil {
			return err
		}
	}
	return nil
}

func (b *MemBand) MaskBand() SourceBand {
	if b.mask != nil {
		return b.mask
	}
	return defaultMask(b)
}

func (b *MemBand) MaskFlags() int {
	if b.mask != nil {
		return b.maskFlags
	}
	if b.hasNoData {
		return GMF_NODATA
	}
	return GMF_ALL_VALID
}

// Fill sets all pixels of the band to v
func (b *MemBand) Fill(v float64) {
	v = b.dtype.clamp(v)
	for i := range b.data {
		b.data[i] = v
	}
}

// Write copies a bufWidth x bufHeight buffer into the band at srcX,srcY
func (b *MemBand) Write(srcX, srcY int, buffer interface{}, bufWidth, bufHeight int) error {
	if err := checkWindow(b.w, b.h, srcX, srcY, bufWidth, bufHeight); err != nil {
		return err
	}
	l, err := newLayout(buffer, bufWidth, bufHeight, 0, 0)
	if err != nil {
		return err
	}
	for j := 0; j < bufHeight; j++ {
		for i := 0; i < bufWidth; i++ {
			b.data[(srcY+j)*b.w+srcX+i] = b.dtype.clamp(l.get(i, j))
		}
	}
	return nil
}

func (b *MemBand) Read(srcX, srcY int, buffer interface{}, bufWidth, bufHeight int, opts ...BandIOOption) error {
	l, bo, err := bandReadSetup(b.w, b.h, srcX, srcY, buffer, bufWidth, bufHeight, opts)
	if err != nil {
		return err
	}
	win := ioWindow{srcX, srcY, bo.dsWidth, bo.dsHeight, bufWidth, bufHeight}
	if !bo.skipOverviews && len(b.overviews) > 0 {
		sizes := make([][2]int, len(b.overviews))
		for i, o := range b.overviews {
			sizes[i] = [2]int{o.w, o.h}
		}
		if idx, ow := overviewFor(win, b.w, b.h, sizes); idx >= 0 {
			return b.overviews[idx].Read(ow.xOff, ow.yOff, buffer, bufWidth, bufHeight,
				append(opts, Window(ow.xSize, ow.ySize))...)
		}
	}
	get := func(x, y int) float64 {
		return b.data[y*b.w+x]
	}
	out := resampleWindow(get, b.w, b.h, win, bo.resampling, b.nodata, b.hasNoData)
	l.putRaster(0, 0, out, bufWidth, bufHeight)
	return nil
}

type memDriver struct{}

func (memDriver) Name() DriverName {
	return Memory
}

func (memDriver) Identify(name string) bool {
	return strings.HasPrefix(name, memPrefix)
}

func (memDriver) Open(req OpenRequest) (SourceDataset, error) {
	memMu.Lock()
	ds, ok := memDatasets[req.Name]
	memMu.Unlock()
	if !ok {
		return nil, errorf(ErrIOFailure, "memory dataset %s does not exist", req.Name)
	}
	return memHandle{ds}, nil
}

// memHandle is a handle on a named memory dataset whose Close does not release it
type memHandle struct {
	*MemDataset
}

func (memHandle) Close(opts ...CloseOption) error {
	return nil
}
