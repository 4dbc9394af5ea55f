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

import "strconv"

// SourceDataset is a raster that can be referenced by the sources of a virtual
// dataset. It is returned by the registered drivers. *Dataset implements it, so
// that virtual datasets can be nested.
type SourceDataset interface {
	Structure() DatasetStructure
	// RasterBand returns the n'th band, 1-based
	RasterBand(n int) (SourceBand, error)
	GeoTransform() ([6]float64, error)
	SpatialRef() SpatialRef
	Description() string
	Metadatas(opts ...MetadataOption) map[string]string
	Read(srcX, srcY int, buffer interface{}, bufWidth, bufHeight int, opts ...DatasetIOOption) error
	Close(opts ...CloseOption) error
}

// SourceBand is a band of a SourceDataset. *Band implements it.
type SourceBand interface {
	Structure() BandStructure
	NoData() (float64, bool)
	ColorInterp() ColorInterp
	ColorTable() ColorTable
	// Overviews returns the band's overviews, largest first
	Overviews() []SourceBand
	// MaskBand returns the band's mask, which is never nil
	MaskBand() SourceBand
	MaskFlags() int
	Read(srcX, srcY int, buffer interface{}, bufWidth, bufHeight int, opts ...BandIOOption) error
}

// gcpDataset is implemented by datasets exposing ground control points
type gcpDataset interface {
	GCPs() ([]GCP, SpatialRef)
}

// scaledBand is implemented by bands carrying a value scaling
type scaledBand interface {
	ScaleOffset() (scale, offset float64)
}

// unitBand is implemented by bands carrying a unit
type unitBand interface {
	Unit() string
}

// subdatasets returns the SUBDATASET_n_NAME entries of a dataset, in order
func subdatasets(ds SourceDataset) []string {
	md := ds.Metadatas(Domain("SUBDATASETS"))
	var ret []string
	for i := 1; ; i++ {
		n, ok := md[subdatasetKey(i)]
		if !ok {
			return ret
		}
		ret = append(ret, n)
	}
}

func subdatasetKey(i int) string {
	return "SUBDATASET_" + strconv.Itoa(i) + "_NAME"
}

// allValidMask is the mask of bands without nodata nor explicit mask
type allValidMask struct {
	st BandStructure
}

func (m allValidMask) Structure() BandStructure {
	st := m.st
	st.DataType = Byte
	return st
}
func (m allValidMask) NoData() (float64, bool)  { return 0, false }
func (m allValidMask) ColorInterp() ColorInterp { return CIUndefined }
func (m allValidMask) ColorTable() ColorTable   { return ColorTable{} }
func (m allValidMask) Overviews() []SourceBand  { return nil }
func (m allValidMask) MaskBand() SourceBand     { return m }
func (m allValidMask) MaskFlags() int           { return GMF_ALL_VALID }
func (m allValidMask) Read(srcX, srcY int, buffer interface{}, bufWidth, bufHeight int, opts ...BandIOOption) error {
	l, _, err := bandReadSetup(m.st.SizeX, m.st.SizeY, srcX, srcY, buffer, bufWidth, bufHeight, opts)
	if err != nil {
		return err
	}
	l.fill(255)
	return nil
}

// nodataMask is the mask of a band carrying a nodata value: 0 where the band
// equals nodata, 255 elsewhere
type nodataMask struct {
	band   SourceBand
	nodata float64
}

func (m nodataMask) Structure() BandStructure {
	st := m.band.Structure()
	st.DataType = Byte
	return st
}
func (m nodataMask) NoData() (float64, bool)  { return 0, false }
func (m nodataMask) ColorInterp() ColorInterp { return CIUndefined }
func (m nodataMask) ColorTable() ColorTable   { return ColorTable{} }
func (m nodataMask) Overviews() []SourceBand {
	ovrs := m.band.Overviews()
	ret := make([]SourceBand, len(ovrs))
	for i := range ovrs {
		ret[i] = nodataMask{band: ovrs[i], nodata: m.nodata}
	}
	return ret
}
func (m nodataMask) MaskBand() SourceBand { return allValidMask{m.Structure()} }
func (m nodataMask) MaskFlags() int       { return GMF_NODATA }
func (m nodataMask) Read(srcX, srcY int, buffer interface{}, bufWidth, bufHeight int, opts ...BandIOOption) error {
	st := m.band.Structure()
	l, bo, err := bandReadSetup(st.SizeX, st.SizeY, srcX, srcY, buffer, bufWidth, bufHeight, opts)
	if err != nil {
		return err
	}
	tmp := make([]float64, bufWidth*bufHeight)
	ropts := []BandIOOption{Window(bo.dsWidth, bo.dsHeight), chainOpt{bo.chain}}
	if bo.resamplingSet {
		ropts = append(ropts, Resampling(bo.resampling))
	}
	if err := m.band.Read(srcX, srcY, tmp, bufWidth, bufHeight, ropts...); err != nil {
		return err
	}
	for j := 0; j < bufHeight; j++ {
		for i := 0; i < bufWidth; i++ {
			v := tmp[j*bufWidth+i]
			if v == m.nodata {
				l.set(i, j, 0)
			} else {
				l.set(i, j, 255)
			}
		}
	}
	return nil
}

// defaultMask returns the mask implied by a band's nodata value
func defaultMask(b SourceBand) SourceBand {
	if nd, ok := b.NoData(); ok {
		return nodataMask{band: b, nodata: nd}
	}
	return allValidMask{b.Structure()}
}

// bandReadSetup validates a band read request against a sizeX x sizeY raster
// and returns the caller buffer layout and the parsed options
func bandReadSetup(sizeX, sizeY, srcX, srcY int, buffer interface{}, bufWidth, bufHeight int, opts []BandIOOption) (bufLayout, bandIOOpts, error) {
	bo := bandIOOpts{}
	for _, o := range opts {
		o.setBandIOOpt(&bo)
	}
	if bo.dsWidth == 0 {
		bo.dsWidth = bufWidth
	}
	if bo.dsHeight == 0 {
		bo.dsHeight = bufHeight
	}
	if err := checkWindow(sizeX, sizeY, srcX, srcY, bo.dsWidth, bo.dsHeight); err != nil {
		return bufLayout{}, bo, err
	}
	l, err := newLayout(buffer, bufWidth, bufHeight, bo.pixelSpacing, bo.lineSpacing)
	return l, bo, err
}

func checkWindow(sizeX, sizeY, x, y, w, h int) error {
	if w <= 0 || h <= 0 || x < 0 || y < 0 || int64(x)+int64(w) > int64(sizeX) || int64(y)+int64(h) > int64(sizeY) {
		return errorf(ErrInvalidInput, "access window out of range: %d,%d %dx%d not in %dx%d", x, y, w, h, sizeX, sizeY)
	}
	return nil
}

// BandRead describes a SourceBand.Read call, for drivers implemented outside of
// this package
type BandRead struct {
	// WindowX, WindowY is the size of the source window, the buffer size unless
	// the Window option was given
	WindowX, WindowY int
	Resampling       ResamplingAlg
	// ResamplingSet is false when the caller did not request a resampling
	ResamplingSet bool
	// FullResolution requests the band itself, its overviews must not be used
	FullResolution bool
	Config         []string

	buffer              interface{}
	bufWidth, bufHeight int
	pixel, line         int
}

// NewBandRead validates the arguments of a read on a sizeX x sizeY band
func NewBandRead(sizeX, sizeY, srcX, srcY int, buffer interface{}, bufWidth, bufHeight int, opts ...BandIOOption) (BandRead, error) {
	_, bo, err := bandReadSetup(sizeX, sizeY, srcX, srcY, buffer, bufWidth, bufHeight, opts)
	if err != nil {
		return BandRead{}, err
	}
	return BandRead{
		WindowX:        bo.dsWidth,
		WindowY:        bo.dsHeight,
		Resampling:     bo.resampling,
		ResamplingSet:  bo.resamplingSet,
		FullResolution: bo.skipOverviews,
		Config:         bo.config,
		buffer:         buffer,
		bufWidth:       bufWidth,
		bufHeight:      bufHeight,
		pixel:          bo.pixelSpacing,
		line:           bo.lineSpacing,
	}, nil
}

// Store writes a packed bufWidth x bufHeight raster into the caller buffer,
// honoring its spacings and element type
func (r BandRead) Store(data []float64) error {
	if len(data) < r.bufWidth*r.bufHeight {
		return errorf(ErrInvalidInput, "raster of %d pixels is too small for a %dx%d buffer", len(data), r.bufWidth, r.bufHeight)
	}
	l, err := newLayout(r.buffer, r.bufWidth, r.bufHeight, r.pixel, r.line)
	if err != nil {
		return err
	}
	l.putRaster(0, 0, data, r.bufWidth, r.bufHeight)
	return nil
}

// Resample resamples a packed srcW x srcH raster to the bufWidth x bufHeight
// buffer of the read
func (r BandRead) Resample(src []float64, srcW, srcH int, nodata float64, hasNoData bool) []float64 {
	get := func(x, y int) float64 {
		return src[y*srcW+x]
	}
	return resampleWindow(get, srcW, srcH, ioWindow{0, 0, srcW, srcH, r.bufWidth, r.bufHeight}, r.Resampling, nodata, hasNoData)
}

// MetadataDomain returns the domain requested by metadata options
func MetadataDomain(opts ...MetadataOption) string {
	return mdOpts(opts).domain
}

// ReadBands implements SourceDataset.Read on top of the bands of a dataset
func ReadBands(ds SourceDataset, srcX, srcY int, buffer interface{}, bufWidth, bufHeight int, opts ...DatasetIOOption) error {
	st := ds.Structure()
	return readBandByBand(st.SizeX, st.SizeY, ds.RasterBand, st.NBands, srcX, srcY, buffer, bufWidth, bufHeight, opts)
}

// DefaultMask returns the mask implied by the nodata value of b, for bands
// without an explicit mask
func DefaultMask(b SourceBand) SourceBand {
	return defaultMask(b)
}
