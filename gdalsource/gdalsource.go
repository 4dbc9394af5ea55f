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

// Package gdalsource lets virtual datasets reference any raster readable by the
// GDAL library, through godal.
//
//	gdalsource.Register()
//	ds, _ := vrt.Create("mosaic.vrt", 1024, 1024)
//	b, _ := ds.AddBand(vrt.Byte)
//	b.AddSimpleSource("tile.tif", 1)
package gdalsource

import (
	"fmt"
	"strings"
	"sync"

	"github.com/airbusgeo/godal"
	"github.com/airbusgeo/vrt"
)

// Name is the name under which the driver is registered
const Name vrt.DriverName = "GDAL"

// Driver opens rasters with GDAL. Files are read by GDAL itself, the filesystem
// of the open request is ignored.
type Driver struct {
	// Drivers restricts the GDAL drivers tried when opening a dataset, e.g. "GTiff"
	Drivers []string
}

var registerOnce sync.Once

// Register registers all GDAL drivers, and makes the rasters they read available to
// virtual datasets. It is tried after the built-in VRT and MEM drivers.
func Register(gdalDrivers ...string) {
	registerOnce.Do(godal.RegisterAll)
	vrt.RegisterDriver(Driver{Drivers: gdalDrivers})
}

func (Driver) Name() vrt.DriverName {
	return Name
}

// Identify accepts anything but the names served by the built-in drivers. GDAL
// itself decides if it can open the dataset.
func (Driver) Identify(name string) bool {
	return name != "" && !strings.HasPrefix(name, "mem://") && !strings.HasPrefix(name, "vrt://")
}

func (d Driver) Open(req vrt.OpenRequest) (vrt.SourceDataset, error) {
	opts := []godal.OpenOption{godal.RasterOnly()}
	if len(d.Drivers) > 0 {
		opts = append(opts, godal.Drivers(d.Drivers...))
	}
	if len(req.Options) > 0 {
		opts = append(opts, godal.DriverOpenOption(req.Options...))
	}
	if len(req.Config) > 0 {
		opts = append(opts, godal.ConfigOption(req.Config...))
	}
	if req.ErrorHandler != nil {
		opts = append(opts, godal.ErrLogger(forward(req.ErrorHandler)))
	}
	ds, err := godal.Open(req.Name, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vrt.ErrIOFailure, err)
	}
	return newDataset(ds), nil
}

// forward relays GDAL messages to a vrt error handler
func forward(eh vrt.ErrorHandler) godal.ErrorHandler {
	return func(ec godal.ErrorCategory, code int, msg string) error {
		cat := vrt.CE_Failure
		switch ec {
		case godal.CE_Debug:
			cat = vrt.CE_Debug
		case godal.CE_Warning:
			cat = vrt.CE_Warning
		case godal.CE_None:
			cat = vrt.CE_None
		}
		return eh(cat, code, msg)
	}
}

// Dataset is a GDAL raster seen as a vrt.SourceDataset. GDAL handles are not
// safe for concurrent use, reads of all its bands are serialized.
type Dataset struct {
	mu    sync.Mutex
	ds    *godal.Dataset
	bands []*Band
}

func newDataset(ds *godal.Dataset) *Dataset {
	d := &Dataset{ds: ds}
	for i, b := range ds.Bands() {
		d.bands = append(d.bands, &Band{ds: d, b: b, n: i + 1})
	}
	return d
}

// Wrap exposes an already opened godal dataset. Closing the returned dataset
// closes ds.
func Wrap(ds *godal.Dataset) *Dataset {
	return newDataset(ds)
}

func (d *Dataset) Structure() vrt.DatasetStructure {
	st := d.ds.Structure()
	return vrt.DatasetStructure{
		BandStructure: vrt.BandStructure{
			SizeX:      st.SizeX,
			SizeY:      st.SizeY,
			BlockSizeX: st.BlockSizeX,
			BlockSizeY: st.BlockSizeY,
			DataType:   dataType(st.DataType),
		},
		NBands: st.NBands,
	}
}

func (d *Dataset) RasterBand(n int) (vrt.SourceBand, error) {
	if n < 1 || n > len(d.bands) {
		return nil, fmt.Errorf("%w: invalid band number %d", vrt.ErrInvalidInput, n)
	}
	return d.bands[n-1], nil
}

func (d *Dataset) GeoTransform() ([6]float64, error) {
	gt, err := d.ds.GeoTransform()
	if err != nil {
		return gt, fmt.Errorf("%w: %v", vrt.ErrInvalidInput, err)
	}
	return gt, nil
}

func (d *Dataset) SpatialRef() vrt.SpatialRef {
	return vrt.SpatialRef{WKT: d.ds.Projection()}
}

func (d *Dataset) Description() string {
	return d.ds.Description()
}

func (d *Dataset) Metadatas(opts ...vrt.MetadataOption) map[string]string {
	return d.ds.Metadatas(godal.Domain(vrt.MetadataDomain(opts...)))
}

func (d *Dataset) Read(srcX, srcY int, buffer interface{}, bufWidth, bufHeight int, opts ...vrt.DatasetIOOption) error {
	return vrt.ReadBands(d, srcX, srcY, buffer, bufWidth, bufHeight, opts...)
}

func (d *Dataset) Close(opts ...vrt.CloseOption) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ds == nil {
		return nil
	}
	err := d.ds.Close()
	d.ds = nil
	return err
}

// Band is a band of a GDAL raster. Overviews and masks share the locking of
// their dataset.
type Band struct {
	ds *Dataset
	b  godal.Band
	n  int
}

func (b *Band) Structure() vrt.BandStructure {
	st := b.b.Structure()
	return vrt.BandStructure{
		SizeX:      st.SizeX,
		SizeY:      st.SizeY,
		BlockSizeX: st.BlockSizeX,
		BlockSizeY: st.BlockSizeY,
		DataType:   dataType(st.DataType),
	}
}

func (b *Band) NoData() (float64, bool) {
	return b.b.NoData()
}

func (b *Band) ColorInterp() vrt.ColorInterp {
	return vrt.ParseColorInterp(b.b.ColorInterp().Name())
}

func (b *Band) ColorTable() vrt.ColorTable {
	ct := b.b.ColorTable()
	if len(ct.Entries) == 0 {
		return vrt.ColorTable{}
	}
	return vrt.ColorTable{
		PaletteInterp: vrt.PaletteInterp(ct.PaletteInterp),
		Entries:       append([][4]int16(nil), ct.Entries...),
	}
}

func (b *Band) Description() string {
	return b.b.Description()
}

func (b *Band) Overviews() []vrt.SourceBand {
	ovrs := b.b.Overviews()
	ret := make([]vrt.SourceBand, len(ovrs))
	for i := range ovrs {
		ret[i] = &Band{ds: b.ds, b: ovrs[i], n: b.n}
	}
	return ret
}

func (b *Band) MaskFlags() int {
	return b.b.MaskFlags()
}

func (b *Band) MaskBand() vrt.SourceBand {
	if b.MaskFlags()&(vrt.GMF_ALL_VALID|vrt.GMF_NODATA) != 0 {
		return vrt.DefaultMask(b)
	}
	return &Band{ds: b.ds, b: b.b.MaskBand(), n: b.n}
}

func (b *Band) Read(srcX, srcY int, buffer interface{}, bufWidth, bufHeight int, opts ...vrt.BandIOOption) error {
	st := b.b.Structure()
	r, err := vrt.NewBandRead(st.SizeX, st.SizeY, srcX, srcY, buffer, bufWidth, bufHeight, opts...)
	if err != nil {
		return err
	}
	resampled := r.WindowX != bufWidth || r.WindowY != bufHeight
	w, h := bufWidth, bufHeight
	if resampled && r.FullResolution {
		// gdal picks overviews on its own when downsampling
		w, h = r.WindowX, r.WindowY
	}
	data := make([]float64, w*h)
	gopts := []godal.BandIOOption{godal.Window(r.WindowX, r.WindowY)}
	if r.ResamplingSet {
		alg, err := resampling(r.Resampling)
		if err != nil {
			return err
		}
		gopts = append(gopts, godal.Resampling(alg))
	}
	if len(r.Config) > 0 {
		gopts = append(gopts, godal.ConfigOption(r.Config...))
	}
	b.ds.mu.Lock()
	if b.ds.ds == nil {
		b.ds.mu.Unlock()
		return fmt.Errorf("%w: read on closed dataset", vrt.ErrInconsistentState)
	}
	err = b.b.Read(srcX, srcY, data, w, h, gopts...)
	b.ds.mu.Unlock()
	if err != nil {
		return fmt.Errorf("%w: %v", vrt.ErrIOFailure, err)
	}
	if w != bufWidth || h != bufHeight {
		nd, hasND := b.b.NoData()
		data = r.Resample(data, w, h, nd, hasND)
	}
	return r.Store(data)
}

var resamplings = map[vrt.ResamplingAlg]godal.ResamplingAlg{
	vrt.Nearest:     godal.Nearest,
	vrt.Bilinear:    godal.Bilinear,
	vrt.Cubic:       godal.Cubic,
	vrt.CubicSpline: godal.CubicSpline,
	vrt.Lanczos:     godal.Lanczos,
	vrt.Average:     godal.Average,
	vrt.Gauss:       godal.Gauss,
	vrt.Mode:        godal.Mode,
	vrt.Max:         godal.Max,
	vrt.Min:         godal.Min,
	vrt.Median:      godal.Median,
	vrt.Sum:         godal.Sum,
	vrt.Q1:          godal.Q1,
	vrt.Q3:          godal.Q3,
}

// resampling maps an algorithm to its godal counterpart. godal has no rms.
func resampling(alg vrt.ResamplingAlg) (godal.ResamplingAlg, error) {
	ga, ok := resamplings[alg]
	if !ok {
		return godal.Nearest, fmt.Errorf("%w: resampling %s is not available through godal", vrt.ErrUnsupported, alg)
	}
	return ga, nil
}

func dataType(dt godal.DataType) vrt.DataType {
	return vrt.ParseDataType(dt.String())
}
