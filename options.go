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

import "github.com/spf13/afero"

type openOpts struct {
	config       []string
	open         []string
	drivers      []string
	fs           afero.Fs
	pool         WorkerPool
	errorHandler ErrorHandler
}

// OpenOption is an option passed to Open() or OpenSource()
//
// Available OpenOptions are:
//
// • Drivers
//
// • DriverOpenOption
//
// • ConfigOption
//
// • FileSystem
//
// • WithWorkerPool
//
// • ErrLogger
type OpenOption interface {
	setOpenOpt(oo *openOpts)
}

type createOpts struct {
	config       []string
	creation     []string
	fs           afero.Fs
	pool         WorkerPool
	errorHandler ErrorHandler
}

// CreateOption is an option that can be passed to Create()
//
// Available CreateOptions are:
//
// • CreationOption: BLOCKXSIZE, BLOCKYSIZE, SUBCLASS
//
// • ConfigOption
//
// • FileSystem
//
// • WithWorkerPool
//
// • ErrLogger
type CreateOption interface {
	setCreateOpt(co *createOpts)
}

type addBandOpts struct {
	creation     []string
	errorHandler ErrorHandler
}

// AddBandOption is an option that can be passed to Dataset.AddBand()
//
// Available AddBandOptions are:
//
// • CreationOption: subclass, SourceFilename, ImageOffset, PixelOffset, LineOffset,
// ByteOrder, relativeToVRT, PixelFunctionType, PixelFunctionLanguage, SourceTransferType
//
// • ErrLogger
type AddBandOption interface {
	setAddBandOpt(ao *addBandOpts)
}

type bandIOOpts struct {
	config                    []string
	dsWidth, dsHeight         int
	resampling                ResamplingAlg
	resamplingSet             bool
	pixelSpacing, lineSpacing int
	progress                  ProgressFunc
	errorHandler              ErrorHandler
	skipOverviews             bool
	skipSources               bool
	chain                     []string
}

// BandIOOption is an option to modify the default behavior of band.Read
//
// Available BandIOOptions are:
//
// • Window
//
// • Resampling
//
// • ConfigOption
//
// • PixelSpacing
//
// • LineSpacing
//
// • Progress
//
// • ErrLogger
type BandIOOption interface {
	setBandIOOpt(ro *bandIOOpts)
}

type datasetIOOpts struct {
	config                                 []string
	bands                                  []int
	dsWidth, dsHeight                      int
	resampling                             ResamplingAlg
	resamplingSet                          bool
	bandInterleave                         bool //return r1r2...rn,g1g2...gn,b1b2...bn instead of r1g1b1,r2g2b2,...,rngnbn
	bandSpacing, pixelSpacing, lineSpacing int
	progress                               ProgressFunc
	errorHandler                           ErrorHandler
	skipOverviews                          bool
	chain                                  []string
}

// DatasetIOOption is an option to modify the default behavior of dataset.Read
//
// Available DatasetIOOptions are:
//
// • Window
//
// • Resampling
//
// • ConfigOption
//
// • Bands
//
// • BandInterleaved
//
// • PixelSpacing
//
// • LineSpacing
//
// • BandSpacing
//
// • Progress
//
// • ErrLogger
type DatasetIOOption interface {
	setDatasetIOOpt(ro *datasetIOOpts)
}

type closeOpts struct {
	errorHandler ErrorHandler
}

// CloseOption is an option passed to Dataset.Close() or Dataset.Flush()
//
// Available CloseOptions are:
//
// • ErrLogger
type CloseOption interface {
	setCloseOpt(o *closeOpts)
}

type translateOpts struct {
	config       []string
	creation     []string
	fs           afero.Fs
	errorHandler ErrorHandler
	// fullRes makes the sources read the bands of the input at full resolution
	fullRes bool
}

// TranslateOption is an option passed to Translate()
//
// Available TranslateOptions are:
//
// • CreationOption
//
// • ConfigOption
//
// • FileSystem
//
// • ErrLogger
type TranslateOption interface {
	setTranslateOpt(o *translateOpts)
}

type bandOpt struct {
	bnds []int
}

// Bands specifies which dataset bands should be read. By default all dataset bands
// are read.
//
// Note: bnds is 0-indexed so as to be consistent with Dataset.Bands(), whereas in VRT documents
// bands are 1-indexed. i.e. for a 3 band dataset you should pass Bands(0,1,2) and not Bands(1,2,3).
func Bands(bnds ...int) interface {
	DatasetIOOption
} {
	ib := make([]int, len(bnds))
	for i := range bnds {
		ib[i] = bnds[i] + 1
	}
	return bandOpt{ib}
}

func (bo bandOpt) setDatasetIOOpt(ro *datasetIOOpts) {
	ro.bands = bo.bnds
}

type bandSpacingOpt struct {
	sp int
}
type pixelSpacingOpt struct {
	sp int
}
type lineSpacingOpt struct {
	sp int
}

func (so bandSpacingOpt) setDatasetIOOpt(ro *datasetIOOpts) {
	ro.bandSpacing = so.sp
}
func (so pixelSpacingOpt) setDatasetIOOpt(ro *datasetIOOpts) {
	ro.pixelSpacing = so.sp
}
func (so lineSpacingOpt) setDatasetIOOpt(ro *datasetIOOpts) {
	ro.lineSpacing = so.sp
}
func (so lineSpacingOpt) setBandIOOpt(bo *bandIOOpts) {
	bo.lineSpacing = so.sp
}
func (so pixelSpacingOpt) setBandIOOpt(bo *bandIOOpts) {
	bo.pixelSpacing = so.sp
}

// BandSpacing sets the number of bytes from one pixel to the next band of the same pixel. If not
// provided, it will be calculated from the pixel type
func BandSpacing(stride int) interface {
	DatasetIOOption
} {
	return bandSpacingOpt{stride}
}

// PixelSpacing sets the number of bytes from one pixel to the next pixel in the same row. If not
// provided, it will be calculated from the number of bands and pixel type
func PixelSpacing(stride int) interface {
	DatasetIOOption
	BandIOOption
} {
	return pixelSpacingOpt{stride}
}

// LineSpacing sets the number of bytes from one pixel to the pixel of the same band one row below. If not
// provided, it will be calculated from the number of bands, pixel type and image width
func LineSpacing(stride int) interface {
	DatasetIOOption
	BandIOOption
} {
	return lineSpacingOpt{stride}
}

type windowOpt struct {
	sx, sy int
}

// Window specifies the size of the dataset window to read. By default use the
// size of the output buffer (i.e. no resampling)
func Window(sx, sy int) interface {
	DatasetIOOption
	BandIOOption
} {
	return windowOpt{sx, sy}
}

func (wo windowOpt) setDatasetIOOpt(ro *datasetIOOpts) {
	ro.dsWidth = wo.sx
	ro.dsHeight = wo.sy
}
func (wo windowOpt) setBandIOOpt(ro *bandIOOpts) {
	ro.dsWidth = wo.sx
	ro.dsHeight = wo.sy
}

type bandInterleaveOp struct{}

// BandInterleaved makes Read return a band interleaved buffer instead of a pixel interleaved one.
//
// For example, pixels of a three band RGB image will be returned in order
// r1r2r3...rn, g1g2g3...gn, b1b2b3...bn instead of the default
// r1g1b1, r2g2b2, r3g3b3, ... rnbngn
//
// BandInterleaved should not be used in conjunction with BandSpacing, LineSpacing, or PixelSpacing
func BandInterleaved() interface {
	DatasetIOOption
} {
	return bandInterleaveOp{}
}

func (bio bandInterleaveOp) setDatasetIOOpt(ro *datasetIOOpts) {
	ro.bandInterleave = true
}

// ProgressFunc is called with the completed ratio of an operation. Returning
// false aborts the operation.
type ProgressFunc func(complete float64) bool

type progressOpt struct {
	fn ProgressFunc
}

// Progress sets a function called as a read progresses
func Progress(fn ProgressFunc) interface {
	DatasetIOOption
	BandIOOption
} {
	return progressOpt{fn}
}

func (po progressOpt) setDatasetIOOpt(ro *datasetIOOpts) {
	ro.progress = po.fn
}
func (po progressOpt) setBandIOOpt(ro *bandIOOpts) {
	ro.progress = po.fn
}

type creationOpts struct {
	creation []string
}

// CreationOption are options to pass when creating a dataset or a band, to be
// passed in the form KEY=VALUE
//
// Examples are: BLOCKXSIZE=256, SUBCLASS=VRTWarpedDataset, subclass=VRTRawRasterBand
func CreationOption(opts ...string) interface {
	CreateOption
	AddBandOption
	TranslateOption
} {
	return creationOpts{opts}
}

func (co creationOpts) setCreateOpt(dc *createOpts) {
	dc.creation = append(dc.creation, co.creation...)
}
func (co creationOpts) setAddBandOpt(ao *addBandOpts) {
	ao.creation = append(ao.creation, co.creation...)
}
func (co creationOpts) setTranslateOpt(to *translateOpts) {
	to.creation = append(to.creation, co.creation...)
}

type configOpts struct {
	config []string
}

// ConfigOption sets a configuration option for a call, in the form KEY=VALUE.
// When passed to Open(), the options apply to all subsequent operations on the
// returned dataset.
//
// Notable options are VRT_NUM_THREADS=8
func ConfigOption(cfgs ...string) interface {
	CreateOption
	OpenOption
	DatasetIOOption
	BandIOOption
	TranslateOption
	errorAndLoggingOption
} {
	return configOpts{cfgs}
}

func (co configOpts) setCreateOpt(dc *createOpts) {
	dc.config = append(dc.config, co.config...)
}
func (co configOpts) setOpenOpt(oo *openOpts) {
	oo.config = append(oo.config, co.config...)
}
func (co configOpts) setDatasetIOOpt(oo *datasetIOOpts) {
	oo.config = append(oo.config, co.config...)
}
func (co configOpts) setBandIOOpt(oo *bandIOOpts) {
	oo.config = append(oo.config, co.config...)
}
func (co configOpts) setTranslateOpt(oo *translateOpts) {
	oo.config = append(oo.config, co.config...)
}
func (co configOpts) setErrorAndLoggingOpt(elo *errorAndLoggingOpts) {
	elo.config = append(elo.config, co.config...)
}

type resamplingOpt struct {
	m ResamplingAlg
}

//Resampling defines the resampling algorithm to use.
//If unset will usually default to NEAREST. When passed to a source, it overrides
//the resampling requested by readers of the band.
func Resampling(alg ResamplingAlg) interface {
	DatasetIOOption
	BandIOOption
	SourceOption
} {
	return resamplingOpt{alg}
}
func (ro resamplingOpt) setDatasetIOOpt(io *datasetIOOpts) {
	io.resampling = ro.m
	io.resamplingSet = true
}
func (ro resamplingOpt) setBandIOOpt(io *bandIOOpts) {
	io.resampling = ro.m
	io.resamplingSet = true
}
func (ro resamplingOpt) setSourceOpt(so *sourceOpts) {
	so.resampling = ro.m.String()
}

type driversOpt struct {
	drivers []string
}

// Drivers specifies the list of drivers that are allowed to try opening the dataset
func Drivers(drivers ...string) interface {
	OpenOption
} {
	return driversOpt{drivers}
}

func (do driversOpt) setOpenOpt(oo *openOpts) {
	oo.drivers = append(oo.drivers, do.drivers...)
}

type driverOpenOption struct {
	oo []string
}

// DriverOpenOption adds a list of Open Options (-oo switch) to the open command. Each keyval must
// be provided in a "KEY=value" format
//
// Notable open options are ROOT_PATH, NUM_THREADS and OVERVIEW_LEVEL
func DriverOpenOption(keyval ...string) interface {
	OpenOption
	SourceOption
} {
	return driverOpenOption{keyval}
}

func (doo driverOpenOption) setOpenOpt(oo *openOpts) {
	oo.open = append(oo.open, doo.oo...)
}
func (doo driverOpenOption) setSourceOpt(so *sourceOpts) {
	so.open = append(so.open, doo.oo...)
}

type fsOpt struct {
	fs afero.Fs
}

// FileSystem sets the filesystem used to read and write VRT documents and raw
// band files. Defaults to the OS filesystem.
func FileSystem(fs afero.Fs) interface {
	OpenOption
	CreateOption
	TranslateOption
} {
	return fsOpt{fs}
}

func (fo fsOpt) setOpenOpt(oo *openOpts) {
	oo.fs = fo.fs
}
func (fo fsOpt) setCreateOpt(co *createOpts) {
	co.fs = fo.fs
}
func (fo fsOpt) setTranslateOpt(to *translateOpts) {
	to.fs = fo.fs
}

type poolOpt struct {
	p WorkerPool
}

// WithWorkerPool sets the pool running the jobs of multi-threaded reads. Defaults
// to a process-wide pool.
func WithWorkerPool(p WorkerPool) interface {
	OpenOption
	CreateOption
} {
	return poolOpt{p}
}

func (po poolOpt) setOpenOpt(oo *openOpts) {
	oo.pool = po.p
}
func (po poolOpt) setCreateOpt(co *createOpts) {
	co.pool = po.p
}

// skipOverviewsOpt makes reads ignore overviews, used while building them
type skipOverviewsOpt struct{}

func (skipOverviewsOpt) setDatasetIOOpt(ro *datasetIOOpts) {
	ro.skipOverviews = true
}
func (skipOverviewsOpt) setBandIOOpt(ro *bandIOOpts) {
	ro.skipOverviews = true
}

// chainOpt carries the bands currently being read down to nested virtual datasets
type chainOpt struct {
	chain []string
}

func (co chainOpt) setDatasetIOOpt(ro *datasetIOOpts) {
	ro.chain = co.chain
}
func (co chainOpt) setBandIOOpt(ro *bandIOOpts) {
	ro.chain = co.chain
}

// noSourcesOpt makes sourced bands only initialize the buffer with their
// nodata value
type noSourcesOpt struct{}

func (noSourcesOpt) setBandIOOpt(ro *bandIOOpts) {
	ro.skipSources = true
}
