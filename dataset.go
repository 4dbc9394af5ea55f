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
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ngicks/go-fsys-helper/fsutil"
	"github.com/spf13/afero"
)

// multiThreadPixelThreshold is the number of pixels of a request above which
// mosaics are read concurrently
const multiThreadPixelThreshold = 1000 * 1000

// Dataset is a virtual raster, composed of bands whose pixels are read from
// other datasets
type Dataset struct {
	majorObject
	desc     string
	fs       afero.Fs
	vrtDir   string
	linkDir  string
	rootPath string

	width, height  int
	blockX, blockY int

	subclass        string
	subclassOptions *xmlNode

	gt     [6]float64
	hasGT  bool
	srs    SpatialRef
	gcps   []GCP
	gcpSRS SpatialRef

	bands []*Band
	mask  *Band

	ovrFactors    []int
	ovrResampling string
	ovrMu         sync.Mutex
	ovrBuilt      bool
	ovrs          []*Dataset
	sidecarDone   bool
	sidecarDS     SourceDataset
	// building is set while the dataset manufactures its own overviews
	building bool

	registry     *sourceRegistry
	ownsRegistry bool
	dirty        bool

	memoMu      sync.Mutex
	passthrough *SimpleSource
	ptChecked   bool
	compat      *bool

	numThreads int
	config     configScope
	eh         ErrorHandler
	pool       WorkerPool
	closed     bool
}

func newDataset(desc string, fs afero.Fs, width, height int) *Dataset {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	ds := &Dataset{
		desc:         desc,
		fs:           fs,
		width:        width,
		height:       height,
		blockX:       defaultBlockSize(width),
		blockY:       defaultBlockSize(height),
		subclass:     PlainDataset,
		registry:     newSourceRegistry(),
		ownsRegistry: true,
		numThreads:   1,
	}
	ds.vrtDir, ds.linkDir = vrtDirs(fs, desc)
	ds.onChange = ds.setDirty
	return ds
}

// Create creates an empty virtual dataset of the given size. name is the file the
// document is written to on Flush or Close, and may be empty for a dataset that
// is never persisted.
//
// Recognized creation options are BLOCKXSIZE, BLOCKYSIZE and SUBCLASS (VRTDataset
// or VRTWarpedDataset).
func Create(name string, width, height int, opts ...CreateOption) (*Dataset, error) {
	co := createOpts{}
	for _, o := range opts {
		o.setCreateOpt(&co)
	}
	d := newDiagnostics(co.errorHandler)
	if width <= 0 || height <= 0 {
		return nil, d.fail(errorf(ErrInvalidInput, "invalid raster size %dx%d", width, height))
	}
	kv, err := parseKeyValues(co.creation)
	if err != nil {
		return nil, d.fail(err)
	}
	ds := newDataset(name, co.fs, width, height)
	ds.config = configScope(co.config)
	ds.eh = co.errorHandler
	ds.pool = co.pool
	if v, ok := kv["BLOCKXSIZE"]; ok {
		if ds.blockX, err = parseIntOption("BLOCKXSIZE", v); err != nil || ds.blockX <= 0 {
			return nil, d.fail(errorf(ErrInvalidInput, "invalid BLOCKXSIZE %q", v))
		}
	}
	if v, ok := kv["BLOCKYSIZE"]; ok {
		if ds.blockY, err = parseIntOption("BLOCKYSIZE", v); err != nil || ds.blockY <= 0 {
			return nil, d.fail(errorf(ErrInvalidInput, "invalid BLOCKYSIZE %q", v))
		}
	}
	if v, ok := kv["SUBCLASS"]; ok {
		switch v {
		case PlainDataset, WarpedDataset:
			ds.subclass = v
		default:
			return nil, d.fail(errorf(ErrInvalidInput, "invalid SUBCLASS %q", v))
		}
	}
	if ds.numThreads, err = resolveThreads("", ds.config); err != nil {
		return nil, d.fail(err)
	}
	ds.dirty = true
	return ds, nil
}

// Open opens a virtual dataset from a .vrt file, an inline <VRTDataset> document
// or a vrt:// URI.
//
// Recognized open options (DriverOpenOption) are ROOT_PATH, overriding the
// directory relative sources are resolved against, and NUM_THREADS.
func Open(name string, opts ...OpenOption) (*Dataset, error) {
	oo := openOpts{}
	for _, o := range opts {
		o.setOpenOpt(&oo)
	}
	ds, err := openDataset(name, oo)
	if err != nil {
		return nil, newDiagnostics(oo.errorHandler).fail(err)
	}
	return ds, nil
}

func openDataset(name string, oo openOpts) (*Dataset, error) {
	if oo.fs == nil {
		oo.fs = afero.NewOsFs()
	}
	if strings.HasPrefix(name, protocolPrefix) {
		return openProtocol(name, oo)
	}
	var data []byte
	if isInlineXML(name) {
		data = []byte(name)
	} else {
		var err error
		if data, err = afero.ReadFile(oo.fs, name); err != nil {
			return nil, errorf(ErrIOFailure, "open %s: %w", name, err)
		}
	}
	root, err := parseXML(data)
	if err != nil {
		return nil, err
	}
	return parseDataset(root, name, oo)
}

// applyOpenOptions sets the dataset scoped settings of an opened dataset
func (ds *Dataset) applyOpenOptions(oo openOpts) error {
	ds.config = configScope(oo.config)
	ds.eh = oo.errorHandler
	ds.pool = oo.pool
	for _, kv := range oo.open {
		k, _, _ := strings.Cut(kv, "=")
		switch strings.ToUpper(k) {
		case "ROOT_PATH", "NUM_THREADS":
		default:
			_ = ds.diag().warnf("%s: unsupported open option %s", ds.desc, k)
		}
	}
	if rp, ok := fetchKeyValue(oo.open, "ROOT_PATH"); ok {
		ds.rootPath = rp
	}
	nt, _ := fetchKeyValue(oo.open, "NUM_THREADS")
	var err error
	ds.numThreads, err = resolveThreads(nt, ds.config)
	return err
}

func (ds *Dataset) diag() diagnostics {
	return newDiagnostics(ds.eh)
}

// setDirty marks the dataset as modified, and forgets everything derived from its
// composition
func (ds *Dataset) setDirty() {
	ds.dirty = true
	ds.memoMu.Lock()
	ds.passthrough, ds.ptChecked, ds.compat = nil, false, nil
	ds.memoMu.Unlock()
	ds.resetOverviews()
}

// identity names the dataset in the chain of datasets being read
func (ds *Dataset) identity() string {
	name := ds.desc
	if name == "" || isInlineXML(name) {
		return fmt.Sprintf("%p", ds)
	}
	if !hasScheme(name) {
		if abs, err := filepath.Abs(name); err == nil {
			return abs
		}
	}
	return name
}

func (ds *Dataset) Description() string {
	return ds.desc
}

// SetDescription sets the file name the document is written to
func (ds *Dataset) SetDescription(desc string) {
	ds.desc = desc
	ds.vrtDir, ds.linkDir = vrtDirs(ds.fs, desc)
	ds.dirty = true
}

// Subclass returns the variant of the dataset, e.g. VRTWarpedDataset
func (ds *Dataset) Subclass() string {
	return ds.subclass
}

// SubclassOptions returns the document of the options of warped, pansharpened
// or processed datasets, nil for plain datasets
func (ds *Dataset) SubclassOptions() []byte {
	if ds.subclassOptions == nil {
		return nil
	}
	data, err := ds.subclassOptions.marshal(false)
	if err != nil {
		return nil
	}
	return data
}

// SetSubclassOptions replaces the options document of a warped, pansharpened or
// processed dataset
func (ds *Dataset) SetSubclassOptions(doc []byte) error {
	el := subclassOptionsElement(ds.subclass)
	if el == "" {
		return errorf(ErrUnsupported, "%s datasets have no subclass options", ds.subclass)
	}
	n, err := parseXML(doc)
	if err != nil {
		return err
	}
	if n.name() != el {
		return errorf(ErrInvalidInput, "expecting a %s element, got %s", el, n.name())
	}
	ds.subclassOptions = n
	ds.setDirty()
	return nil
}

// Structure returns the dataset's Structure
func (ds *Dataset) Structure() DatasetStructure {
	dt := Byte
	if len(ds.bands) > 0 {
		dt = ds.bands[0].dtype
	}
	return DatasetStructure{
		BandStructure: BandStructure{
			SizeX:      ds.width,
			SizeY:      ds.height,
			BlockSizeX: ds.blockX,
			BlockSizeY: ds.blockY,
			DataType:   dt,
		},
		NBands: len(ds.bands),
	}
}

// Bands returns all dataset bands
func (ds *Dataset) Bands() []*Band {
	return append([]*Band(nil), ds.bands...)
}

// RasterBand returns the n'th band, 1-based
func (ds *Dataset) RasterBand(n int) (SourceBand, error) {
	if n < 1 || n > len(ds.bands) {
		return nil, errorf(ErrInvalidInput, "%s: invalid band number %d", ds.desc, n)
	}
	return ds.bands[n-1], nil
}

// MaskBand returns the dataset-wide mask band, or nil
func (ds *Dataset) MaskBand() *Band {
	return ds.mask
}

// CreateMaskBand creates the mask band shared by all bands of the dataset. It
// fails if the dataset already has one.
func (ds *Dataset) CreateMaskBand() (*Band, error) {
	if ds.mask != nil {
		return nil, errorf(ErrInconsistentState, "%s: dataset already has a mask band", ds.desc)
	}
	ds.mask = newBand(ds, 0, Byte, &sourcedBand{})
	ds.setDirty()
	return ds.mask, nil
}

// GeoTransform returns the affine transformation coefficients
func (ds *Dataset) GeoTransform() ([6]float64, error) {
	if !ds.hasGT {
		return ds.gt, errorf(ErrInvalidInput, "%s: no geotransform", ds.desc)
	}
	return ds.gt, nil
}

// SetGeoTransform sets the affine transformation coefficients
func (ds *Dataset) SetGeoTransform(transform [6]float64) error {
	ds.gt, ds.hasGT = transform, true
	ds.setDirty()
	return nil
}

// ClearGeoTransform removes the geotransform of the dataset
func (ds *Dataset) ClearGeoTransform() {
	ds.gt, ds.hasGT = [6]float64{}, false
	ds.setDirty()
}

// Bounds returns the dataset's bounding box in the order
//  [MinX, MinY, MaxX, MaxY]
func (ds *Dataset) Bounds() (Bounds, error) {
	gt, err := ds.GeoTransform()
	if err != nil {
		return Bounds{}, err
	}
	return geoBounds(gt, ds.width, ds.height), nil
}

// SpatialRef returns the dataset projection. May be empty.
func (ds *Dataset) SpatialRef() SpatialRef {
	return ds.srs
}

// SetSpatialRef sets the dataset projection. An empty SpatialRef clears it.
func (ds *Dataset) SetSpatialRef(sr SpatialRef) error {
	ds.srs = sr
	ds.setDirty()
	return nil
}

// GCPs returns the ground control points of the dataset and their projection
func (ds *Dataset) GCPs() ([]GCP, SpatialRef) {
	return append([]GCP(nil), ds.gcps...), ds.gcpSRS
}

// SetGCPs replaces the ground control points of the dataset
func (ds *Dataset) SetGCPs(gcps []GCP, sr SpatialRef) error {
	ds.gcps = append([]GCP(nil), gcps...)
	ds.gcpSRS = sr
	ds.setDirty()
	return nil
}

// AddBand appends a band of the given type to the dataset.
//
// The band variant is selected with the "subclass" creation option, which
// defaults to VRTSourcedRasterBand (or the band variant of warped datasets).
// Raw bands take SourceFilename, ImageOffset, PixelOffset, LineOffset, ByteOrder
// and relativeToVRT, derived bands PixelFunctionType, PixelFunctionLanguage and
// SourceTransferType.
func (ds *Dataset) AddBand(dtype DataType, opts ...AddBandOption) (*Band, error) {
	ao := addBandOpts{}
	for _, o := range opts {
		o.setAddBandOpt(&ao)
	}
	d := newDiagnostics(ao.errorHandler)
	if dtype == Unknown || dtype.Size() == 0 {
		return nil, d.fail(errorf(ErrInvalidInput, "invalid band data type"))
	}
	kv := map[string]string{}
	for _, o := range ao.creation {
		k, v, ok := strings.Cut(o, "=")
		if !ok {
			return nil, d.fail(errorf(ErrInvalidInput, "option %q is not in KEY=VALUE form", o))
		}
		kv[strings.ToLower(strings.TrimSpace(k))] = v
	}
	get := func(key string) (string, bool) {
		v, ok := kv[strings.ToLower(key)]
		return v, ok
	}
	subclass, ok := get("subclass")
	if !ok {
		subclass = bandSubclassFor(ds.subclass)
	}
	var impl bandImpl
	switch subclass {
	case SourcedBand:
		impl = &sourcedBand{}
	case DerivedBand:
		db := &derivedBand{transferType: Float64}
		db.funcName, _ = get("PixelFunctionType")
		db.language, _ = get("PixelFunctionLanguage")
		if tt, ok := get("SourceTransferType"); ok {
			if db.transferType = ParseDataType(tt); db.transferType == Unknown {
				return nil, d.fail(errorf(ErrInvalidInput, "invalid SourceTransferType %q", tt))
			}
		}
		impl = db
	case RawBand:
		rb, err := rawLayout(get, dtype, ds.width)
		if err != nil {
			return nil, d.fail(err)
		}
		impl = rb
	case WarpedBand, PansharpenedBand, ProcessedBand:
		if bandSubclassFor(ds.subclass) != subclass {
			return nil, d.fail(errorf(ErrInvalidInput, "%s bands cannot be added to %s datasets", subclass, ds.subclass))
		}
		impl = &kernelBand{band: subclass}
	default:
		return nil, d.fail(errorf(ErrInvalidInput, "unknown band subclass %q", subclass))
	}
	if _, ok := get("AddFuncSource"); ok {
		return nil, d.fail(errorf(ErrUnsupported, "AddFuncSource: use Band.AddFuncSource"))
	}
	b := newBand(ds, len(ds.bands)+1, dtype, impl)
	if v, ok := get("BLOCKXSIZE"); ok {
		if n, err := parseIntOption("BLOCKXSIZE", v); err == nil && n > 0 {
			b.blockX = n
		}
	}
	if v, ok := get("BLOCKYSIZE"); ok {
		if n, err := parseIntOption("BLOCKYSIZE", v); err == nil && n > 0 {
			b.blockY = n
		}
	}
	ds.bands = append(ds.bands, b)
	ds.setDirty()
	return b, nil
}

// openSourceDataset opens the dataset referenced by a source. Shared datasets are
// owned by the registry, others by the caller (owned is true).
func (ds *Dataset) openSourceDataset(filename string, relative bool, openOptions []string, bandList []int, shared bool) (SourceDataset, bool, error) {
	name := ds.resolvePath(filename, relative)
	open := func() (SourceDataset, error) {
		return openSource(name, openOpts{
			config:       ds.config,
			open:         openOptions,
			fs:           ds.fs,
			pool:         ds.pool,
			errorHandler: ds.eh,
		})
	}
	if !shared {
		sds, err := open()
		return sds, true, err
	}
	sds, err := ds.registry.openShared(newSharedKey(name, openOptions, bandList, relative), open)
	return sds, false, err
}

// XML returns the document describing the dataset
func (ds *Dataset) XML() (string, error) {
	data, err := ds.serializeDocument()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// persistent returns true if the dataset is backed by a file
func (ds *Dataset) persistent() bool {
	return ds.desc != "" && !isInlineXML(ds.desc) && !strings.HasPrefix(ds.desc, protocolPrefix) &&
		!strings.HasPrefix(ds.desc, memPrefix)
}

// Flush writes the document of a modified dataset to the file it was opened from
// or created as. It is a no-op for unmodified, inline or anonymous datasets.
func (ds *Dataset) Flush(opts ...CloseOption) error {
	co := closeOpts{}
	for _, o := range opts {
		o.setCloseOpt(&co)
	}
	eh := co.errorHandler
	if eh == nil {
		eh = ds.eh
	}
	d := newDiagnostics(eh)
	if !ds.dirty || !ds.persistent() {
		return nil
	}
	data, err := ds.serializeDocument()
	if err != nil {
		return d.fail(err)
	}
	if err := fsutil.SafeWrite[afero.File](ds.fs, ds.desc, bytes.NewReader(data), 0o644); err != nil {
		return d.fail(errorf(ErrIOFailure, "write %s: %w", ds.desc, err))
	}
	ds.dirty = false
	d.debugf("%s: written", ds.desc)
	return nil
}

// Close flushes the dataset and releases the source datasets it opened
func (ds *Dataset) Close(opts ...CloseOption) error {
	if ds.closed {
		return nil
	}
	co := closeOpts{}
	for _, o := range opts {
		o.setCloseOpt(&co)
	}
	eh := co.errorHandler
	if eh == nil {
		eh = ds.eh
	}
	err := ds.Flush(opts...)
	ds.closed = true
	ds.resetOverviews()
	ds.ovrMu.Lock()
	if ds.sidecarDS != nil {
		err = combine(err, ds.sidecarDS.Close())
		ds.sidecarDS = nil
	}
	ds.ovrMu.Unlock()
	for _, b := range ds.bands {
		err = combine(err, b.close())
	}
	if ds.mask != nil {
		err = combine(err, ds.mask.close())
	}
	if ds.ownsRegistry {
		err = combine(err, ds.registry.closeAll())
	}
	return newDiagnostics(eh).fail(err)
}

// Read populates the supplied buffer with the pixels contained in the supplied
// window, for all the bands of the dataset or those selected with the Bands option.
//
// Datasets made of one source per band covering the whole raster forward the read
// to that source's dataset. Large reads of mosaics of disjoint sources are
// spread over the worker pool.
func (ds *Dataset) Read(srcX, srcY int, buffer interface{}, bufWidth, bufHeight int, opts ...DatasetIOOption) error {
	ro := parseDatasetIOOpts(opts, bufWidth, bufHeight, len(ds.bands))
	eh := ro.errorHandler
	if eh == nil {
		eh = ds.eh
	}
	d := newDiagnostics(eh)
	if err := checkWindow(ds.width, ds.height, srcX, srcY, ro.dsWidth, ro.dsHeight); err != nil {
		return d.fail(err)
	}
	for _, bn := range ro.bands {
		if bn < 1 || bn > len(ds.bands) {
			return d.fail(errorf(ErrInvalidInput, "%s: invalid band number %d", ds.desc, bn))
		}
	}
	chain, err := enterChain(ro.chain, ds.identity()+"#ds", ds.desc)
	if err != nil {
		return d.fail(err)
	}
	ro.chain = chain
	ro.config = ds.config.with(ro.config)
	layouts, err := datasetLayouts(buffer, len(ro.bands), bufWidth, bufHeight, ro.bandInterleave,
		ro.pixelSpacing, ro.lineSpacing, ro.bandSpacing)
	if err != nil {
		return d.fail(err)
	}
	w := ioWindow{srcX, srcY, ro.dsWidth, ro.dsHeight, bufWidth, bufHeight}

	if src := ds.passthroughSource(); src != nil && (!w.isResampled() || !ds.hasOwnOverviews()) {
		d.debugf("%s: forwarding read to %s", ds.desc, src.filename)
		return d.fail(src.datasetRead(w, ro.bands, buffer, layouts, ro))
	}
	if w.isResampled() || !ds.compatibleForDatasetIO() {
		return d.fail(ds.readBandByBand(srcX, srcY, buffer, bufWidth, bufHeight, ro, layouts))
	}
	if err := ds.initBuffers(srcX, srcY, buffer, bufWidth, bufHeight, ro, layouts); err != nil {
		return d.fail(err)
	}
	last := ds.bands[len(ds.bands)-1].sourced()
	var sources []*SimpleSource
	for _, s := range last.sources {
		if s.Intersects(w.rect()) {
			sources = append(sources, s.(*SimpleSource))
		}
	}
	if len(sources) == 0 {
		return nil
	}
	big := w.pixels() >= multiThreadPixelThreshold || int64(bufWidth)*int64(bufHeight) >= multiThreadPixelThreshold
	if big && ds.numThreads > 1 && len(sources) > 1 {
		if ok, _ := last.canParallelize(w.rect()); ok {
			return d.fail(ds.readConcurrently(w, sources, buffer, layouts, ro, d))
		}
	}
	for i, s := range sources {
		if err := s.datasetRead(w, ro.bands, buffer, layouts, ro); err != nil {
			return d.fail(err)
		}
		if ro.progress != nil && !ro.progress(float64(i+1)/float64(len(sources))) {
			return d.fail(errorf(ErrInvalidInput, "read interrupted by progress callback"))
		}
	}
	return nil
}

// hasOwnOverviews returns true if the document declares overviews
func (ds *Dataset) hasOwnOverviews() bool {
	if len(ds.ovrFactors) > 0 {
		return true
	}
	for _, b := range ds.bands {
		if len(b.overviews) > 0 {
			return true
		}
	}
	return false
}

// enterChain appends id to the chain of objects being read, failing on cycles
func enterChain(chain []string, id, desc string) ([]string, error) {
	for _, c := range chain {
		if c == id {
			return nil, errorf(ErrInvalidInput, "%s: recursion detected while reading", desc)
		}
	}
	if len(chain) >= maxReadDepth {
		return nil, errorf(ErrInvalidInput, "%s: too many nested virtual datasets", desc)
	}
	ret := make([]string, len(chain), len(chain)+1)
	copy(ret, chain)
	return append(ret, id), nil
}

func (ds *Dataset) readBandByBand(srcX, srcY int, buffer interface{}, bufWidth, bufHeight int, ro datasetIOOpts, layouts []bufLayout) error {
	for i, bn := range ro.bands {
		l := layouts[i]
		bro := ro
		bro.progress = nil
		if err := ds.bands[bn-1].Read(srcX, srcY, sliceFrom(buffer, l.off), bufWidth, bufHeight, bandIOOptsFor(bro, l)...); err != nil {
			return err
		}
		if ro.progress != nil && !ro.progress(float64(i+1)/float64(len(ro.bands))) {
			return errorf(ErrInvalidInput, "read interrupted by progress callback")
		}
	}
	return nil
}

// initBuffers fills the requested bands with their nodata value
func (ds *Dataset) initBuffers(srcX, srcY int, buffer interface{}, bufWidth, bufHeight int, ro datasetIOOpts, layouts []bufLayout) error {
	for i, bn := range ro.bands {
		l := layouts[i]
		opts := append(bandIOOptsFor(ro, l), noSourcesOpt{})
		if err := ds.bands[bn-1].Read(srcX, srcY, sliceFrom(buffer, l.off), bufWidth, bufHeight, opts...); err != nil {
			return err
		}
	}
	return nil
}

// readConcurrently reads disjoint sources on the worker pool. Diagnostics of
// each job are replayed in job order once all jobs have completed.
func (ds *Dataset) readConcurrently(w ioWindow, sources []*SimpleSource, buffer interface{}, layouts []bufLayout, ro datasetIOOpts, d diagnostics) error {
	ds.registry.installLock()
	pool := ds.pool
	if pool == nil {
		pool = defaultPool()
	}
	var failed atomic.Bool
	collectors := make([]*diagCollector, len(sources))
	jobs := make([]func() error, len(sources))
	for i, s := range sources {
		i, s := i, s
		collectors[i] = &diagCollector{}
		jro := ro
		jro.errorHandler = collectors[i].handler
		jro.progress = nil
		jobs[i] = func() error {
			if failed.Load() {
				return nil
			}
			err := s.datasetRead(w, ro.bands, buffer, layouts, jro)
			if err != nil {
				failed.Store(true)
			}
			return err
		}
	}
	d.debugf("%s: reading %d sources with %d threads", ds.desc, len(jobs), ds.numThreads)

	doneCh := make(chan int, len(jobs))
	finished := make(chan struct{})
	var errs []error
	go func() {
		errs = pool.Run(ds.numThreads, jobs, func(job int) { doneCh <- job })
		close(finished)
	}()
	completed := 0
	var aborted error
	progress := func() {
		completed++
		if ro.progress != nil && aborted == nil && !ro.progress(float64(completed)/float64(len(jobs))) {
			aborted = errorf(ErrInvalidInput, "read interrupted by progress callback")
			failed.Store(true)
		}
	}
	for wait := true; wait; {
		select {
		case <-doneCh:
			progress()
		case <-finished:
			wait = false
		}
	}
	for len(doneCh) > 0 {
		<-doneCh
		progress()
	}

	var err error
	for i := range jobs {
		err = combine(err, collectors[i].replay(d))
		err = combine(err, errs[i])
	}
	return combine(aborted, err)
}

// passthroughSource returns the source the whole dataset is read from, when each
// band is a copy of the same band of a single dataset
func (ds *Dataset) passthroughSource() *SimpleSource {
	ds.memoMu.Lock()
	defer ds.memoMu.Unlock()
	if !ds.ptChecked {
		ds.passthrough = ds.findPassthrough()
		ds.ptChecked = true
	}
	return ds.passthrough
}

func (ds *Dataset) findPassthrough() *SimpleSource {
	var first *SimpleSource
	for _, b := range ds.bands {
		sb, ok := b.impl.(*sourcedBand)
		if !ok || len(sb.sources) != 1 {
			return nil
		}
		s, ok := sb.sources[0].(*SimpleSource)
		if !ok || s.kind != SimpleSourceKind || s.mask || s.srcBand != b.n {
			return nil
		}
		if len(s.bandList) > 0 && (len(s.bandList) < b.n || s.bandList[b.n-1] != b.n) {
			return nil
		}
		if s.DstWindow() != (Rect{0, 0, float64(ds.width), float64(ds.height)}) {
			return nil
		}
		if first == nil {
			first = s
		} else if !first.sameExceptBand(s) {
			return nil
		}
	}
	if first == nil {
		return nil
	}
	src, err := first.SrcWindow()
	if err != nil || src != (Rect{0, 0, float64(ds.width), float64(ds.height)}) {
		return nil
	}
	if band, err := first.resolve(); err != nil || band.Structure().SizeX != ds.width || band.Structure().SizeY != ds.height {
		return nil
	}
	return first
}

// compatibleForDatasetIO returns true if all bands are made of simple sources
// reading the matching band of the same datasets, so that each source can be
// read with a single dataset read
func (ds *Dataset) compatibleForDatasetIO() bool {
	ds.memoMu.Lock()
	defer ds.memoMu.Unlock()
	if ds.compat != nil {
		return *ds.compat
	}
	ok := ds.checkCompatible()
	ds.compat = &ok
	return ok
}

func (ds *Dataset) checkCompatible() bool {
	if len(ds.bands) == 0 {
		return false
	}
	var ref []Source
	for _, b := range ds.bands {
		sb, ok := b.impl.(*sourcedBand)
		if !ok {
			return false
		}
		if ref == nil {
			ref = sb.sources
			if len(ref) == 0 {
				return false
			}
		}
		if len(sb.sources) != len(ref) {
			return false
		}
		for i, src := range sb.sources {
			s, ok := src.(*SimpleSource)
			if !ok || s.kind != SimpleSourceKind || s.mask || s.srcBand != b.n {
				return false
			}
			if len(s.bandList) > 0 && (len(s.bandList) < b.n || s.bandList[b.n-1] != b.n) {
				return false
			}
			if !ref[i].(*SimpleSource).sameExceptBand(s) {
				return false
			}
		}
	}
	return true
}
