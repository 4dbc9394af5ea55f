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
	"fmt"
	"strconv"
)

// Band subclasses, as found in the subClass attribute of VRTRasterBand elements
const (
	SourcedBand      = "VRTSourcedRasterBand"
	DerivedBand      = "VRTDerivedRasterBand"
	RawBand          = "VRTRawRasterBand"
	WarpedBand       = "VRTWarpedRasterBand"
	PansharpenedBand = "VRTPansharpenedRasterBand"
	ProcessedBand    = "VRTProcessedRasterBand"
)

// maxReadDepth bounds the nesting of virtual datasets read through each other
const maxReadDepth = 32

// bandImpl is the variant specific part of a Band
type bandImpl interface {
	subclass() string
	read(b *Band, w ioWindow, l bufLayout, bo bandIOOpts) error
	serialize(b *Band, n *xmlNode, vrtDir string)
	close() error
}

// overviewRef is an explicit <Overview> element of a band
type overviewRef struct {
	filename string
	relative bool
	srcBand  int
	src      *SimpleSource
}

// Band is a band of a virtual Dataset. The zero value is not usable, bands are
// obtained from Dataset.AddBand, Dataset.Bands or Open.
type Band struct {
	majorObject
	ds *Dataset
	// n is the 1-based band index, 0 for mask bands
	n              int
	dtype          DataType
	blockX, blockY int

	nodata      float64
	hasNoData   bool
	hideNoData  bool
	colorInterp ColorInterp
	colorTable  ColorTable
	scale       float64
	offset      float64
	hasScale    bool
	hasOffset   bool
	unit        string
	description string
	categories  []string

	mask *Band
	// parent is the band owning a per-band mask
	parent    *Band
	overviews []*overviewRef

	impl bandImpl
}

func newBand(ds *Dataset, n int, dtype DataType, impl bandImpl) *Band {
	b := &Band{
		ds:     ds,
		n:      n,
		dtype:  dtype,
		blockX: ds.blockX,
		blockY: ds.blockY,
		scale:  1,
		impl:   impl,
	}
	b.onChange = ds.setDirty
	return b
}

// Index returns the 1-based index of the band in its dataset, 0 for mask bands
func (b *Band) Index() int {
	return b.n
}

// Subclass returns the variant of the band, e.g. VRTSourcedRasterBand
func (b *Band) Subclass() string {
	return b.impl.subclass()
}

// Structure returns the dataset and block dimensions of the band
func (b *Band) Structure() BandStructure {
	return BandStructure{
		SizeX:      b.ds.width,
		SizeY:      b.ds.height,
		BlockSizeX: b.blockX,
		BlockSizeY: b.blockY,
		DataType:   b.dtype,
	}
}

// NoData returns the nodata value of the band. ok is false if the band has no
// nodata value, or if it is hidden.
func (b *Band) NoData() (nodata float64, ok bool) {
	if !b.hasNoData || b.hideNoData {
		return 0, false
	}
	return b.nodata, true
}

// SetNoData sets the nodata value of the band
func (b *Band) SetNoData(nd float64) error {
	b.nodata, b.hasNoData = nd, true
	b.ds.setDirty()
	return nil
}

// ClearNoData removes the nodata value of the band
func (b *Band) ClearNoData() error {
	b.nodata, b.hasNoData = 0, false
	b.ds.setDirty()
	return nil
}

// SetHideNoData makes the band not report its nodata value, which is still used
// to initialize the areas not covered by sources
func (b *Band) SetHideNoData(hide bool) {
	b.hideNoData = hide
	b.ds.setDirty()
}

// initValue is the value of pixels not written by any source
func (b *Band) initValue() float64 {
	if b.hasNoData {
		return b.nodata
	}
	return 0
}

func (b *Band) ColorInterp() ColorInterp {
	return b.colorInterp
}

func (b *Band) SetColorInterp(ci ColorInterp) error {
	b.colorInterp = ci
	b.ds.setDirty()
	return nil
}

func (b *Band) ColorTable() ColorTable {
	return b.colorTable.clone()
}

// SetColorTable sets the band color table. An empty table removes it.
func (b *Band) SetColorTable(ct ColorTable) error {
	b.colorTable = ct.clone()
	b.ds.setDirty()
	return nil
}

// ScaleOffset returns the scale and offset to apply to pixel values to obtain
// physical values. Defaults are 1 and 0.
func (b *Band) ScaleOffset() (scale, offset float64) {
	return b.scale, b.offset
}

func (b *Band) SetScaleOffset(scale, offset float64) error {
	b.scale, b.offset = scale, offset
	b.hasScale, b.hasOffset = true, true
	b.ds.setDirty()
	return nil
}

func (b *Band) Unit() string {
	return b.unit
}

func (b *Band) SetUnit(unit string) error {
	b.unit = unit
	b.ds.setDirty()
	return nil
}

func (b *Band) Description() string {
	return b.description
}

func (b *Band) SetDescription(desc string) {
	b.description = desc
	b.ds.setDirty()
}

// CategoryNames returns the category names of a thematic band
func (b *Band) CategoryNames() []string {
	return append([]string(nil), b.categories...)
}

func (b *Band) SetCategoryNames(names []string) error {
	b.categories = append([]string(nil), names...)
	b.ds.setDirty()
	return nil
}

// Sources returns the sources of a sourced or derived band, in compositing order
func (b *Band) Sources() []Source {
	if sb := b.sourced(); sb != nil {
		return append([]Source(nil), sb.sources...)
	}
	return nil
}

// sourced returns the source list of the band, or nil if the variant has none
func (b *Band) sourced() *sourcedBand {
	switch impl := b.impl.(type) {
	case *sourcedBand:
		return impl
	case *derivedBand:
		return &impl.sourcedBand
	}
	return nil
}

type attacher interface {
	attach(ds *Dataset)
}

func (b *Band) addSource(src Source) error {
	sb := b.sourced()
	if sb == nil {
		return errorf(ErrUnsupported, "%s bands have no sources", b.impl.subclass())
	}
	if a, ok := src.(attacher); ok {
		a.attach(b.ds)
	}
	sb.sources = append(sb.sources, src)
	b.ds.setDirty()
	return nil
}

func sourceOptions(opts []SourceOption) sourceOpts {
	so := sourceOpts{}
	for _, o := range opts {
		o.setSourceOpt(&so)
	}
	return so
}

// AddSimpleSource appends a source copying band srcBand (1-based, 0 for the
// dataset mask) of dataset filename into the band
func (b *Band) AddSimpleSource(filename string, srcBand int, opts ...SourceOption) (*SimpleSource, error) {
	s, err := newSimpleSource(SimpleSourceKind, filename, srcBand, sourceOptions(opts))
	if err != nil {
		return nil, err
	}
	return s, b.addSource(s)
}

// AddAveragedSource appends a simple source that always uses average resampling
func (b *Band) AddAveragedSource(filename string, srcBand int, opts ...SourceOption) (*SimpleSource, error) {
	s, err := newSimpleSource(AveragedSourceKind, filename, srcBand, sourceOptions(opts))
	if err != nil {
		return nil, err
	}
	return s, b.addSource(s)
}

// AddComplexSource appends a source applying nodata, scaling, lookup table or
// color table expansion to the values it reads
func (b *Band) AddComplexSource(filename string, srcBand int, opts ...SourceOption) (*ComplexSource, error) {
	s, err := newComplexSource(ComplexSourceKind, filename, srcBand, sourceOptions(opts))
	if err != nil {
		return nil, err
	}
	return s, b.addSource(s)
}

// AddKernelFilteredSource appends a complex source whose values are convolved with
// the size x size kernel coefs, given row major
func (b *Band) AddKernelFilteredSource(filename string, srcBand int, size int, coefs []float64, normalized bool, opts ...SourceOption) (*KernelFilteredSource, error) {
	s, err := newKernelFilteredSource(filename, srcBand, size, coefs, normalized, sourceOptions(opts))
	if err != nil {
		return nil, err
	}
	return s, b.addSource(s)
}

// AddFuncSource appends a source computing its pixels with fn. The SourceNoData
// option marks the values fn returns for pixels it does not cover.
func (b *Band) AddFuncSource(fn ReadFunc, opts ...SourceOption) (*FuncSource, error) {
	if fn == nil {
		return nil, errorf(ErrInvalidInput, "nil read function")
	}
	so := sourceOptions(opts)
	fs := &FuncSource{fn: fn}
	if so.nodata != nil {
		fs.nodata, fs.hasNoData = *so.nodata, true
	}
	return fs, b.addSource(fs)
}

// ClearSources removes all the sources of the band
func (b *Band) ClearSources() error {
	sb := b.sourced()
	if sb == nil {
		return errorf(ErrUnsupported, "%s bands have no sources", b.impl.subclass())
	}
	var err error
	for _, s := range sb.sources {
		err = combine(err, s.close())
	}
	sb.sources = nil
	b.ds.setDirty()
	return err
}

// CanParallelize returns true if the sources contributing to the given window
// write disjoint areas at the resolution of the request, in which case they may
// be read concurrently. n is the number of contributing sources.
func (b *Band) CanParallelize(xOff, yOff, xSize, ySize int) (ok bool, n int) {
	sb := b.sourced()
	if sb == nil {
		return false, 0
	}
	return sb.canParallelize(Rect{float64(xOff), float64(yOff), float64(xSize), float64(ySize)})
}

// identity names the band in the chain of bands being read
func (b *Band) identity() string {
	if b.n == 0 {
		return fmt.Sprintf("%s#mask%p", b.ds.identity(), b)
	}
	return b.ds.identity() + "#" + strconv.Itoa(b.n)
}

// enter returns the read chain with b appended, failing if b is already being
// read
func (b *Band) enter(chain []string) ([]string, error) {
	return enterChain(chain, b.identity(), fmt.Sprintf("%s band %d", b.ds.desc, b.n))
}

// Read populates the supplied buffer with the pixels contained in the supplied window
func (b *Band) Read(srcX, srcY int, buffer interface{}, bufWidth, bufHeight int, opts ...BandIOOption) error {
	l, bo, err := bandReadSetup(b.ds.width, b.ds.height, srcX, srcY, buffer, bufWidth, bufHeight, opts)
	if err != nil {
		return err
	}
	d := newDiagnostics(bo.errorHandler)
	chain, err := b.enter(bo.chain)
	if err != nil {
		return d.fail(err)
	}
	w := ioWindow{srcX, srcY, bo.dsWidth, bo.dsHeight, bufWidth, bufHeight}
	if !bo.skipOverviews && !bo.skipSources && w.isResampled() {
		if ovrs := b.Overviews(); len(ovrs) > 0 {
			sizes := make([][2]int, len(ovrs))
			for i, o := range ovrs {
				st := o.Structure()
				sizes[i] = [2]int{st.SizeX, st.SizeY}
			}
			if idx, ow := overviewFor(w, b.ds.width, b.ds.height, sizes); idx >= 0 {
				return ovrs[idx].Read(ow.xOff, ow.yOff, buffer, bufWidth, bufHeight,
					append(opts, Window(ow.xSize, ow.ySize))...)
			}
		}
	}
	bo.chain = chain
	bo.config = b.ds.config.with(bo.config)
	return d.fail(b.impl.read(b, w, l, bo))
}

// ReadBlock reads the block at position (blockX, blockY) of the block grid into
// buffer, which must hold a full block. Partial edge blocks are written at the
// top left of the buffer with the stride of a full block.
func (b *Band) ReadBlock(blockX, blockY int, buffer interface{}) error {
	w, h := actualBlockSize(b.ds.width, b.ds.height, b.blockX, b.blockY, blockX, blockY)
	if w == 0 || h == 0 {
		return errorf(ErrInvalidInput, "invalid block %d,%d", blockX, blockY)
	}
	esz := bufferType(buffer).Size()
	if esz == 0 {
		return errorf(ErrInvalidInput, "unsupported buffer type %T", buffer)
	}
	return b.Read(blockX*b.blockX, blockY*b.blockY, buffer, w, h,
		LineSpacing(b.blockX*esz))
}

// Overviews returns the overviews of the band, largest first: explicit overview
// references, then an external .ovr file, then the overviews of the dataset
func (b *Band) Overviews() []SourceBand {
	if len(b.overviews) > 0 {
		var ret []SourceBand
		for _, o := range b.overviews {
			ob, err := o.resolve(b.ds)
			if err != nil {
				_ = b.ds.diag().warnf("%v", err)
				continue
			}
			ret = append(ret, ob)
		}
		return ret
	}
	if sc := b.ds.sidecar(); sc != nil {
		if sb, err := counterpart(sc, b); err == nil {
			return append([]SourceBand{sb}, sb.Overviews()...)
		}
		return nil
	}
	var ret []SourceBand
	for _, ods := range b.ds.overviewDatasets() {
		if ob, err := counterpart(ods, b); err == nil {
			ret = append(ret, ob)
		}
	}
	return ret
}

// counterpart returns the band of ds at the position of b in its own dataset
func counterpart(ds SourceDataset, b *Band) (SourceBand, error) {
	if b.n != 0 {
		return ds.RasterBand(b.n)
	}
	n := 1
	if b.parent != nil {
		n = b.parent.n
	}
	rb, err := ds.RasterBand(n)
	if err != nil {
		return nil, err
	}
	return rb.MaskBand(), nil
}

// AddOverview appends an explicit reference to band srcBand of filename as the
// next overview of the band
func (b *Band) AddOverview(filename string, srcBand int, relative bool) error {
	if srcBand < 1 {
		return errorf(ErrInvalidInput, "invalid overview band %d", srcBand)
	}
	b.overviews = append(b.overviews, &overviewRef{filename: filename, relative: relative, srcBand: srcBand})
	b.ds.setDirty()
	return nil
}

func (o *overviewRef) resolve(ds *Dataset) (SourceBand, error) {
	if o.src == nil {
		s, err := newSimpleSource(SimpleSourceKind, o.filename, o.srcBand, sourceOpts{relative: o.relative})
		if err != nil {
			return nil, err
		}
		s.attach(ds)
		o.src = s
	}
	return o.src.resolve()
}

// MaskBand returns the mask of the band: its own mask, the dataset mask, or a
// mask derived from the nodata value
func (b *Band) MaskBand() SourceBand {
	if b.mask != nil {
		return b.mask
	}
	if b.ds.mask != nil && b.n != 0 {
		return b.ds.mask
	}
	return defaultMask(b)
}

func (b *Band) MaskFlags() int {
	switch {
	case b.mask != nil:
		return 0
	case b.ds.mask != nil && b.n != 0:
		return GMF_PER_DATASET
	}
	if _, ok := b.NoData(); ok {
		return GMF_NODATA
	}
	return GMF_ALL_VALID
}

// CreateMaskBand creates a mask band for the band, or for the whole dataset when
// flags contains GMF_PER_DATASET. Creating a mask twice fails.
func (b *Band) CreateMaskBand(flags int) (*Band, error) {
	if flags&GMF_PER_DATASET != 0 {
		return b.ds.CreateMaskBand()
	}
	if b.mask != nil {
		return nil, errorf(ErrInconsistentState, "band %d already has a mask band", b.n)
	}
	b.mask = newBand(b.ds, 0, Byte, &sourcedBand{})
	b.mask.parent = b
	b.ds.setDirty()
	return b.mask, nil
}

func (b *Band) close() error {
	var err error
	if b.mask != nil {
		err = b.mask.close()
	}
	for _, o := range b.overviews {
		if o.src != nil {
			err = combine(err, o.src.close())
		}
	}
	return combine(err, b.impl.close())
}

// sourcedBand composites a list of sources
type sourcedBand struct {
	sources []Source
}

func (sb *sourcedBand) subclass() string {
	return SourcedBand
}

// coveredBySingleSource returns true if the window is entirely written by the
// only source intersecting it, so that initializing the buffer can be skipped
func (sb *sourcedBand) coveredBySingleSource(w Rect) bool {
	var cover Source
	for _, s := range sb.sources {
		if s.Intersects(w) {
			if cover != nil {
				return false
			}
			cover = s
		}
	}
	ss, ok := cover.(*SimpleSource)
	if !ok || ss.kind != SimpleSourceKind || !ss.CoversFully(w) {
		return false
	}
	if ss.srcRect == nil {
		return true
	}
	r := *ss.srcRect
	if r.XOff < 0 || r.YOff < 0 {
		return false
	}
	var st BandStructure
	if ss.props != nil {
		st = *ss.props
	} else if band, err := ss.resolve(); err == nil {
		st = band.Structure()
	} else {
		return false
	}
	return r.XOff+r.XSize <= float64(st.SizeX) && r.YOff+r.YSize <= float64(st.SizeY)
}

func (sb *sourcedBand) read(b *Band, w ioWindow, l bufLayout, bo bandIOOpts) error {
	if bo.skipSources || !sb.coveredBySingleSource(w.rect()) {
		l.fill(b.dtype.clamp(b.initValue()))
	}
	if bo.skipSources {
		return nil
	}
	total := 0
	for _, s := range sb.sources {
		if s.Intersects(w.rect()) {
			total++
		}
	}
	done := 0
	for _, s := range sb.sources {
		if !s.Intersects(w.rect()) {
			continue
		}
		if err := s.read(w, l, bo); err != nil {
			return err
		}
		done++
		if bo.progress != nil && !bo.progress(float64(done)/float64(total)) {
			return errorf(ErrInvalidInput, "read interrupted by progress callback")
		}
	}
	return nil
}

// canParallelize checks that the sources intersecting w write disjoint pixels.
// Fractional destination windows write the floor/ceil rounded pixels they
// touch, so overlap is tested on those integer footprints.
func (sb *sourcedBand) canParallelize(w Rect) (bool, int) {
	var contributing []pixelSpan
	for _, s := range sb.sources {
		if !s.Intersects(w) {
			continue
		}
		ss, ok := s.(*SimpleSource)
		if !ok || ss.kind != SimpleSourceKind {
			return false, 0
		}
		fp := footprint(ss.DstWindow()).clip(footprint(w))
		for _, o := range contributing {
			if fp.overlaps(o) {
				return false, 0
			}
		}
		contributing = append(contributing, fp)
	}
	return len(contributing) > 1, len(contributing)
}

func (sb *sourcedBand) serialize(b *Band, n *xmlNode, vrtDir string) {
	for _, s := range sb.sources {
		n.appendChild(s.serialize(vrtDir))
	}
}

func (sb *sourcedBand) close() error {
	var err error
	for _, s := range sb.sources {
		err = combine(err, s.close())
	}
	return err
}
