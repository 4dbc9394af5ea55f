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
	"strconv"
	"strings"
)

// Source kinds, as found in VRT documents
const (
	SimpleSourceKind         = "SimpleSource"
	ComplexSourceKind        = "ComplexSource"
	AveragedSourceKind       = "AveragedSource"
	KernelFilteredSourceKind = "KernelFilteredSource"
	FuncSourceKind           = "FuncSource"
)

// Source is one contribution of an external raster to a band. Sources are
// composited in order, later sources overwriting earlier ones.
type Source interface {
	// Kind returns the element name of the source
	Kind() string
	// DstWindow returns the window of the virtual raster the source writes into
	DstWindow() Rect
	// Intersects returns true if the source contributes to pixels of w
	Intersects(w Rect) bool
	// CoversFully returns true if the source writes every pixel of w
	CoversFully(w Rect) bool

	read(w ioWindow, l bufLayout, bo bandIOOpts) error
	serialize(vrtDir string) *xmlNode
	close() error
}

type sourceOpts struct {
	srcRect, dstRect *Rect
	resampling       string
	open             []string
	bandList         []int
	relative         bool
	notShared        bool
	mask             bool
	props            *BandStructure
	errorHandler     ErrorHandler

	nodata      *float64
	scaling     *linearScaling
	expScaling  *exponentialScaling
	lut         [][2]float64
	ctComponent int
	useMask     bool

	handle      SourceDataset
	noOverviews bool
}

// SourceOption is an option passed to the Band.AddXXXSource methods
//
// Available SourceOptions are:
//
// • SrcRect, DstRect
//
// • RelativeToVRT, NotShared, SourceBandList, SourceMask, SourceProperties
//
// • Resampling, DriverOpenOption
//
// • SourceNoData, LinearScaling, ExponentialScaling, LUT, ColorTableComponent,
// UseMaskBand (complex and kernel filtered sources only)
//
// • ErrLogger
type SourceOption interface {
	setSourceOpt(so *sourceOpts)
}

type rectOpt struct {
	r   Rect
	dst bool
}

func (ro rectOpt) setSourceOpt(so *sourceOpts) {
	r := ro.r
	if ro.dst {
		so.dstRect = &r
	} else {
		so.srcRect = &r
	}
}

// SrcRect sets the window of the source band that is read. Defaults to the whole band.
func SrcRect(xOff, yOff, xSize, ySize float64) SourceOption {
	return rectOpt{r: Rect{xOff, yOff, xSize, ySize}}
}

// DstRect sets the window of the virtual raster that is written. Defaults to the
// whole raster.
func DstRect(xOff, yOff, xSize, ySize float64) SourceOption {
	return rectOpt{r: Rect{xOff, yOff, xSize, ySize}, dst: true}
}

type relativeOpt struct{}

func (relativeOpt) setSourceOpt(so *sourceOpts) {
	so.relative = true
}

// RelativeToVRT marks the source filename as relative to the directory of the VRT
func RelativeToVRT() SourceOption {
	return relativeOpt{}
}

type notSharedOpt struct{}

func (notSharedOpt) setSourceOpt(so *sourceOpts) {
	so.notShared = true
}

// NotShared makes the source open its own handle on the underlying dataset
// instead of going through the dataset's shared-source registry
func NotShared() SourceOption {
	return notSharedOpt{}
}

type bandListOpt struct {
	bands []int
}

func (bo bandListOpt) setSourceOpt(so *sourceOpts) {
	so.bandList = append([]int(nil), bo.bands...)
}

// SourceBandList restricts the underlying dataset to the given bands. The source
// band index then refers to a position in that list.
func SourceBandList(bands ...int) SourceOption {
	return bandListOpt{bands}
}

type maskOpt struct{}

func (maskOpt) setSourceOpt(so *sourceOpts) {
	so.mask = true
}

// SourceMask makes the source read the mask of its source band
func SourceMask() SourceOption {
	return maskOpt{}
}

type propsOpt struct {
	st BandStructure
}

func (po propsOpt) setSourceOpt(so *sourceOpts) {
	st := po.st
	so.props = &st
}

// SourceProperties records the structure of the source band, so that the
// underlying dataset need not be opened to know its size
func SourceProperties(st BandStructure) SourceOption {
	return propsOpt{st}
}

// sourceHandleOpt attaches an already opened dataset to a source. The source
// does not take ownership of it.
type sourceHandleOpt struct {
	ds SourceDataset
}

func (sh sourceHandleOpt) setSourceOpt(so *sourceOpts) {
	so.handle = sh.ds
}

// noSourceOverviewsOpt makes the source read its band at full resolution
type noSourceOverviewsOpt struct{}

func (noSourceOverviewsOpt) setSourceOpt(so *sourceOpts) {
	so.noOverviews = true
}

// SimpleSource copies a window of a band of another raster into the virtual raster.
// It is also used for AveragedSource elements, which force average resampling.
type SimpleSource struct {
	kind        string
	filename    string
	relative    bool
	shared      bool
	openOptions []string
	bandList    []int
	srcBand     int
	mask        bool
	srcRect     *Rect
	dstRect     *Rect
	resampling  string
	props       *BandStructure
	noOverviews bool

	owner  *Dataset
	handle SourceDataset
	owned  bool
	band   SourceBand
	broken error
}

func newSimpleSource(kind, filename string, srcBand int, so sourceOpts) (*SimpleSource, error) {
	if filename == "" && so.handle == nil {
		return nil, errorf(ErrInvalidInput, "%s: empty source filename", kind)
	}
	if srcBand < 0 {
		return nil, errorf(ErrInvalidInput, "%s: invalid source band %d", kind, srcBand)
	}
	for _, r := range []*Rect{so.srcRect, so.dstRect} {
		if r != nil && !r.isValid() {
			return nil, errorf(ErrInvalidInput, "%s: invalid window %v", kind, *r)
		}
	}
	if so.resampling != "" {
		if _, err := ParseResampling(so.resampling); err != nil {
			return nil, err
		}
	}
	s := &SimpleSource{
		kind:        kind,
		filename:    filename,
		relative:    so.relative,
		shared:      !so.notShared,
		openOptions: so.open,
		bandList:    so.bandList,
		srcBand:     srcBand,
		mask:        so.mask || srcBand == 0,
		srcRect:     so.srcRect,
		dstRect:     so.dstRect,
		resampling:  so.resampling,
		props:       so.props,
		noOverviews: so.noOverviews,
		handle:      so.handle,
	}
	if kind == AveragedSourceKind {
		s.resampling = Average.String()
	}
	return s, nil
}

func (s *SimpleSource) Kind() string {
	return s.kind
}

// Filename returns the name of the underlying dataset, as recorded in the document
func (s *SimpleSource) Filename() string {
	return s.filename
}

// SourceBand returns the source band index and wether the mask of that band is read
func (s *SimpleSource) SourceBand() (int, bool) {
	return s.srcBand, s.mask
}

func (s *SimpleSource) attach(ds *Dataset) {
	s.owner = ds
}

func (s *SimpleSource) DstWindow() Rect {
	if s.dstRect != nil {
		return *s.dstRect
	}
	if s.owner != nil {
		return Rect{0, 0, float64(s.owner.width), float64(s.owner.height)}
	}
	return Rect{}
}

func (s *SimpleSource) Intersects(w Rect) bool {
	return s.DstWindow().Intersects(w)
}

func (s *SimpleSource) CoversFully(w Rect) bool {
	return s.DstWindow().Contains(w)
}

// SrcWindow returns the window of the source band that is read. The underlying
// dataset is opened if no explicit window or source properties are known.
func (s *SimpleSource) SrcWindow() (Rect, error) {
	if s.srcRect != nil {
		return *s.srcRect, nil
	}
	if s.props != nil {
		return Rect{0, 0, float64(s.props.SizeX), float64(s.props.SizeY)}, nil
	}
	b, err := s.resolve()
	if err != nil {
		return Rect{}, err
	}
	st := b.Structure()
	return Rect{0, 0, float64(st.SizeX), float64(st.SizeY)}, nil
}

// DstToSrc maps a pixel position of the virtual raster to the source band
func (s *SimpleSource) DstToSrc(x, y float64) (float64, float64, error) {
	src, err := s.SrcWindow()
	if err != nil {
		return 0, 0, err
	}
	dst := s.DstWindow()
	return src.XOff + (x-dst.XOff)*(src.XSize/dst.XSize),
		src.YOff + (y-dst.YOff)*(src.YSize/dst.YSize), nil
}

// SrcToDst maps a pixel position of the source band to the virtual raster
func (s *SimpleSource) SrcToDst(x, y float64) (float64, float64, error) {
	src, err := s.SrcWindow()
	if err != nil {
		return 0, 0, err
	}
	dst := s.DstWindow()
	return dst.XOff + (x-src.XOff)*(dst.XSize/src.XSize),
		dst.YOff + (y-src.YOff)*(dst.YSize/src.YSize), nil
}

// dataset returns the underlying dataset, opening it if needed
func (s *SimpleSource) dataset() (SourceDataset, error) {
	if s.handle != nil {
		return s.handle, nil
	}
	if s.broken != nil {
		return nil, s.broken
	}
	if s.owner == nil {
		return nil, errorf(ErrInconsistentState, "source %s is not attached to a dataset", s.filename)
	}
	ds, owned, err := s.owner.openSourceDataset(s.filename, s.relative, s.openOptions, s.bandList, s.shared)
	if err != nil {
		s.broken = errorf(ErrIOFailure, "open source %s: %w", s.filename, err)
		return nil, s.broken
	}
	s.handle, s.owned = ds, owned
	return ds, nil
}

// resolve returns the band read by the source. Failures are cached: a broken
// source is never reopened.
func (s *SimpleSource) resolve() (SourceBand, error) {
	if s.band != nil {
		return s.band, nil
	}
	if s.broken != nil {
		return nil, s.broken
	}
	ds, err := s.dataset()
	if err != nil {
		return nil, err
	}
	n := s.srcBand
	if n == 0 {
		n = 1
	}
	if len(s.bandList) > 0 {
		if n > len(s.bandList) {
			s.broken = errorf(ErrIOFailure, "source %s: band %d not in band list", s.filename, n)
			return nil, s.broken
		}
		n = s.bandList[n-1]
	}
	b, err := ds.RasterBand(n)
	if err != nil {
		s.broken = errorf(ErrIOFailure, "source %s: %w", s.filename, err)
		return nil, s.broken
	}
	if s.mask {
		b = b.MaskBand()
	}
	if s.noOverviews {
		b = fullResBand{b}
	}
	s.band = b
	return b, nil
}

func (s *SimpleSource) resamplingFor(bo bandIOOpts) ResamplingAlg {
	if s.resampling != "" {
		if alg, err := ParseResampling(s.resampling); err == nil {
			return alg
		}
	}
	return bo.resampling
}

// fetch reads the part of request w covered by the source into a packed
// float64 raster. ok is false when the source does not contribute.
func (s *SimpleSource) fetch(w ioWindow, bo bandIOOpts) (sd srcDstWindow, data []float64, ok bool, err error) {
	if !s.Intersects(w.rect()) {
		return sd, nil, false, nil
	}
	b, err := s.resolve()
	if err != nil {
		return sd, nil, false, err
	}
	st := b.Structure()
	src, err := s.SrcWindow()
	if err != nil {
		return sd, nil, false, err
	}
	sd, ok = computeSrcDstWindow(w, src, s.DstWindow(), st.SizeX, st.SizeY)
	if !ok {
		return sd, nil, false, nil
	}
	data = make([]float64, sd.outXSize*sd.outYSize)
	err = b.Read(sd.reqXOff, sd.reqYOff, data, sd.outXSize, sd.outYSize, s.readOpts(sd, bo)...)
	if err != nil {
		return sd, nil, false, asKind(ErrIOFailure, err)
	}
	return sd, data, true, nil
}

func (s *SimpleSource) readOpts(sd srcDstWindow, bo bandIOOpts) []BandIOOption {
	opts := []BandIOOption{
		Window(sd.reqXSize, sd.reqYSize),
		Resampling(s.resamplingFor(bo)),
		chainOpt{bo.chain},
	}
	if len(bo.config) > 0 {
		opts = append(opts, ConfigOption(bo.config...))
	}
	if bo.errorHandler != nil {
		opts = append(opts, ErrLogger(bo.errorHandler))
	}
	return opts
}

func (s *SimpleSource) read(w ioWindow, l bufLayout, bo bandIOOpts) error {
	sd, data, ok, err := s.fetch(w, bo)
	if err != nil || !ok {
		return err
	}
	l.sub(sd.outXOff, sd.outYOff, sd.outXSize, sd.outYSize).putRaster(0, 0, data, sd.outXSize, sd.outYSize)
	return nil
}

// datasetRead reads the requested bands of the underlying dataset in a single
// call. layouts are the caller buffer layouts of each requested band.
func (s *SimpleSource) datasetRead(w ioWindow, bands []int, buffer interface{}, layouts []bufLayout, ro datasetIOOpts) error {
	if !s.Intersects(w.rect()) {
		return nil
	}
	ds, err := s.dataset()
	if err != nil {
		return err
	}
	b, err := s.resolve()
	if err != nil {
		return err
	}
	st := b.Structure()
	src, err := s.SrcWindow()
	if err != nil {
		return err
	}
	sd, ok := computeSrcDstWindow(w, src, s.DstWindow(), st.SizeX, st.SizeY)
	if !ok {
		return nil
	}
	// Bands() takes 0-based indices
	under := make([]int, len(bands))
	for i, bn := range bands {
		if len(s.bandList) > 0 {
			if bn > len(s.bandList) {
				return errorf(ErrIOFailure, "source %s: band %d not in band list", s.filename, bn)
			}
			bn = s.bandList[bn-1]
		}
		under[i] = bn - 1
	}
	l0 := layouts[0]
	esz := l0.acc.dataType().Size()
	off := l0.index(sd.outXOff, sd.outYOff)
	bandSpacing := 0
	if len(layouts) > 1 {
		bandSpacing = (layouts[1].off - layouts[0].off) * esz
	}
	opts := []DatasetIOOption{
		Window(sd.reqXSize, sd.reqYSize),
		Bands(under...),
		PixelSpacing(l0.pixel * esz),
		LineSpacing(l0.line * esz),
		BandSpacing(bandSpacing),
		Resampling(s.resamplingFor(bandIOOpts{resampling: ro.resampling})),
		chainOpt{ro.chain},
	}
	if len(ro.config) > 0 {
		opts = append(opts, ConfigOption(ro.config...))
	}
	if ro.errorHandler != nil {
		opts = append(opts, ErrLogger(ro.errorHandler))
	}
	if err := ds.Read(sd.reqXOff, sd.reqYOff, sliceFrom(buffer, off), sd.outXSize, sd.outYSize, opts...); err != nil {
		return asKind(ErrIOFailure, err)
	}
	return nil
}

// sameExceptBand returns true if both sources read the same windows of the
// same dataset with the same options
func (s *SimpleSource) sameExceptBand(o *SimpleSource) bool {
	if s.kind != o.kind || s.filename != o.filename || s.relative != o.relative ||
		s.mask != o.mask || s.resampling != o.resampling || s.handle != o.handle {
		return false
	}
	if strings.Join(s.openOptions, "\x00") != strings.Join(o.openOptions, "\x00") ||
		!intsEqual(s.bandList, o.bandList) {
		return false
	}
	return rectPtrEqual(s.srcRect, o.srcRect) && rectPtrEqual(s.dstRect, o.dstRect)
}

func intsEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func rectPtrEqual(a, b *Rect) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (s *SimpleSource) close() error {
	var err error
	if s.owned && s.handle != nil {
		err = s.handle.Close()
	}
	if s.owned {
		s.handle = nil
	}
	s.band = nil
	return err
}

// serializeCommon writes the children shared by all file backed sources
func (s *SimpleSource) serializeCommon(n *xmlNode) {
	if s.resampling != "" && s.kind != AveragedSourceKind {
		n.setAttr("resampling", s.resampling)
	}
	fn := n.addText("SourceFilename", s.filename)
	fn.setAttr("relativeToVRT", boolAttr(s.relative))
	if !s.shared {
		fn.setAttr("shared", "0")
	}
	if len(s.openOptions) > 0 {
		oo := n.add("OpenOptions")
		for _, kv := range s.openOptions {
			k, v, _ := strings.Cut(kv, "=")
			oo.addText("OOI", v).setAttr("key", k)
		}
	}
	if len(s.bandList) > 0 {
		bl := make([]string, len(s.bandList))
		for i, b := range s.bandList {
			bl[i] = strconv.Itoa(b)
		}
		n.addText("BandList", strings.Join(bl, ","))
	}
	switch {
	case s.mask && s.srcBand <= 1:
		n.addText("SourceBand", "mask")
	case s.mask:
		n.addText("SourceBand", "mask,"+strconv.Itoa(s.srcBand))
	default:
		n.addText("SourceBand", strconv.Itoa(s.srcBand))
	}
	// only properties known from the document or the caller are written, so the
	// output does not depend on which sources were opened
	if props := s.props; props != nil {
		n.add("SourceProperties").
			setAttr("RasterXSize", strconv.Itoa(props.SizeX)).
			setAttr("RasterYSize", strconv.Itoa(props.SizeY)).
			setAttr("DataType", props.DataType.String()).
			setAttr("BlockXSize", strconv.Itoa(props.BlockSizeX)).
			setAttr("BlockYSize", strconv.Itoa(props.BlockSizeY))
	}
	if s.srcRect != nil {
		rectNode(n.add("SrcRect"), *s.srcRect)
	}
	if s.dstRect != nil {
		rectNode(n.add("DstRect"), *s.dstRect)
	}
}

func (s *SimpleSource) serialize(vrtDir string) *xmlNode {
	n := newNode(s.kind)
	s.serializeCommon(n)
	return n
}

func rectNode(n *xmlNode, r Rect) {
	n.setAttr("xOff", fmtFloat(r.XOff)).
		setAttr("yOff", fmtFloat(r.YOff)).
		setAttr("xSize", fmtFloat(r.XSize)).
		setAttr("ySize", fmtFloat(r.YSize))
}

func parseRectNode(n *xmlNode) (*Rect, error) {
	r := Rect{}
	var err error
	for _, f := range []struct {
		name string
		v    *float64
	}{{"xOff", &r.XOff}, {"yOff", &r.YOff}, {"xSize", &r.XSize}, {"ySize", &r.YSize}} {
		v, ok := n.attr(f.name)
		if !ok {
			return nil, errorf(ErrInvalidInput, "%s: missing %s", n.name(), f.name)
		}
		if *f.v, err = parseFloatText(v, n.name()+" "+f.name); err != nil {
			return nil, err
		}
	}
	if !r.isValid() {
		return nil, errorf(ErrInvalidInput, "%s: invalid window", n.name())
	}
	return &r, nil
}

// parseSimpleSourceOpts reads the children shared by all file backed sources
func parseSimpleSourceOpts(n *xmlNode) (filename string, srcBand int, so sourceOpts, err error) {
	fn := n.child("SourceFilename")
	if fn == nil || fn.text() == "" {
		return "", 0, so, errorf(ErrInvalidInput, "%s: missing SourceFilename", n.name())
	}
	filename = fn.text()
	so.relative = isTrue(fn.attrOr("relativeToVRT", "0"))
	so.notShared = !isTrue(fn.attrOr("shared", "1"))
	if r, ok := n.attr("resampling"); ok {
		so.resampling = r
	} else if r, ok := n.childText("Resampling"); ok {
		so.resampling = r
	}
	if oo := n.child("OpenOptions"); oo != nil {
		for _, ooi := range oo.childrenNamed("OOI") {
			so.open = append(so.open, ooi.attrOr("key", "")+"="+ooi.text())
		}
	}
	if bl, ok := n.childText("BandList"); ok && bl != "" {
		for _, b := range strings.Split(bl, ",") {
			v, err := parseIntOption("BandList", b)
			if err != nil || v < 1 {
				return "", 0, so, errorf(ErrInvalidInput, "%s: invalid BandList %q", n.name(), bl)
			}
			so.bandList = append(so.bandList, v)
		}
	}
	sb, _ := n.childText("SourceBand")
	switch {
	case sb == "":
		srcBand = 1
	case strings.EqualFold(sb, "mask"):
		srcBand, so.mask = 0, true
	case strings.HasPrefix(strings.ToLower(sb), "mask,"):
		if srcBand, err = parseIntOption("SourceBand", sb[5:]); err != nil || srcBand < 1 {
			return "", 0, so, errorf(ErrInvalidInput, "%s: invalid SourceBand %q", n.name(), sb)
		}
		so.mask = true
	default:
		if srcBand, err = parseIntOption("SourceBand", sb); err != nil || srcBand < 1 {
			return "", 0, so, errorf(ErrInvalidInput, "%s: invalid SourceBand %q", n.name(), sb)
		}
	}
	if sp := n.child("SourceProperties"); sp != nil {
		st := BandStructure{DataType: ParseDataType(sp.attrOr("DataType", "Byte"))}
		st.SizeX, _ = strconv.Atoi(sp.attrOr("RasterXSize", "0"))
		st.SizeY, _ = strconv.Atoi(sp.attrOr("RasterYSize", "0"))
		st.BlockSizeX, _ = strconv.Atoi(sp.attrOr("BlockXSize", "0"))
		st.BlockSizeY, _ = strconv.Atoi(sp.attrOr("BlockYSize", "0"))
		if st.SizeX > 0 && st.SizeY > 0 {
			so.props = &st
		}
	}
	if r := n.child("SrcRect"); r != nil {
		if so.srcRect, err = parseRectNode(r); err != nil {
			return "", 0, so, err
		}
	}
	if r := n.child("DstRect"); r != nil {
		if so.dstRect, err = parseRectNode(r); err != nil {
			return "", 0, so, err
		}
	}
	return filename, srcBand, so, nil
}

// parseSource builds a source from its document element
func parseSource(n *xmlNode) (Source, error) {
	switch n.name() {
	case SimpleSourceKind, AveragedSourceKind:
		fn, sb, so, err := parseSimpleSourceOpts(n)
		if err != nil {
			return nil, err
		}
		return newSimpleSource(n.name(), fn, sb, so)
	case ComplexSourceKind:
		return parseComplexSource(n)
	case KernelFilteredSourceKind:
		return parseKernelFilteredSource(n)
	}
	return nil, errorf(ErrInvalidInput, "unknown source element %s", n.name())
}

func isSourceElement(name string) bool {
	switch name {
	case SimpleSourceKind, ComplexSourceKind, AveragedSourceKind, KernelFilteredSourceKind:
		return true
	}
	return false
}

func boolAttr(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// fullResBand hides the overviews of a band
type fullResBand struct {
	SourceBand
}

func (fullResBand) Overviews() []SourceBand {
	return nil
}

func (f fullResBand) Read(srcX, srcY int, buffer interface{}, bufWidth, bufHeight int, opts ...BandIOOption) error {
	return f.SourceBand.Read(srcX, srcY, buffer, bufWidth, bufHeight, append(opts, skipOverviewsOpt{})...)
}
