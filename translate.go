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
	"math"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// bandSel selects band n of the input, or its mask
type bandSel struct {
	n    int
	mask bool
}

func parseBandSel(s string) (bandSel, error) {
	s = strings.TrimSpace(s)
	ls := strings.ToLower(s)
	switch {
	case ls == "mask":
		return bandSel{n: 1, mask: true}, nil
	case strings.HasPrefix(ls, "mask,"):
		n, err := strconv.Atoi(s[5:])
		if err != nil || n < 1 {
			return bandSel{}, errorf(ErrInvalidInput, "invalid band %q", s)
		}
		return bandSel{n: n, mask: true}, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return bandSel{}, errorf(ErrInvalidInput, "invalid band %q", s)
	}
	return bandSel{n: n}, nil
}

type translateArgs struct {
	format     string
	creation   []string
	bands      []bandSel
	mask       string
	outsize    []string
	srcwin     *Rect
	projwin    []float64
	projwinSRS string
	tr         []float64
	resampling string
	nodata     string
	srs        *string
	ullr       []float64
	gt         []float64
	scale      *float64
	offset     *float64
	epoch      *float64
	dtype      DataType
	// scales holds -scale parameters, keyed by 1-based output band, 0 for all
	scales    map[int][]float64
	exponents map[int]float64
	expand    string
	unscale   bool
	gcps      []GCP
	noGCP     bool
	ovr       string
	epo, eco  bool
}

func isNumber(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

// parseTranslateArgs reads gdal_translate style switches
func parseTranslateArgs(switches []string) (*translateArgs, error) {
	ta := &translateArgs{scales: map[int][]float64{}, exponents: map[int]float64{}}
	for i := 0; i < len(switches); i++ {
		sw := switches[i]
		next := func(n int) ([]string, error) {
			if i+n >= len(switches) {
				return nil, errorf(ErrInvalidInput, "%s: expecting %d values", sw, n)
			}
			v := switches[i+1 : i+1+n]
			i += n
			return v, nil
		}
		floats := func(n int) ([]float64, error) {
			vs, err := next(n)
			if err != nil {
				return nil, err
			}
			ret := make([]float64, n)
			for j, v := range vs {
				if ret[j], err = parseFloatText(v, sw); err != nil {
					return nil, err
				}
			}
			return ret, nil
		}
		one := func() (float64, error) {
			f, err := floats(1)
			if err != nil {
				return 0, err
			}
			return f[0], nil
		}
		var err error
		switch lsw := strings.ToLower(sw); {
		case lsw == "-of":
			var v []string
			if v, err = next(1); err == nil {
				ta.format = v[0]
			}
		case lsw == "-co":
			var v []string
			if v, err = next(1); err == nil {
				ta.creation = append(ta.creation, v[0])
			}
		case lsw == "-b":
			var v []string
			if v, err = next(1); err == nil {
				var bs bandSel
				if bs, err = parseBandSel(v[0]); err == nil {
					ta.bands = append(ta.bands, bs)
				}
			}
		case lsw == "-mask":
			var v []string
			if v, err = next(1); err == nil {
				ta.mask = v[0]
			}
		case lsw == "-outsize":
			ta.outsize, err = next(2)
		case lsw == "-srcwin":
			var f []float64
			if f, err = floats(4); err == nil {
				ta.srcwin = &Rect{f[0], f[1], f[2], f[3]}
			}
		case lsw == "-projwin":
			ta.projwin, err = floats(4)
		case lsw == "-projwin_srs":
			var v []string
			if v, err = next(1); err == nil {
				ta.projwinSRS = v[0]
			}
		case lsw == "-tr":
			ta.tr, err = floats(2)
		case lsw == "-r":
			var v []string
			if v, err = next(1); err == nil {
				if _, err = ParseResampling(v[0]); err == nil {
					ta.resampling = v[0]
				}
			}
		case lsw == "-a_nodata":
			var v []string
			if v, err = next(1); err == nil {
				if !strings.EqualFold(v[0], "none") && !isNumber(v[0]) {
					err = errorf(ErrInvalidInput, "invalid -a_nodata %q", v[0])
				}
				ta.nodata = v[0]
			}
		case lsw == "-a_srs":
			var v []string
			if v, err = next(1); err == nil {
				ta.srs = &v[0]
			}
		case lsw == "-a_ullr":
			ta.ullr, err = floats(4)
		case lsw == "-a_gt":
			ta.gt, err = floats(6)
		case lsw == "-a_scale":
			var f float64
			if f, err = one(); err == nil {
				ta.scale = &f
			}
		case lsw == "-a_offset":
			var f float64
			if f, err = one(); err == nil {
				ta.offset = &f
			}
		case lsw == "-a_coord_epoch":
			var f float64
			if f, err = one(); err == nil {
				ta.epoch = &f
			}
		case lsw == "-ot":
			var v []string
			if v, err = next(1); err == nil {
				if ta.dtype = ParseDataType(v[0]); ta.dtype == Unknown {
					err = errorf(ErrInvalidInput, "invalid -ot %q", v[0])
				}
			}
		case lsw == "-scale" || strings.HasPrefix(lsw, "-scale_"):
			bn := 0
			if lsw != "-scale" {
				if bn, err = strconv.Atoi(lsw[len("-scale_"):]); err != nil || bn < 1 {
					return nil, errorf(ErrInvalidInput, "invalid switch %s", sw)
				}
			}
			var p []float64
			for len(p) < 4 && i+1 < len(switches) && isNumber(switches[i+1]) {
				f, _ := strconv.ParseFloat(switches[i+1], 64)
				p = append(p, f)
				i++
			}
			if len(p) != 0 && len(p) != 2 && len(p) != 4 {
				return nil, errorf(ErrInvalidInput, "%s: expecting 0, 2 or 4 values", sw)
			}
			ta.scales[bn] = p
		case lsw == "-exponent" || strings.HasPrefix(lsw, "-exponent_"):
			bn := 0
			if lsw != "-exponent" {
				if bn, err = strconv.Atoi(lsw[len("-exponent_"):]); err != nil || bn < 1 {
					return nil, errorf(ErrInvalidInput, "invalid switch %s", sw)
				}
			}
			var f float64
			if f, err = one(); err == nil {
				ta.exponents[bn] = f
			}
		case lsw == "-expand":
			var v []string
			if v, err = next(1); err == nil {
				switch e := strings.ToLower(v[0]); e {
				case "gray", "rgb", "rgba":
					ta.expand = e
				default:
					err = errorf(ErrInvalidInput, "invalid -expand %q", v[0])
				}
			}
		case lsw == "-unscale":
			ta.unscale = true
		case lsw == "-gcp":
			n := 4
			if i+5 < len(switches) && isNumber(switches[i+5]) {
				n = 5
			}
			var f []float64
			if f, err = floats(n); err == nil {
				g := GCP{ID: strconv.Itoa(len(ta.gcps) + 1), Pixel: f[0], Line: f[1], X: f[2], Y: f[3]}
				if n == 5 {
					g.Z = f[4]
				}
				ta.gcps = append(ta.gcps, g)
			}
		case lsw == "-nogcp":
			ta.noGCP = true
		case lsw == "-ovr":
			var v []string
			if v, err = next(1); err == nil {
				ta.ovr = v[0]
			}
		case lsw == "-epo":
			ta.epo = true
		case lsw == "-eco":
			ta.eco = true
		default:
			return nil, errorf(ErrInvalidInput, "unsupported switch %s", sw)
		}
		if err != nil {
			return nil, err
		}
	}
	if len(ta.exponents) > 0 && len(ta.scales) == 0 {
		return nil, errorf(ErrInvalidInput, "-exponent requires -scale")
	}
	if ta.outsize != nil && ta.tr != nil {
		return nil, errorf(ErrInvalidInput, "-outsize and -tr are mutually exclusive")
	}
	if ta.srcwin != nil && ta.projwin != nil {
		return nil, errorf(ErrInvalidInput, "-srcwin and -projwin are mutually exclusive")
	}
	return ta, nil
}

func (ta *translateArgs) scaleFor(band int) ([]float64, bool) {
	if p, ok := ta.scales[band]; ok {
		return p, true
	}
	p, ok := ta.scales[0]
	return p, ok
}

func (ta *translateArgs) exponentFor(band int) (float64, bool) {
	if e, ok := ta.exponents[band]; ok {
		return e, true
	}
	e, ok := ta.exponents[0]
	return e, ok
}

// borrowedDataset is a dataset whose Close is left to its owner
type borrowedDataset struct {
	SourceDataset
}

func (borrowedDataset) Close(opts ...CloseOption) error {
	return nil
}

// fullResTranslateOpt makes the sources of the translated dataset read the input
// bands without their overviews
type fullResTranslateOpt struct{}

func (fullResTranslateOpt) setTranslateOpt(to *translateOpts) {
	to.fullRes = true
}

// Translate builds a virtual dataset exposing src transformed by gdal_translate
// style switches. Supported switches are -of VRT, -co, -b, -mask, -outsize, -srcwin,
// -projwin, -tr, -r, -a_nodata, -a_srs, -a_ullr, -a_gt, -a_scale, -a_offset,
// -a_coord_epoch, -ot, -scale[_n], -exponent[_n], -expand, -unscale, -gcp,
// -nogcp, -ovr, -epo and -eco.
//
// The sources of the returned dataset reference src by its description and
// read it through the given handle: src must outlive the returned dataset.
// dstName is the file the document is written to on Close, and may be empty.
//
//	vds, err := vrt.Translate("out.vrt", src, []string{"-b", "1", "-outsize", "50%", "50%"})
func Translate(dstName string, src SourceDataset, switches []string, opts ...TranslateOption) (*Dataset, error) {
	to := translateOpts{}
	for _, o := range opts {
		o.setTranslateOpt(&to)
	}
	ds, err := translate(dstName, src, switches, to)
	if err != nil {
		return nil, newDiagnostics(to.errorHandler).fail(err)
	}
	return ds, nil
}

func round(v float64) int {
	return int(math.Floor(v + 0.5))
}

// relativeName returns target relative to the directory of the document
// vrtName, when it lies below it
func relativeName(vrtName, target string) (string, bool) {
	if vrtName == "" || target == "" || hasScheme(vrtName) || hasScheme(target) ||
		isInlineXML(vrtName) || isInlineXML(target) ||
		filepath.IsAbs(vrtName) != filepath.IsAbs(target) {
		return target, false
	}
	rel, err := filepath.Rel(filepath.Dir(vrtName), target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return target, false
	}
	return filepath.ToSlash(rel), true
}

func translate(dstName string, src SourceDataset, switches []string, to translateOpts) (*Dataset, error) {
	ta, err := parseTranslateArgs(switches)
	if err != nil {
		return nil, err
	}
	if ta.format != "" && !strings.EqualFold(ta.format, "VRT") {
		return nil, errorf(ErrUnsupported, "output format %s is not supported", ta.format)
	}
	if ta.projwinSRS != "" {
		return nil, errorf(ErrUnsupported, "-projwin_srs: reprojection of the window is not supported")
	}

	in := src
	var ovrOption string
	if ta.ovr != "" {
		level := -1
		switch v := strings.ToUpper(ta.ovr); {
		case v == "NONE":
			level = noOverviewLevel
		case v == "AUTO":
		case strings.HasPrefix(v, "AUTO-"):
			return nil, errorf(ErrUnsupported, "-ovr %s is not supported", ta.ovr)
		default:
			if level, err = strconv.Atoi(v); err != nil || level < 0 {
				return nil, errorf(ErrInvalidInput, "invalid -ovr %q", ta.ovr)
			}
		}
		if level != -1 {
			if in, err = newOverviewLevelDataset(borrowedDataset{src}, level); err != nil {
				return nil, err
			}
			ovrOption = "OVERVIEW_LEVEL=" + strings.ToUpper(ta.ovr)
		}
	}

	st := in.Structure()
	if st.NBands == 0 {
		return nil, errorf(ErrInvalidInput, "%s has no raster bands", src.Description())
	}
	gt, gtErr := in.GeoTransform()
	hasGT := gtErr == nil
	rotated := hasGT && (gt[2] != 0 || gt[4] != 0)

	win := Rect{0, 0, float64(st.SizeX), float64(st.SizeY)}
	if ta.srcwin != nil {
		win = *ta.srcwin
	}
	if ta.projwin != nil {
		if !hasGT || rotated {
			return nil, errorf(ErrInvalidInput, "-projwin needs a north up geotransform")
		}
		pw := ta.projwin
		win = Rect{
			XOff:  (pw[0] - gt[0]) / gt[1],
			YOff:  (pw[1] - gt[3]) / gt[5],
			XSize: (pw[2] - pw[0]) / gt[1],
			YSize: (pw[3] - pw[1]) / gt[5],
		}
		if alg, _ := ParseResampling(ta.resampling); alg == Nearest {
			win.XOff = math.Floor(win.XOff + 0.001)
			win.YOff = math.Floor(win.YOff + 0.001)
			win.XSize = math.Floor(win.XSize + 0.5)
			win.YSize = math.Floor(win.YSize + 0.5)
		}
	}
	if win.XSize <= 0 || win.YSize <= 0 {
		return nil, errorf(ErrInvalidInput, "invalid source window %v", win)
	}
	full := Rect{0, 0, float64(st.SizeX), float64(st.SizeY)}
	if !win.Intersects(full) {
		if ta.eco || ta.epo {
			return nil, errorf(ErrInvalidInput, "source window %v falls completely outside the raster extent", win)
		}
		_ = newDiagnostics(to.errorHandler).warnf("source window %v falls completely outside the raster extent", win)
	} else if ta.epo && (win.XOff < 0 || win.YOff < 0 ||
		win.XOff+win.XSize > full.XSize || win.YOff+win.YSize > full.YSize) {
		return nil, errorf(ErrInvalidInput, "source window %v falls partially outside the raster extent", win)
	}

	ow, oh := round(win.XSize), round(win.YSize)
	switch {
	case ta.outsize != nil:
		dim := func(s string, size float64) (int, error) {
			if strings.HasSuffix(s, "%") {
				p, err := parseFloatText(strings.TrimSuffix(s, "%"), "-outsize")
				if err != nil || p < 0 {
					return 0, errorf(ErrInvalidInput, "invalid -outsize %q", s)
				}
				return round(size * p / 100), nil
			}
			v, err := strconv.Atoi(s)
			if err != nil || v < 0 {
				return 0, errorf(ErrInvalidInput, "invalid -outsize %q", s)
			}
			return v, nil
		}
		if ow, err = dim(ta.outsize[0], win.XSize); err != nil {
			return nil, err
		}
		if oh, err = dim(ta.outsize[1], win.YSize); err != nil {
			return nil, err
		}
		switch {
		case ow == 0 && oh == 0:
			return nil, errorf(ErrInvalidInput, "-outsize 0 0 is invalid")
		case ow == 0:
			ow = round(float64(oh) * win.XSize / win.YSize)
		case oh == 0:
			oh = round(float64(ow) * win.YSize / win.XSize)
		}
	case ta.tr != nil:
		if !hasGT || rotated {
			return nil, errorf(ErrInvalidInput, "-tr needs a north up geotransform")
		}
		if ta.tr[0] <= 0 || ta.tr[1] <= 0 {
			return nil, errorf(ErrInvalidInput, "invalid -tr %v", ta.tr)
		}
		ow = round(win.XSize * math.Abs(gt[1]) / ta.tr[0])
		oh = round(win.YSize * math.Abs(gt[5]) / ta.tr[1])
	}
	if ow < 1 {
		ow = 1
	}
	if oh < 1 {
		oh = 1
	}

	copts := []CreateOption{CreationOption(ta.creation...), ConfigOption(to.config...)}
	if to.fs != nil {
		copts = append(copts, FileSystem(to.fs))
	}
	if to.errorHandler != nil {
		copts = append(copts, ErrLogger(to.errorHandler))
	}
	ds, err := Create(dstName, ow, oh, copts...)
	if err != nil {
		return nil, err
	}
	fail := func(err error) (*Dataset, error) {
		ds.dirty = false
		_ = ds.Close()
		return nil, err
	}

	rx, ry := win.XSize/float64(ow), win.YSize/float64(oh)
	switch {
	case ta.gt != nil:
		copy(ds.gt[:], ta.gt)
		ds.hasGT = true
	case ta.ullr != nil:
		u := ta.ullr
		ds.gt = [6]float64{u[0], (u[2] - u[0]) / float64(ow), 0, u[1], 0, (u[3] - u[1]) / float64(oh)}
		ds.hasGT = true
	case hasGT:
		ds.gt = [6]float64{
			gt[0] + win.XOff*gt[1] + win.YOff*gt[2], gt[1] * rx, gt[2] * ry,
			gt[3] + win.XOff*gt[4] + win.YOff*gt[5], gt[4] * rx, gt[5] * ry,
		}
		ds.hasGT = true
	}
	ds.srs = in.SpatialRef()
	if ta.srs != nil {
		ds.srs = SpatialRef{WKT: *ta.srs}
	}
	if ta.epoch != nil {
		ds.srs.CoordinateEpoch = *ta.epoch
	}
	switch {
	case ta.gcps != nil:
		ds.gcps, ds.gcpSRS = ta.gcps, ds.srs
	case !ta.noGCP:
		if gd, ok := src.(gcpDataset); ok {
			gcps, sr := gd.GCPs()
			for _, g := range gcps {
				g.Pixel = (g.Pixel - win.XOff) / rx
				g.Line = (g.Line - win.YOff) / ry
				ds.gcps = append(ds.gcps, g)
			}
			ds.gcpSRS = sr
		}
	}
	md := in.Metadatas()
	keys := make([]string, 0, len(md))
	for k := range md {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ds.setItem("", k, md[k])
	}

	sels := ta.bands
	if len(sels) == 0 {
		for i := 1; i <= st.NBands; i++ {
			sels = append(sels, bandSel{n: i})
		}
	}
	for _, s := range sels {
		if s.n > st.NBands {
			return fail(errorf(ErrInvalidInput, "band %d requested, %s has %d bands", s.n, src.Description(), st.NBands))
		}
	}
	var components []int
	if ta.expand != "" {
		if len(sels) != 1 {
			return fail(errorf(ErrInvalidInput, "-expand needs a single input band"))
		}
		switch ta.expand {
		case "gray":
			components = []int{1}
		case "rgb":
			components = []int{1, 2, 3}
		default:
			components = []int{1, 2, 3, 4}
		}
		s := sels[0]
		sels = make([]bandSel, len(components))
		for i := range sels {
			sels[i] = s
		}
	}

	filename, relative := relativeName(dstName, src.Description())
	common := func(bst BandStructure, s bandSel) []SourceOption {
		so := []SourceOption{
			SrcRect(win.XOff, win.YOff, win.XSize, win.YSize),
			DstRect(0, 0, float64(ow), float64(oh)),
			sourceHandleOpt{in},
			SourceProperties(bst),
		}
		if relative {
			so = append(so, RelativeToVRT())
		}
		if s.mask {
			so = append(so, SourceMask())
		}
		if ovrOption != "" {
			so = append(so, DriverOpenOption(ovrOption))
		}
		if ta.resampling != "" {
			alg, _ := ParseResampling(ta.resampling)
			so = append(so, Resampling(alg))
		}
		if to.fullRes {
			so = append(so, noSourceOverviewsOpt{})
		}
		return so
	}

	for i, s := range sels {
		rb, err := in.RasterBand(s.n)
		if err != nil {
			return fail(err)
		}
		if s.mask {
			rb = rb.MaskBand()
		}
		bst := rb.Structure()
		dtype := ta.dtype
		if dtype == Unknown {
			switch {
			case ta.unscale:
				dtype = Float32
			case ta.expand != "":
				dtype = Byte
			default:
				dtype = bst.DataType
			}
		}
		b, err := ds.AddBand(dtype)
		if err != nil {
			return fail(err)
		}

		if nd, ok := rb.NoData(); ok && ta.expand == "" {
			b.nodata, b.hasNoData = nd, true
		}
		switch {
		case strings.EqualFold(ta.nodata, "none"):
			b.nodata, b.hasNoData = 0, false
		case ta.nodata != "":
			b.nodata, _ = strconv.ParseFloat(ta.nodata, 64)
			b.hasNoData = true
		}
		b.colorInterp = rb.ColorInterp()
		if ta.expand == "" {
			b.colorTable = rb.ColorTable().clone()
		}
		if sc, ok := rb.(scaledBand); ok && !ta.unscale {
			b.scale, b.offset = sc.ScaleOffset()
			b.hasScale, b.hasOffset = b.scale != 1, b.offset != 0
		}
		if ta.scale != nil {
			b.scale, b.hasScale = *ta.scale, true
		}
		if ta.offset != nil {
			b.offset, b.hasOffset = *ta.offset, true
		}
		if u, ok := rb.(unitBand); ok {
			b.unit = u.Unit()
		}

		so := common(bst, s)
		complexSrc := false
		if components != nil {
			c := components[i]
			so = append(so, ColorTableComponent(c))
			b.colorInterp = []ColorInterp{CIRed, CIGreen, CIBlue, CIAlpha}[c-1]
			if ta.expand == "gray" {
				b.colorInterp = CIGray
			}
			complexSrc = true
		}
		if p, ok := ta.scaleFor(i + 1); ok {
			smin, smax, dmin, dmax := 0.0, 0.0, 0.0, 255.0
			if len(p) >= 2 {
				smin, smax = p[0], p[1]
			} else if smin, smax, err = computeMinMax(rb); err != nil {
				return fail(err)
			}
			if len(p) == 4 {
				dmin, dmax = p[2], p[3]
			}
			if e, ok := ta.exponentFor(i + 1); ok {
				so = append(so, ExponentialScaling(smin, smax, dmin, dmax, e))
			} else {
				ratio := 0.0
				if smax != smin {
					ratio = (dmax - dmin) / (smax - smin)
				}
				so = append(so, LinearScaling(dmin-smin*ratio, ratio))
			}
			complexSrc = true
		}
		if ta.unscale {
			if sc, ok := rb.(scaledBand); ok {
				scale, offset := sc.ScaleOffset()
				so = append(so, LinearScaling(offset, scale))
			}
			complexSrc = true
		}
		if complexSrc {
			if nd, ok := rb.NoData(); ok && ta.expand == "" {
				so = append(so, SourceNoData(nd))
			}
			_, err = b.AddComplexSource(filename, s.n, so...)
		} else {
			_, err = b.AddSimpleSource(filename, s.n, so...)
		}
		if err != nil {
			return fail(err)
		}

		if ta.mask == "" && !s.mask && rb.MaskFlags() == 0 {
			mb, err := b.CreateMaskBand(0)
			if err != nil {
				return fail(err)
			}
			if _, err := mb.AddSimpleSource(filename, s.n, append(common(rb.MaskBand().Structure(), s), SourceMask())...); err != nil {
				return fail(err)
			}
		}
	}

	var maskSel *bandSel
	switch {
	case strings.EqualFold(ta.mask, "none"):
	case ta.mask == "" || strings.EqualFold(ta.mask, "auto"):
		if !sels[0].mask {
			if rb, err := in.RasterBand(sels[0].n); err == nil && rb.MaskFlags()&GMF_PER_DATASET != 0 {
				maskSel = &bandSel{n: sels[0].n, mask: true}
			}
		}
	default:
		s, err := parseBandSel(ta.mask)
		if err != nil {
			return fail(err)
		}
		if s.n > st.NBands {
			return fail(errorf(ErrInvalidInput, "mask band %d requested, %s has %d bands", s.n, src.Description(), st.NBands))
		}
		maskSel = &s
	}
	if maskSel != nil {
		rb, err := in.RasterBand(maskSel.n)
		if err != nil {
			return fail(err)
		}
		if maskSel.mask {
			rb = rb.MaskBand()
		}
		mb, err := ds.CreateMaskBand()
		if err != nil {
			return fail(err)
		}
		if _, err := mb.AddSimpleSource(filename, maskSel.n, common(rb.Structure(), *maskSel)...); err != nil {
			return fail(err)
		}
	}
	return ds, nil
}

// computeMinMax returns the range of the valid pixels of a band
func computeMinMax(b SourceBand) (float64, float64, error) {
	st := b.Structure()
	buf := make([]float64, st.SizeX*st.SizeY)
	if err := b.Read(0, 0, buf, st.SizeX, st.SizeY); err != nil {
		return 0, 0, err
	}
	nd, hasND := b.NoData()
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range buf {
		if math.IsNaN(v) || (hasND && v == nd) {
			continue
		}
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	if lo > hi {
		return 0, 0, nil
	}
	return lo, hi, nil
}
