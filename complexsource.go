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
	"strconv"
	"strings"
)

type linearScaling struct {
	offset, ratio float64
}

type exponentialScaling struct {
	srcMin, srcMax float64
	dstMin, dstMax float64
	exponent       float64
}

type nodataSrcOpt struct {
	v float64
}

func (o nodataSrcOpt) setSourceOpt(so *sourceOpts) {
	v := o.v
	so.nodata = &v
}

// SourceNoData makes the source skip pixels equal to v, leaving the underlying
// pixels of the virtual raster untouched
func SourceNoData(v float64) SourceOption {
	return nodataSrcOpt{v}
}

type linearScalingOpt struct {
	linearScaling
}

func (o linearScalingOpt) setSourceOpt(so *sourceOpts) {
	ls := o.linearScaling
	so.scaling = &ls
	so.expScaling = nil
}

// LinearScaling transforms source values with v*ratio+offset
func LinearScaling(offset, ratio float64) SourceOption {
	return linearScalingOpt{linearScaling{offset, ratio}}
}

type expScalingOpt struct {
	exponentialScaling
}

func (o expScalingOpt) setSourceOpt(so *sourceOpts) {
	es := o.exponentialScaling
	so.expScaling = &es
	so.scaling = nil
}

// ExponentialScaling maps source values from [srcMin,srcMax] to [dstMin,dstMax]
// with a power law. Values outside the source range are clamped.
func ExponentialScaling(srcMin, srcMax, dstMin, dstMax, exponent float64) SourceOption {
	return expScalingOpt{exponentialScaling{srcMin, srcMax, dstMin, dstMax, exponent}}
}

type lutOpt struct {
	lut [][2]float64
}

func (o lutOpt) setSourceOpt(so *sourceOpts) {
	so.lut = o.lut
}

// LUT remaps source values through a piecewise linear lookup table. in must be
// increasing.
func LUT(in, out []float64) SourceOption {
	n := len(in)
	if len(out) < n {
		n = len(out)
	}
	lut := make([][2]float64, n)
	for i := 0; i < n; i++ {
		lut[i] = [2]float64{in[i], out[i]}
	}
	return lutOpt{lut}
}

type ctComponentOpt struct {
	c int
}

func (o ctComponentOpt) setSourceOpt(so *sourceOpts) {
	so.ctComponent = o.c
}

// ColorTableComponent expands source values through the color table of the
// source band, keeping component c (1 to 4)
func ColorTableComponent(c int) SourceOption {
	return ctComponentOpt{c}
}

type useMaskOpt struct{}

func (useMaskOpt) setSourceOpt(so *sourceOpts) {
	so.useMask = true
}

// UseMaskBand makes the source skip pixels masked out by the mask of its source band
func UseMaskBand() SourceOption {
	return useMaskOpt{}
}

// ComplexSource is a SimpleSource whose values are post-processed: nodata
// skipping, mask skipping, color table expansion, scaling and lookup table, in
// that order.
type ComplexSource struct {
	*SimpleSource
	nodata      *float64
	scaling     *linearScaling
	expScaling  *exponentialScaling
	lut         [][2]float64
	ctComponent int
	useMask     bool
}

func newComplexSource(kind, filename string, srcBand int, so sourceOpts) (*ComplexSource, error) {
	ss, err := newSimpleSource(kind, filename, srcBand, so)
	if err != nil {
		return nil, err
	}
	if so.ctComponent < 0 || so.ctComponent > 4 {
		return nil, errorf(ErrInvalidInput, "invalid ColorTableComponent %d", so.ctComponent)
	}
	for i := 1; i < len(so.lut); i++ {
		if so.lut[i][0] < so.lut[i-1][0] {
			return nil, errorf(ErrInvalidInput, "LUT input values must be increasing")
		}
	}
	if es := so.expScaling; es != nil && (es.srcMax == es.srcMin || es.exponent <= 0) {
		return nil, errorf(ErrInvalidInput, "invalid exponential scaling")
	}
	return &ComplexSource{
		SimpleSource: ss,
		nodata:       so.nodata,
		scaling:      so.scaling,
		expScaling:   so.expScaling,
		lut:          so.lut,
		ctComponent:  so.ctComponent,
		useMask:      so.useMask,
	}, nil
}

// copyOpts sets the value processing of the source into so
func (c *ComplexSource) copyOpts(so *sourceOpts) {
	so.nodata = c.nodata
	so.scaling = c.scaling
	so.expScaling = c.expScaling
	so.lut = c.lut
	so.ctComponent = c.ctComponent
	so.useMask = c.useMask
}

// NoData returns the value skipped by the source, if any
func (c *ComplexSource) NoData() (float64, bool) {
	if c.nodata == nil {
		return 0, false
	}
	return *c.nodata, true
}

func (c *ComplexSource) isNoData(v float64) bool {
	if c.nodata == nil {
		return false
	}
	nd := *c.nodata
	if math.IsNaN(nd) {
		return math.IsNaN(v)
	}
	return v == nd
}

// process applies the value transformations to v. ok is false when the pixel
// must not be written.
func (c *ComplexSource) process(v float64, ct ColorTable) (float64, bool) {
	if c.isNoData(v) {
		return 0, false
	}
	if c.ctComponent > 0 {
		cv, ok := ct.component(v, c.ctComponent)
		if !ok {
			cv = 0
		}
		v = cv
	}
	if c.scaling != nil {
		v = v*c.scaling.ratio + c.scaling.offset
	} else if es := c.expScaling; es != nil {
		p := (v - es.srcMin) / (es.srcMax - es.srcMin)
		if p < 0 {
			p = 0
		} else if p > 1 {
			p = 1
		}
		v = (es.dstMax-es.dstMin)*math.Pow(p, es.exponent) + es.dstMin
	}
	if len(c.lut) > 0 {
		v = lookup(c.lut, v)
	}
	return v, true
}

func lookup(lut [][2]float64, v float64) float64 {
	if math.IsNaN(v) {
		return v
	}
	n := len(lut)
	if v <= lut[0][0] {
		return lut[0][1]
	}
	if v >= lut[n-1][0] {
		return lut[n-1][1]
	}
	for i := 1; i < n; i++ {
		if v <= lut[i][0] {
			x0, x1 := lut[i-1][0], lut[i][0]
			y0, y1 := lut[i-1][1], lut[i][1]
			if x1 == x0 {
				return y1
			}
			return y0 + (v-x0)*(y1-y0)/(x1-x0)
		}
	}
	return lut[n-1][1]
}

// fetchMask reads the mask of the source band over the same window as fetch
func (c *ComplexSource) fetchMask(sd srcDstWindow, bo bandIOOpts) ([]float64, error) {
	b, err := c.resolve()
	if err != nil {
		return nil, err
	}
	m := make([]float64, sd.outXSize*sd.outYSize)
	opts := c.readOpts(sd, bo)
	opts = append(opts, Resampling(Nearest))
	if err := b.MaskBand().Read(sd.reqXOff, sd.reqYOff, m, sd.outXSize, sd.outYSize, opts...); err != nil {
		return nil, asKind(ErrIOFailure, err)
	}
	return m, nil
}

func (c *ComplexSource) read(w ioWindow, l bufLayout, bo bandIOOpts) error {
	sd, data, ok, err := c.fetch(w, bo)
	if err != nil || !ok {
		return err
	}
	var mask []float64
	if c.useMask {
		if mask, err = c.fetchMask(sd, bo); err != nil {
			return err
		}
	}
	var ct ColorTable
	if c.ctComponent > 0 {
		ct = c.band.ColorTable()
	}
	out := l.sub(sd.outXOff, sd.outYOff, sd.outXSize, sd.outYSize)
	for j := 0; j < sd.outYSize; j++ {
		for i := 0; i < sd.outXSize; i++ {
			idx := j*sd.outXSize + i
			if mask != nil && mask[idx] == 0 {
				continue
			}
			if v, ok := c.process(data[idx], ct); ok {
				out.set(i, j, v)
			}
		}
	}
	return nil
}

func (c *ComplexSource) serializeProcessing(n *xmlNode) {
	if c.nodata != nil {
		n.addText("NODATA", fmtFloat(*c.nodata))
	}
	if c.useMask {
		n.addText("UseMaskBand", "true")
	}
	if c.scaling != nil {
		n.addText("ScaleOffset", fmtFloat(c.scaling.offset))
		n.addText("ScaleRatio", fmtFloat(c.scaling.ratio))
	} else if es := c.expScaling; es != nil {
		n.addText("Exponent", fmtFloat(es.exponent))
		n.addText("SrcMin", fmtFloat(es.srcMin))
		n.addText("SrcMax", fmtFloat(es.srcMax))
		n.addText("DstMin", fmtFloat(es.dstMin))
		n.addText("DstMax", fmtFloat(es.dstMax))
	}
	if len(c.lut) > 0 {
		parts := make([]string, len(c.lut))
		for i, e := range c.lut {
			parts[i] = fmtFloat(e[0]) + ":" + fmtFloat(e[1])
		}
		n.addText("LUT", strings.Join(parts, ","))
	}
	if c.ctComponent > 0 {
		n.addText("ColorTableComponent", strconv.Itoa(c.ctComponent))
	}
}

func (c *ComplexSource) serialize(vrtDir string) *xmlNode {
	n := newNode(c.kind)
	c.serializeCommon(n)
	c.serializeProcessing(n)
	return n
}

// parseComplexOpts reads the processing children of a complex source element into so
func parseComplexOpts(n *xmlNode, so *sourceOpts) error {
	if v, ok := n.childText("NODATA"); ok {
		f, err := parseFloatText(v, "NODATA")
		if err != nil {
			return err
		}
		so.nodata = &f
	}
	if v, ok := n.childText("UseMaskBand"); ok {
		so.useMask = isTrue(v)
	}
	_, hasOff := n.childText("ScaleOffset")
	_, hasRatio := n.childText("ScaleRatio")
	if hasOff || hasRatio {
		ls := linearScaling{ratio: 1}
		var err error
		if v, ok := n.childText("ScaleOffset"); ok {
			if ls.offset, err = parseFloatText(v, "ScaleOffset"); err != nil {
				return err
			}
		}
		if v, ok := n.childText("ScaleRatio"); ok {
			if ls.ratio, err = parseFloatText(v, "ScaleRatio"); err != nil {
				return err
			}
		}
		so.scaling = &ls
	} else if v, ok := n.childText("Exponent"); ok {
		es := exponentialScaling{}
		var err error
		if es.exponent, err = parseFloatText(v, "Exponent"); err != nil {
			return err
		}
		for _, f := range []struct {
			name string
			v    *float64
		}{{"SrcMin", &es.srcMin}, {"SrcMax", &es.srcMax}, {"DstMin", &es.dstMin}, {"DstMax", &es.dstMax}} {
			t, ok := n.childText(f.name)
			if !ok {
				return errorf(ErrInvalidInput, "%s: Exponent requires %s", n.name(), f.name)
			}
			if *f.v, err = parseFloatText(t, f.name); err != nil {
				return err
			}
		}
		so.expScaling = &es
	}
	if v, ok := n.childText("LUT"); ok && v != "" {
		for _, pair := range strings.Split(v, ",") {
			in, out, ok := strings.Cut(strings.TrimSpace(pair), ":")
			if !ok {
				return errorf(ErrInvalidInput, "invalid LUT entry %q", pair)
			}
			fi, err := parseFloatText(in, "LUT")
			if err != nil {
				return err
			}
			fo, err := parseFloatText(out, "LUT")
			if err != nil {
				return err
			}
			so.lut = append(so.lut, [2]float64{fi, fo})
		}
	}
	if v, ok := n.childText("ColorTableComponent"); ok {
		c, err := parseIntOption("ColorTableComponent", v)
		if err != nil {
			return err
		}
		so.ctComponent = c
	}
	return nil
}

func parseComplexSource(n *xmlNode) (*ComplexSource, error) {
	fn, sb, so, err := parseSimpleSourceOpts(n)
	if err != nil {
		return nil, err
	}
	if err := parseComplexOpts(n, &so); err != nil {
		return nil, err
	}
	return newComplexSource(ComplexSourceKind, fn, sb, so)
}
