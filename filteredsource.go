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

// KernelFilteredSource is a ComplexSource whose values are convolved with a
// square kernel. Only reads at the source resolution are supported.
type KernelFilteredSource struct {
	*ComplexSource
	size       int
	coefs      []float64
	normalized bool
}

func newKernelFilteredSource(filename string, srcBand int, size int, coefs []float64, normalized bool, so sourceOpts) (*KernelFilteredSource, error) {
	if size < 1 || size%2 == 0 {
		return nil, errorf(ErrInvalidInput, "kernel size must be odd, got %d", size)
	}
	if len(coefs) != size*size {
		return nil, errorf(ErrInvalidInput, "kernel of size %d needs %d coefficients, got %d", size, size*size, len(coefs))
	}
	cs, err := newComplexSource(KernelFilteredSourceKind, filename, srcBand, so)
	if err != nil {
		return nil, err
	}
	return &KernelFilteredSource{
		ComplexSource: cs,
		size:          size,
		coefs:         append([]float64(nil), coefs...),
		normalized:    normalized,
	}, nil
}

func (k *KernelFilteredSource) read(w ioWindow, l bufLayout, bo bandIOOpts) error {
	if !k.Intersects(w.rect()) {
		return nil
	}
	b, err := k.resolve()
	if err != nil {
		return err
	}
	st := b.Structure()
	src, err := k.SrcWindow()
	if err != nil {
		return err
	}
	sd, ok := computeSrcDstWindow(w, src, k.DstWindow(), st.SizeX, st.SizeY)
	if !ok {
		return nil
	}
	if sd.reqXSize != sd.outXSize || sd.reqYSize != sd.outYSize {
		return errorf(ErrUnsupported, "%s: resampled reads are not supported", k.kind)
	}
	r := k.size / 2
	x0, y0 := maxInt(sd.reqXOff-r, 0), maxInt(sd.reqYOff-r, 0)
	x1, y1 := minInt(sd.reqXOff+sd.reqXSize+r, st.SizeX), minInt(sd.reqYOff+sd.reqYSize+r, st.SizeY)
	ew, eh := x1-x0, y1-y0
	ext := make([]float64, ew*eh)
	esd := srcDstWindow{reqXOff: x0, reqYOff: y0, reqXSize: ew, reqYSize: eh, outXSize: ew, outYSize: eh}
	if err := b.Read(x0, y0, ext, ew, eh, k.readOpts(esd, bo)...); err != nil {
		return asKind(ErrIOFailure, err)
	}
	var mask []float64
	if k.useMask {
		if mask, err = k.fetchMask(esd, bo); err != nil {
			return err
		}
	}
	var ct ColorTable
	if k.ctComponent > 0 {
		ct = b.ColorTable()
	}
	valid := make([]bool, len(ext))
	for i, v := range ext {
		if mask != nil && mask[i] == 0 {
			continue
		}
		if pv, ok := k.process(v, ct); ok {
			ext[i], valid[i] = pv, true
		}
	}
	out := l.sub(sd.outXOff, sd.outYOff, sd.outXSize, sd.outYSize)
	for j := 0; j < sd.outYSize; j++ {
		for i := 0; i < sd.outXSize; i++ {
			cx, cy := sd.reqXOff+i-x0, sd.reqYOff+j-y0
			if !valid[cy*ew+cx] {
				continue
			}
			sum, wsum := 0.0, 0.0
			for kj := 0; kj < k.size; kj++ {
				yy := clampInt(cy+kj-r, 0, eh-1)
				for ki := 0; ki < k.size; ki++ {
					xx := clampInt(cx+ki-r, 0, ew-1)
					idx := yy*ew + xx
					if !valid[idx] {
						continue
					}
					c := k.coefs[kj*k.size+ki]
					sum += ext[idx] * c
					wsum += c
				}
			}
			if k.normalized {
				if math.Abs(wsum) < 1e-12 {
					continue
				}
				sum /= wsum
			}
			out.set(i, j, sum)
		}
	}
	return nil
}

func (k *KernelFilteredSource) serialize(vrtDir string) *xmlNode {
	n := newNode(k.kind)
	k.serializeCommon(n)
	k.serializeProcessing(n)
	kn := n.add("Kernel")
	kn.setAttr("normalized", boolAttr(k.normalized))
	kn.addText("Size", strconv.Itoa(k.size))
	coefs := make([]string, len(k.coefs))
	for i, c := range k.coefs {
		coefs[i] = fmtFloat(c)
	}
	kn.addText("Coefs", strings.Join(coefs, " "))
	return n
}

func parseKernelFilteredSource(n *xmlNode) (*KernelFilteredSource, error) {
	fn, sb, so, err := parseSimpleSourceOpts(n)
	if err != nil {
		return nil, err
	}
	if err := parseComplexOpts(n, &so); err != nil {
		return nil, err
	}
	kn := n.child("Kernel")
	if kn == nil {
		return nil, errorf(ErrInvalidInput, "%s: missing Kernel", n.name())
	}
	st, _ := kn.childText("Size")
	size, err := parseIntOption("Kernel Size", st)
	if err != nil {
		return nil, err
	}
	ct, _ := kn.childText("Coefs")
	var coefs []float64
	for _, f := range strings.Fields(ct) {
		c, err := parseFloatText(f, "Kernel Coefs")
		if err != nil {
			return nil, err
		}
		coefs = append(coefs, c)
	}
	return newKernelFilteredSource(fn, sb, size, coefs, isTrue(kn.attrOr("normalized", "0")), so)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
