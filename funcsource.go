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

import "math"

// ReadFunc computes the pixels of a xSize*ySize window of the virtual raster
// starting at xOff,yOff. out is packed, row major.
type ReadFunc func(xOff, yOff, xSize, ySize int, out []float64) error

// FuncSource is a source whose pixels are produced by a Go callback. It covers
// the whole raster, supports only reads at full resolution and is not persisted
// in VRT documents.
type FuncSource struct {
	fn        ReadFunc
	nodata    float64
	hasNoData bool
	owner     *Dataset
}

func (f *FuncSource) Kind() string {
	return FuncSourceKind
}

func (f *FuncSource) attach(ds *Dataset) {
	f.owner = ds
}

func (f *FuncSource) DstWindow() Rect {
	if f.owner == nil {
		return Rect{}
	}
	return Rect{0, 0, float64(f.owner.width), float64(f.owner.height)}
}

func (f *FuncSource) Intersects(w Rect) bool {
	return f.DstWindow().Intersects(w)
}

func (f *FuncSource) CoversFully(w Rect) bool {
	return f.DstWindow().Contains(w)
}

func (f *FuncSource) read(w ioWindow, l bufLayout, bo bandIOOpts) error {
	if w.isResampled() {
		return errorf(ErrUnsupported, "%s: resampled reads are not supported", FuncSourceKind)
	}
	data := make([]float64, w.xSize*w.ySize)
	if err := f.fn(w.xOff, w.yOff, w.xSize, w.ySize, data); err != nil {
		return errorf(ErrIOFailure, "%s: %w", FuncSourceKind, err)
	}
	for j := 0; j < w.ySize; j++ {
		for i := 0; i < w.xSize; i++ {
			v := data[j*w.xSize+i]
			if f.hasNoData && (v == f.nodata || (math.IsNaN(v) && math.IsNaN(f.nodata))) {
				continue
			}
			l.set(i, j, v)
		}
	}
	return nil
}

func (f *FuncSource) serialize(vrtDir string) *xmlNode {
	return nil
}

func (f *FuncSource) close() error {
	return nil
}
