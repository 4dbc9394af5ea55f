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

type number interface {
	~uint8 | ~int8 | ~uint16 | ~int16 | ~uint32 | ~int32 | ~uint64 | ~int64 | ~float32 | ~float64
}

// accessor reads and writes the elements of a typed slice as float64 values,
// rounding and clamping on write
type accessor interface {
	dataType() DataType
	len() int
	get(i int) float64
	set(i int, v float64)
}

type sliceAccessor[T number] struct {
	s  []T
	dt DataType
}

func (a sliceAccessor[T]) dataType() DataType {
	return a.dt
}
func (a sliceAccessor[T]) len() int {
	return len(a.s)
}
func (a sliceAccessor[T]) get(i int) float64 {
	return float64(a.s[i])
}
func (a sliceAccessor[T]) set(i int, v float64) {
	a.s[i] = T(a.dt.clamp(v))
}

func bufferType(buffer interface{}) DataType {
	switch buffer.(type) {
	case []byte:
		return Byte
	case []int8:
		return Int8
	case []int16:
		return Int16
	case []uint16:
		return UInt16
	case []int32:
		return Int32
	case []uint32:
		return UInt32
	case []int64:
		return Int64
	case []uint64:
		return UInt64
	case []float32:
		return Float32
	case []float64:
		return Float64
	case []complex64:
		return CFloat32
	case []complex128:
		return CFloat64
	default:
		return Unknown
	}
}

func newAccessor(buffer interface{}) (accessor, error) {
	switch b := buffer.(type) {
	case []byte:
		return sliceAccessor[byte]{b, Byte}, nil
	case []int8:
		return sliceAccessor[int8]{b, Int8}, nil
	case []int16:
		return sliceAccessor[int16]{b, Int16}, nil
	case []uint16:
		return sliceAccessor[uint16]{b, UInt16}, nil
	case []int32:
		return sliceAccessor[int32]{b, Int32}, nil
	case []uint32:
		return sliceAccessor[uint32]{b, UInt32}, nil
	case []int64:
		return sliceAccessor[int64]{b, Int64}, nil
	case []uint64:
		return sliceAccessor[uint64]{b, UInt64}, nil
	case []float32:
		return sliceAccessor[float32]{b, Float32}, nil
	case []float64:
		return sliceAccessor[float64]{b, Float64}, nil
	case []complex64, []complex128:
		return nil, errorf(ErrUnsupported, "complex buffers are not supported")
	default:
		return nil, errorf(ErrInvalidInput, "unsupported buffer type %T", buffer)
	}
}

// bufLayout addresses a width x height window inside a typed buffer. Offsets
// and strides are expressed in elements.
type bufLayout struct {
	acc           accessor
	off           int
	pixel, line   int
	width, height int
}

// newLayout validates a caller buffer with byte spacings. Zero spacings mean
// a packed single band buffer.
func newLayout(buffer interface{}, width, height, pixelSpacing, lineSpacing int) (bufLayout, error) {
	acc, err := newAccessor(buffer)
	if err != nil {
		return bufLayout{}, err
	}
	esz := acc.dataType().Size()
	if pixelSpacing == 0 {
		pixelSpacing = esz
	}
	if lineSpacing == 0 {
		lineSpacing = pixelSpacing * width
	}
	if pixelSpacing%esz != 0 || lineSpacing%esz != 0 {
		return bufLayout{}, errorf(ErrInvalidInput, "spacings must be multiples of the %d byte buffer element size", esz)
	}
	l := bufLayout{
		acc:    acc,
		pixel:  pixelSpacing / esz,
		line:   lineSpacing / esz,
		width:  width,
		height: height,
	}
	return l, l.check()
}

func (l bufLayout) check() error {
	if l.width <= 0 || l.height <= 0 {
		return errorf(ErrInvalidInput, "invalid buffer size %dx%d", l.width, l.height)
	}
	if l.pixel <= 0 || l.line <= 0 {
		return errorf(ErrInvalidInput, "invalid buffer spacing")
	}
	last := int64(l.off) + int64(l.height-1)*int64(l.line) + int64(l.width-1)*int64(l.pixel)
	if l.off < 0 || last >= int64(l.acc.len()) {
		return errorf(ErrInvalidInput, "buffer too small: need %d elements, have %d", last+1, l.acc.len())
	}
	return nil
}

func (l bufLayout) index(x, y int) int {
	return l.off + y*l.line + x*l.pixel
}

// sub returns the layout of a window of l
func (l bufLayout) sub(x, y, w, h int) bufLayout {
	s := l
	s.off = l.index(x, y)
	s.width, s.height = w, h
	return s
}

func (l bufLayout) get(x, y int) float64 {
	return l.acc.get(l.index(x, y))
}

func (l bufLayout) set(x, y int, v float64) {
	l.acc.set(l.index(x, y), v)
}

func (l bufLayout) fill(v float64) {
	for y := 0; y < l.height; y++ {
		for x := 0; x < l.width; x++ {
			l.set(x, y, v)
		}
	}
}

// putRaster writes the w x h float64 raster src at x,y
func (l bufLayout) putRaster(x, y int, src []float64, w, h int) {
	for j := 0; j < h; j++ {
		for i := 0; i < w; i++ {
			l.set(x+i, y+j, src[j*w+i])
		}
	}
}

// getRaster reads the whole window as a packed float64 raster
func (l bufLayout) getRaster() []float64 {
	ret := make([]float64, l.width*l.height)
	for j := 0; j < l.height; j++ {
		for i := 0; i < l.width; i++ {
			ret[j*l.width+i] = l.get(i, j)
		}
	}
	return ret
}

// float64Layout wraps a packed float64 raster
func float64Layout(data []float64, w, h int) bufLayout {
	return bufLayout{
		acc:    sliceAccessor[float64]{data, Float64},
		pixel:  1,
		line:   w,
		width:  w,
		height: h,
	}
}

// datasetLayouts computes the per-band layouts of a dataset read, honoring the
// band interleaving and spacing options. Spacings are in bytes.
func datasetLayouts(buffer interface{}, nBands, width, height int, interleave bool, pixelSpacing, lineSpacing, bandSpacing int) ([]bufLayout, error) {
	acc, err := newAccessor(buffer)
	if err != nil {
		return nil, err
	}
	esz := acc.dataType().Size()
	if interleave {
		if pixelSpacing == 0 {
			pixelSpacing = esz
		}
		if lineSpacing == 0 {
			lineSpacing = pixelSpacing * width
		}
		if bandSpacing == 0 {
			bandSpacing = lineSpacing * height
		}
	} else {
		if pixelSpacing == 0 {
			pixelSpacing = esz * nBands
		}
		if lineSpacing == 0 {
			lineSpacing = pixelSpacing * width
		}
		if bandSpacing == 0 {
			bandSpacing = esz
		}
	}
	if pixelSpacing%esz != 0 || lineSpacing%esz != 0 || bandSpacing%esz != 0 {
		return nil, errorf(ErrInvalidInput, "spacings must be multiples of the %d byte buffer element size", esz)
	}
	ret := make([]bufLayout, nBands)
	for b := 0; b < nBands; b++ {
		ret[b] = bufLayout{
			acc:    acc,
			off:    b * bandSpacing / esz,
			pixel:  pixelSpacing / esz,
			line:   lineSpacing / esz,
			width:  width,
			height: height,
		}
		if err := ret[b].check(); err != nil {
			return nil, err
		}
	}
	return ret, nil
}
