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
	"encoding/binary"
	"errors"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
)

// rawBand reads its pixels directly from a binary file
type rawBand struct {
	filename    string
	relative    bool
	imageOffset int64
	pixelOffset int64
	lineOffset  int64
	msb         bool

	mu   sync.Mutex
	file randomAccessFile
}

func (r *rawBand) subclass() string {
	return RawBand
}

// rawLayout reads the raw file description from a lookup function, as found in
// band creation options or in the children of a band element
func rawLayout(get func(key string) (string, bool), dtype DataType, width int) (*rawBand, error) {
	if dtype.IsComplex() {
		return nil, errorf(ErrUnsupported, "%s: complex data type %s is not supported", RawBand, dtype)
	}
	if dtype.Size() == 0 {
		return nil, errorf(ErrInvalidInput, "%s: invalid data type", RawBand)
	}
	fn, ok := get("SourceFilename")
	if !ok || fn == "" {
		return nil, errorf(ErrInvalidInput, "%s: missing SourceFilename", RawBand)
	}
	r := &rawBand{filename: fn}
	if v, ok := get("relativeToVRT"); ok {
		r.relative = isTrue(v)
	}
	parse := func(key string, def int64) (int64, error) {
		v, ok := get(key)
		if !ok || strings.TrimSpace(v) == "" {
			return def, nil
		}
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, errorf(ErrInvalidInput, "%s: invalid %s %q", RawBand, key, v)
		}
		return n, nil
	}
	var err error
	if r.imageOffset, err = parse("ImageOffset", 0); err != nil {
		return nil, err
	}
	if r.imageOffset < 0 {
		return nil, errorf(ErrInvalidInput, "%s: negative ImageOffset", RawBand)
	}
	if r.pixelOffset, err = parse("PixelOffset", int64(dtype.Size())); err != nil {
		return nil, err
	}
	defLine, ok := mulInt64(r.pixelOffset, int64(width))
	if !ok {
		return nil, errorf(ErrCapacity, "%s: line offset overflow", RawBand)
	}
	if r.lineOffset, err = parse("LineOffset", defLine); err != nil {
		return nil, err
	}
	if bo, ok := get("ByteOrder"); ok {
		switch strings.ToUpper(strings.TrimSpace(bo)) {
		case "LSB", "":
		case "MSB":
			r.msb = true
		case "VAX":
			return nil, errorf(ErrUnsupported, "%s: VAX byte order is not supported", RawBand)
		default:
			return nil, errorf(ErrInvalidInput, "%s: invalid ByteOrder %q", RawBand, bo)
		}
	}
	return r, nil
}

func parseRawBand(n *xmlNode, dtype DataType, width int) (*rawBand, error) {
	get := func(key string) (string, bool) {
		if key == "relativeToVRT" {
			fn := n.child("SourceFilename")
			if fn == nil {
				return "", false
			}
			if v, ok := fn.attr("relativeToVRT"); ok {
				return v, true
			}
			return fn.attr("relativetoVRT")
		}
		return n.childText(key)
	}
	return rawLayout(get, dtype, width)
}

func (r *rawBand) serialize(b *Band, n *xmlNode, vrtDir string) {
	n.addText("SourceFilename", r.filename).setAttr("relativeToVRT", boolAttr(r.relative))
	n.addText("ImageOffset", strconv.FormatInt(r.imageOffset, 10))
	n.addText("PixelOffset", strconv.FormatInt(r.pixelOffset, 10))
	n.addText("LineOffset", strconv.FormatInt(r.lineOffset, 10))
	if r.msb {
		n.addText("ByteOrder", "MSB")
	} else {
		n.addText("ByteOrder", "LSB")
	}
}

func (r *rawBand) open(b *Band) (randomAccessFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file != nil {
		return r.file, nil
	}
	f, err := openRandomAccess(b.ds.fs, b.ds.resolvePath(r.filename, r.relative))
	if err != nil {
		return nil, err
	}
	r.file = f
	return f, nil
}

func (r *rawBand) close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// mulInt64 returns a*b, and false on overflow
func mulInt64(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	c := a * b
	if c/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, false
	}
	return c, true
}

// addInt64 returns a+b, and false on overflow
func addInt64(a, b int64) (int64, bool) {
	c := a + b
	if (b > 0 && c < a) || (b < 0 && c > a) {
		return 0, false
	}
	return c, true
}

// pixelPos returns the file offset of pixel x,y
func (r *rawBand) pixelPos(x, y int) (int64, error) {
	lo, ok1 := mulInt64(int64(y), r.lineOffset)
	po, ok2 := mulInt64(int64(x), r.pixelOffset)
	off, ok3 := addInt64(r.imageOffset, lo)
	off, ok4 := addInt64(off, po)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return 0, errorf(ErrCapacity, "%s: offset of pixel %d,%d overflows", RawBand, x, y)
	}
	if off < 0 {
		return 0, errorf(ErrInvalidInput, "%s: negative offset for pixel %d,%d", RawBand, x, y)
	}
	return off, nil
}

// decode returns the value of the pixel stored in p
func (r *rawBand) decode(dtype DataType, p []byte) float64 {
	var order binary.ByteOrder = binary.LittleEndian
	if r.msb {
		order = binary.BigEndian
	}
	switch dtype {
	case Byte:
		return float64(p[0])
	case Int8:
		return float64(int8(p[0]))
	case UInt16:
		return float64(order.Uint16(p))
	case Int16:
		return float64(int16(order.Uint16(p)))
	case UInt32:
		return float64(order.Uint32(p))
	case Int32:
		return float64(int32(order.Uint32(p)))
	case UInt64:
		return float64(order.Uint64(p))
	case Int64:
		return float64(int64(order.Uint64(p)))
	case Float32:
		return float64(math.Float32frombits(order.Uint32(p)))
	case Float64:
		return math.Float64frombits(order.Uint64(p))
	}
	return 0
}

// readRows decodes the pixels x0..x1-1 of rows y0..y1-1 into a packed raster.
// Bytes beyond the end of the file read as zero.
func (r *rawBand) readRows(f randomAccessFile, dtype DataType, x0, y0, x1, y1 int) ([]float64, error) {
	w := x1 - x0
	esz := int64(dtype.Size())
	out := make([]float64, w*(y1-y0))
	for y := y0; y < y1; y++ {
		first, err := r.pixelPos(x0, y)
		if err != nil {
			return nil, err
		}
		last, err := r.pixelPos(x1-1, y)
		if err != nil {
			return nil, err
		}
		start := first
		if last < start {
			start = last
		}
		span := first - last
		if span < 0 {
			span = -span
		}
		span += esz
		if span > math.MaxInt32 {
			return nil, errorf(ErrCapacity, "%s: line span of %d bytes is too large", RawBand, span)
		}
		buf := make([]byte, span)
		if _, err := f.ReadAt(buf, start); err != nil && !errors.Is(err, io.EOF) {
			return nil, errorf(ErrIOFailure, "%s: read %s: %w", RawBand, r.filename, err)
		}
		row := out[(y-y0)*w : (y-y0+1)*w]
		for i := range row {
			p := first + int64(i)*r.pixelOffset - start
			row[i] = r.decode(dtype, buf[p:p+esz])
		}
	}
	return out, nil
}

func (r *rawBand) read(b *Band, w ioWindow, l bufLayout, bo bandIOOpts) error {
	if bo.skipSources {
		l.fill(b.dtype.clamp(b.initValue()))
		return nil
	}
	f, err := r.open(b)
	if err != nil {
		return err
	}
	// interpolating kernels sample around the window
	margin := 0
	if w.isResampled() {
		rx := float64(w.xSize) / float64(w.bufW)
		ry := float64(w.ySize) / float64(w.bufH)
		margin = int(math.Ceil(3*math.Max(rx, ry))) + 1
	}
	x0, y0 := maxInt(0, w.xOff-margin), maxInt(0, w.yOff-margin)
	x1 := minInt(b.ds.width, w.xOff+w.xSize+margin)
	y1 := minInt(b.ds.height, w.yOff+w.ySize+margin)
	data, err := r.readRows(f, b.dtype, x0, y0, x1, y1)
	if err != nil {
		return err
	}
	rw := x1 - x0
	get := func(x, y int) float64 {
		x = clampInt(x, x0, x1-1)
		y = clampInt(y, y0, y1-1)
		return data[(y-y0)*rw+x-x0]
	}
	alg := Nearest
	if bo.resamplingSet {
		alg = bo.resampling
	}
	nd, hasND := b.NoData()
	out := resampleWindow(get, b.ds.width, b.ds.height, w, alg, nd, hasND)
	l.putRaster(0, 0, out, w.bufW, w.bufH)
	return nil
}
