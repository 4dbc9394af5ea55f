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

// Rect is a pixel rectangle with floating point coordinates
type Rect struct {
	XOff, YOff   float64
	XSize, YSize float64
}

// Intersects returns true if both rectangles share a non-empty area
func (r Rect) Intersects(o Rect) bool {
	return r.XOff < o.XOff+o.XSize && o.XOff < r.XOff+r.XSize &&
		r.YOff < o.YOff+o.YSize && o.YOff < r.YOff+r.YSize
}

// Contains returns true if o lies entirely within r
func (r Rect) Contains(o Rect) bool {
	return o.XOff >= r.XOff && o.YOff >= r.YOff &&
		o.XOff+o.XSize <= r.XOff+r.XSize && o.YOff+o.YSize <= r.YOff+r.YSize
}

func (r Rect) isValid() bool {
	for _, v := range []float64{r.XOff, r.YOff, r.XSize, r.YSize} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return r.XSize > 0 && r.YSize > 0
}

const windowEps = 1e-3

// ioWindow is the integer part of a read request: a raster window read into a
// bufW x bufH buffer
type ioWindow struct {
	xOff, yOff, xSize, ySize int
	bufW, bufH               int
}

func (w ioWindow) rect() Rect {
	return Rect{float64(w.xOff), float64(w.yOff), float64(w.xSize), float64(w.ySize)}
}

func (w ioWindow) pixels() int64 {
	return int64(w.xSize) * int64(w.ySize)
}

func (w ioWindow) isResampled() bool {
	return w.xSize != w.bufW || w.ySize != w.bufH
}

// srcDstWindow is the result of mapping a read request onto a source
type srcDstWindow struct {
	// requested source window, floating point and integer
	req                                  Rect
	reqXOff, reqYOff, reqXSize, reqYSize int
	// sub window of the caller buffer that receives the pixels
	outXOff, outYOff, outXSize, outYSize int
}

// computeSrcDstWindow maps the request w onto a source reading the src rectangle
// of a srcW x srcH band into the dst rectangle of the virtual raster. ok is false
// when the source does not contribute to the request.
func computeSrcDstWindow(w ioWindow, src, dst Rect, srcW, srcH int) (sd srcDstWindow, ok bool) {
	if !src.isValid() || !dst.isValid() {
		return sd, false
	}
	scaleX := src.XSize / dst.XSize
	scaleY := src.YSize / dst.YSize

	rx, ry := float64(w.xOff), float64(w.yOff)
	rw, rh := float64(w.xSize), float64(w.ySize)
	if rx >= dst.XOff+dst.XSize || ry >= dst.YOff+dst.YSize ||
		rx+rw <= dst.XOff || ry+rh <= dst.YOff {
		return sd, false
	}
	modX, modY := false, false
	if rx < dst.XOff {
		rw -= dst.XOff - rx
		rx = dst.XOff
		modX = true
	}
	if ry < dst.YOff {
		rh -= dst.YOff - ry
		ry = dst.YOff
		modY = true
	}
	if rx+rw > dst.XOff+dst.XSize {
		rw = dst.XOff + dst.XSize - rx
		modX = true
	}
	if ry+rh > dst.YOff+dst.YSize {
		rh = dst.YOff + dst.YSize - ry
		modY = true
	}

	req := Rect{
		XOff:  (rx-dst.XOff)*scaleX + src.XOff,
		YOff:  (ry-dst.YOff)*scaleY + src.YOff,
		XSize: rw * scaleX,
		YSize: rh * scaleY,
	}
	if !req.isValid() {
		return sd, false
	}
	if req.XOff < 0 {
		req.XSize += req.XOff
		req.XOff = 0
		modX = true
	}
	if req.YOff < 0 {
		req.YSize += req.YOff
		req.YOff = 0
		modY = true
	}
	if req.XOff+req.XSize > float64(srcW) {
		req.XSize = float64(srcW) - req.XOff
		modX = true
	}
	if req.YOff+req.YSize > float64(srcH) {
		req.YSize = float64(srcH) - req.YOff
		modY = true
	}
	if req.XSize <= 0 || req.YSize <= 0 {
		return sd, false
	}

	sd.reqXOff = int(math.Floor(req.XOff + windowEps))
	sd.reqYOff = int(math.Floor(req.YOff + windowEps))
	sd.reqXSize = int(math.Ceil(req.XOff+req.XSize-windowEps)) - sd.reqXOff
	sd.reqYSize = int(math.Ceil(req.YOff+req.YSize-windowEps)) - sd.reqYOff
	if sd.reqXSize < 1 {
		sd.reqXSize = 1
	}
	if sd.reqYSize < 1 {
		sd.reqYSize = 1
	}
	if sd.reqXOff+sd.reqXSize > srcW {
		sd.reqXSize = srcW - sd.reqXOff
	}
	if sd.reqYOff+sd.reqYSize > srcH {
		sd.reqYSize = srcH - sd.reqYOff
	}
	if sd.reqXOff >= srcW || sd.reqYOff >= srcH || sd.reqXSize <= 0 || sd.reqYSize <= 0 {
		return sd, false
	}

	sd.outXOff, sd.outYOff = 0, 0
	sd.outXSize, sd.outYSize = w.bufW, w.bufH
	winToBufX := float64(w.bufW) / float64(w.xSize)
	winToBufY := float64(w.bufH) / float64(w.ySize)
	if modX {
		ulx := (req.XOff-src.XOff)/scaleX + dst.XOff
		lrx := (req.XOff+req.XSize-src.XOff)/scaleX + dst.XOff
		ox := (ulx - float64(w.xOff)) * winToBufX
		rox := (lrx - float64(w.xOff)) * winToBufX
		if rox < ox {
			return sd, false
		}
		sd.outXOff = int(math.Floor(ox + windowEps))
		if sd.outXOff < 0 {
			sd.outXOff = 0
		}
		end := int(math.Ceil(rox - windowEps))
		if end > w.bufW {
			end = w.bufW
		}
		sd.outXSize = end - sd.outXOff
	}
	if modY {
		uly := (req.YOff-src.YOff)/scaleY + dst.YOff
		lry := (req.YOff+req.YSize-src.YOff)/scaleY + dst.YOff
		oy := (uly - float64(w.yOff)) * winToBufY
		roy := (lry - float64(w.yOff)) * winToBufY
		if roy < oy {
			return sd, false
		}
		sd.outYOff = int(math.Floor(oy + windowEps))
		if sd.outYOff < 0 {
			sd.outYOff = 0
		}
		end := int(math.Ceil(roy - windowEps))
		if end > w.bufH {
			end = w.bufH
		}
		sd.outYSize = end - sd.outYOff
	}
	if sd.outXSize < 1 || sd.outYSize < 1 {
		return sd, false
	}
	sd.req = req
	return sd, true
}

// overviewFor returns the index of the overview of a sizeX x sizeY band best
// suited to serve the request, and the request rescaled to that overview. idx is
// -1 when the full resolution band should be used.
func overviewFor(w ioWindow, sizeX, sizeY int, ovrSizes [][2]int) (int, ioWindow) {
	if len(ovrSizes) == 0 || (w.xSize <= w.bufW && w.ySize <= w.bufH) {
		return -1, w
	}
	desired := math.Min(float64(w.xSize)/float64(w.bufW), float64(w.ySize)/float64(w.bufH))
	best := -1
	bestRes := 1.0
	for i, s := range ovrSizes {
		if s[0] <= 0 || s[1] <= 0 {
			continue
		}
		res := float64(sizeX) / float64(s[0])
		if res > bestRes && res <= desired+0.1 {
			best, bestRes = i, res
		}
	}
	if best == -1 {
		return -1, w
	}
	s := ovrSizes[best]
	resX := float64(sizeX) / float64(s[0])
	resY := float64(sizeY) / float64(s[1])
	ow := ioWindow{
		xOff:  int(float64(w.xOff)/resX + 0.5),
		yOff:  int(float64(w.yOff)/resY + 0.5),
		xSize: int(float64(w.xSize)/resX + 0.5),
		ySize: int(float64(w.ySize)/resY + 0.5),
		bufW:  w.bufW,
		bufH:  w.bufH,
	}
	if ow.xSize < 1 {
		ow.xSize = 1
	}
	if ow.ySize < 1 {
		ow.ySize = 1
	}
	if ow.xOff+ow.xSize > s[0] {
		ow.xOff = s[0] - ow.xSize
		if ow.xOff < 0 {
			ow.xOff, ow.xSize = 0, s[0]
		}
	}
	if ow.yOff+ow.ySize > s[1] {
		ow.yOff = s[1] - ow.ySize
		if ow.yOff < 0 {
			ow.yOff, ow.ySize = 0, s[1]
		}
	}
	return best, ow
}

// pixelSpan is the half-open integer pixel extent [x0,x1)x[y0,y1)
type pixelSpan struct {
	x0, y0, x1, y1 int
}

// footprint returns the pixels touched by a floating point window
func footprint(r Rect) pixelSpan {
	return pixelSpan{
		x0: int(math.Floor(r.XOff + windowEps)),
		y0: int(math.Floor(r.YOff + windowEps)),
		x1: int(math.Ceil(r.XOff + r.XSize - windowEps)),
		y1: int(math.Ceil(r.YOff + r.YSize - windowEps)),
	}
}

func (p pixelSpan) clip(o pixelSpan) pixelSpan {
	return pixelSpan{
		x0: max(p.x0, o.x0),
		y0: max(p.y0, o.y0),
		x1: min(p.x1, o.x1),
		y1: min(p.y1, o.y1),
	}
}

func (p pixelSpan) overlaps(o pixelSpan) bool {
	return p.x0 < o.x1 && o.x0 < p.x1 && p.y0 < o.y1 && o.y0 < p.y1
}
