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

// Bounds represents an envelope in the order minx,miny,maxx,maxy
type Bounds [4]float64

func (b Bounds) MinX() float64 {
	return b[0]
}

func (b Bounds) MinY() float64 {
	return b[1]
}

func (b Bounds) MaxX() float64 {
	return b[2]
}

func (b Bounds) MaxY() float64 {
	return b[3]
}

// Union returns the union of these bounds with other ones
func (b Bounds) Union(other Bounds) Bounds {
	return [4]float64{
		math.Min(b.MinX(), other.MinX()),
		math.Min(b.MinY(), other.MinY()),
		math.Max(b.MaxX(), other.MaxX()),
		math.Max(b.MaxY(), other.MaxY()),
	}
}

// geoBounds returns the envelope of a sizeX,sizeY raster under geotransform gt
func geoBounds(gt [6]float64, sizeX, sizeY int) Bounds {
	corners := [4][2]float64{
		{0, 0}, {float64(sizeX), 0}, {0, float64(sizeY)}, {float64(sizeX), float64(sizeY)},
	}
	b := Bounds{math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)}
	for _, c := range corners {
		x := gt[0] + c[0]*gt[1] + c[1]*gt[2]
		y := gt[3] + c[0]*gt[4] + c[1]*gt[5]
		b = b.Union(Bounds{x, y, x, y})
	}
	return b
}

// invGeoTransform inverts an affine geotransform. ok is false if gt is degenerate.
func invGeoTransform(gt [6]float64) (inv [6]float64, ok bool) {
	det := gt[1]*gt[5] - gt[2]*gt[4]
	if math.Abs(det) < 1e-15 {
		return inv, false
	}
	invDet := 1 / det
	inv[1] = gt[5] * invDet
	inv[4] = -gt[4] * invDet
	inv[2] = -gt[2] * invDet
	inv[5] = gt[1] * invDet
	inv[0] = (gt[2]*gt[3] - gt[0]*gt[5]) * invDet
	inv[3] = (-gt[1]*gt[3] + gt[0]*gt[4]) * invDet
	return inv, true
}

func applyGeoTransform(gt [6]float64, px, py float64) (float64, float64) {
	return gt[0] + px*gt[1] + py*gt[2], gt[3] + px*gt[4] + py*gt[5]
}
