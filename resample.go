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
	"sort"
)

// pixelGetter returns the value at x,y of a source raster
type pixelGetter func(x, y int) float64

// resampleWindow reads window w of a srcW x srcH raster into a packed bufW x bufH
// float64 raster. Pixels equal to nodata are ignored by the interpolating
// algorithms.
func resampleWindow(get pixelGetter, srcW, srcH int, w ioWindow, alg ResamplingAlg, nodata float64, hasNoData bool) []float64 {
	out := make([]float64, w.bufW*w.bufH)
	fill := 0.0
	if hasNoData {
		fill = nodata
	}
	isND := func(v float64) bool {
		return hasNoData && (v == nodata || (math.IsNaN(v) && math.IsNaN(nodata)))
	}
	if !w.isResampled() {
		for j := 0; j < w.bufH; j++ {
			for i := 0; i < w.bufW; i++ {
				out[j*w.bufW+i] = get(w.xOff+i, w.yOff+j)
			}
		}
		return out
	}
	ratioX := float64(w.xSize) / float64(w.bufW)
	ratioY := float64(w.ySize) / float64(w.bufH)

	switch alg {
	case Bilinear, Cubic, CubicSpline, Lanczos, Gauss:
		radius, kernel := convolutionKernel(alg)
		xw := kernelWeights(w.xOff, w.bufW, ratioX, srcW, radius, kernel)
		yw := kernelWeights(w.yOff, w.bufH, ratioY, srcH, radius, kernel)
		for j := 0; j < w.bufH; j++ {
			for i := 0; i < w.bufW; i++ {
				sum, wsum := 0.0, 0.0
				for _, ty := range yw[j] {
					for _, tx := range xw[i] {
						v := get(tx.pos, ty.pos)
						if isND(v) {
							continue
						}
						wt := tx.weight * ty.weight
						sum += v * wt
						wsum += wt
					}
				}
				if math.Abs(wsum) < 1e-12 {
					out[j*w.bufW+i] = fill
				} else {
					out[j*w.bufW+i] = sum / wsum
				}
			}
		}
	case Average, RMS, Mode, Min, Max, Median, Sum, Q1, Q3:
		vals := make([]float64, 0, int(math.Ceil(ratioX)+1)*int(math.Ceil(ratioY)+1))
		for j := 0; j < w.bufH; j++ {
			y0, y1 := areaBounds(w.yOff, j, ratioY, srcH)
			for i := 0; i < w.bufW; i++ {
				x0, x1 := areaBounds(w.xOff, i, ratioX, srcW)
				vals = vals[:0]
				for y := y0; y < y1; y++ {
					for x := x0; x < x1; x++ {
						if v := get(x, y); !isND(v) {
							vals = append(vals, v)
						}
					}
				}
				if len(vals) == 0 {
					out[j*w.bufW+i] = fill
					continue
				}
				out[j*w.bufW+i] = aggregate(alg, vals)
			}
		}
	default:
		for j := 0; j < w.bufH; j++ {
			sy := w.yOff + int(math.Floor((float64(j)+0.5)*ratioY))
			if sy >= w.yOff+w.ySize {
				sy = w.yOff + w.ySize - 1
			}
			for i := 0; i < w.bufW; i++ {
				sx := w.xOff + int(math.Floor((float64(i)+0.5)*ratioX))
				if sx >= w.xOff+w.xSize {
					sx = w.xOff + w.xSize - 1
				}
				out[j*w.bufW+i] = get(sx, sy)
			}
		}
	}
	return out
}

func areaBounds(off, i int, ratio float64, size int) (int, int) {
	a := int(math.Floor(float64(off) + float64(i)*ratio + windowEps))
	b := int(math.Ceil(float64(off) + float64(i+1)*ratio - windowEps))
	if b <= a {
		b = a + 1
	}
	if a < 0 {
		a = 0
	}
	if b > size {
		b = size
	}
	if a >= b {
		a = b - 1
	}
	return a, b
}

func aggregate(alg ResamplingAlg, vals []float64) float64 {
	switch alg {
	case Average:
		s := 0.0
		for _, v := range vals {
			s += v
		}
		return s / float64(len(vals))
	case RMS:
		s := 0.0
		for _, v := range vals {
			s += v * v
		}
		return math.Sqrt(s / float64(len(vals)))
	case Sum:
		s := 0.0
		for _, v := range vals {
			s += v
		}
		return s
	case Min:
		m := vals[0]
		for _, v := range vals[1:] {
			m = math.Min(m, v)
		}
		return m
	case Max:
		m := vals[0]
		for _, v := range vals[1:] {
			m = math.Max(m, v)
		}
		return m
	case Mode:
		counts := make(map[float64]int, len(vals))
		best, bestCount := vals[0], 0
		for _, v := range vals {
			counts[v]++
			if c := counts[v]; c > bestCount || (c == bestCount && v < best) {
				best, bestCount = v, c
			}
		}
		return best
	default:
		sorted := append([]float64(nil), vals...)
		sort.Float64s(sorted)
		q := 0.5
		if alg == Q1 {
			q = 0.25
		} else if alg == Q3 {
			q = 0.75
		}
		idx := int(math.Ceil(q*float64(len(sorted)))) - 1
		if idx < 0 {
			idx = 0
		}
		return sorted[idx]
	}
}

type tap struct {
	pos    int
	weight float64
}

func convolutionKernel(alg ResamplingAlg) (float64, func(float64) float64) {
	switch alg {
	case Bilinear:
		return 1, func(x float64) float64 {
			x = math.Abs(x)
			if x < 1 {
				return 1 - x
			}
			return 0
		}
	case Cubic:
		const a = -0.5
		return 2, func(x float64) float64 {
			x = math.Abs(x)
			switch {
			case x <= 1:
				return (a+2)*x*x*x - (a+3)*x*x + 1
			case x < 2:
				return a*x*x*x - 5*a*x*x + 8*a*x - 4*a
			}
			return 0
		}
	case CubicSpline:
		return 2, func(x float64) float64 {
			x = math.Abs(x)
			switch {
			case x <= 1:
				return (4 - 6*x*x + 3*x*x*x) / 6
			case x < 2:
				return (2 - x) * (2 - x) * (2 - x) / 6
			}
			return 0
		}
	case Lanczos:
		return 3, func(x float64) float64 {
			if x == 0 {
				return 1
			}
			if math.Abs(x) >= 3 {
				return 0
			}
			px := math.Pi * x
			return 3 * math.Sin(px) * math.Sin(px/3) / (px * px)
		}
	default:
		return 1.5, func(x float64) float64 {
			return math.Exp(-2 * x * x)
		}
	}
}

// kernelWeights computes the taps of each output pixel along one axis
func kernelWeights(off, n int, ratio float64, size int, radius float64, kernel func(float64) float64) [][]tap {
	scale := math.Max(1, ratio)
	ret := make([][]tap, n)
	for i := 0; i < n; i++ {
		c := float64(off) + (float64(i)+0.5)*ratio - 0.5
		lo := int(math.Ceil(c - radius*scale))
		hi := int(math.Floor(c + radius*scale))
		for t := lo; t <= hi; t++ {
			if t < 0 || t >= size {
				continue
			}
			if wt := kernel((float64(t) - c) / scale); wt != 0 {
				ret[i] = append(ret[i], tap{t, wt})
			}
		}
		if len(ret[i]) == 0 {
			p := int(math.Floor(c + 0.5))
			if p < 0 {
				p = 0
			}
			if p >= size {
				p = size - 1
			}
			ret[i] = []tap{{p, 1}}
		}
	}
	return ret
}
