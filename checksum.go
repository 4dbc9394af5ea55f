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

var checksumPrimes = [11]int{7, 11, 13, 17, 19, 23, 29, 31, 37, 41, 43}

// Checksum returns the checksum of a whole band, as computed by gdalinfo -checksum
func Checksum(b SourceBand, opts ...BandIOOption) (int, error) {
	st := b.Structure()
	return ChecksumWindow(b, 0, 0, st.SizeX, st.SizeY, opts...)
}

// ChecksumWindow returns the checksum of a window of a band. Rows are read one
// at a time.
func ChecksumWindow(b SourceBand, xOff, yOff, xSize, ySize int, opts ...BandIOOption) (int, error) {
	st := b.Structure()
	if err := checkWindow(st.SizeX, st.SizeY, xOff, yOff, xSize, ySize); err != nil {
		return 0, err
	}
	isFloat := st.DataType == Float32 || st.DataType == Float64
	line := make([]float64, xSize)
	sum, prime := 0, 0
	for y := yOff; y < yOff+ySize; y++ {
		if err := b.Read(xOff, y, line, xSize, 1, opts...); err != nil {
			return 0, err
		}
		for _, v := range line {
			var n int32
			switch {
			case isFloat && (math.IsNaN(v) || math.IsInf(v, 0)):
				n = math.MinInt32
			case isFloat:
				v += 0.5
				switch {
				case v < -math.MaxInt32:
					n = -math.MaxInt32
				case v > math.MaxInt32:
					n = math.MaxInt32
				default:
					n = int32(math.Floor(v))
				}
			default:
				n = int32(math.Max(math.MinInt32, math.Min(math.MaxInt32, v)))
			}
			sum += int(n % int32(checksumPrimes[prime]))
			if prime++; prime > 10 {
				prime = 0
			}
			sum &= 0xffff
		}
	}
	return sum, nil
}
