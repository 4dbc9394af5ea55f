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

//PaletteInterp defines the color interpretation of a ColorTable
type PaletteInterp int

const (
	//GrayscalePalette is a grayscale palette with a single component per entry
	GrayscalePalette PaletteInterp = iota
	//RGBPalette is a RGBA palette with 4 components per entry
	RGBPalette
	//CMYKPalette is a CMYK palette with 4 components per entry
	CMYKPalette
	//HLSPalette is a HLS palette with 3 components per entry
	HLSPalette
)

var paletteInterpNames = []string{"Gray", "RGB", "CMYK", "HLS"}

func (pi PaletteInterp) String() string {
	if pi < 0 || int(pi) >= len(paletteInterpNames) {
		return "RGB"
	}
	return paletteInterpNames[pi]
}

func parsePaletteInterp(s string) PaletteInterp {
	for i, n := range paletteInterpNames {
		if n == s {
			return PaletteInterp(i)
		}
	}
	return RGBPalette
}

//ColorTable is a color table associated with a Band
type ColorTable struct {
	PaletteInterp PaletteInterp
	Entries       [][4]int16
}

// component returns the c'th (1-based) component of the entry at index v, or
// false if v is not an index of the table
func (ct ColorTable) component(v float64, c int) (float64, bool) {
	if c < 1 || c > 4 || v < 0 {
		return 0, false
	}
	idx := int(v)
	if float64(idx) != v || idx >= len(ct.Entries) {
		return 0, false
	}
	return float64(ct.Entries[idx][c-1]), true
}

func (ct ColorTable) clone() ColorTable {
	if len(ct.Entries) == 0 {
		return ColorTable{PaletteInterp: ct.PaletteInterp}
	}
	e := make([][4]int16, len(ct.Entries))
	copy(e, ct.Entries)
	return ColorTable{PaletteInterp: ct.PaletteInterp, Entries: e}
}
