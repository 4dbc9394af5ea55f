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
	"strings"
)

// DataType is a pixel data types
type DataType int

const (
	//Unknown / Unset Datatype
	Unknown DataType = iota
	//Byte / UInt8
	Byte
	//UInt16 DataType
	UInt16
	//Int16 DataType
	Int16
	//UInt32 DataType
	UInt32
	//Int32 DataType
	Int32
	//Float32 DataType
	Float32
	//Float64 DataType
	Float64
	//CInt16 is a complex Int16
	CInt16
	//CInt32 is a complex Int32
	CInt32
	//CFloat32 is a complex Float32
	CFloat32
	//CFloat64 is a complex Float64
	CFloat64
	//UInt64 DataType
	UInt64
	//Int64 DataType
	Int64
	//Int8 DataType
	Int8
)

var dataTypeNames = map[DataType]string{
	Unknown:  "Unknown",
	Byte:     "Byte",
	UInt16:   "UInt16",
	Int16:    "Int16",
	UInt32:   "UInt32",
	Int32:    "Int32",
	Float32:  "Float32",
	Float64:  "Float64",
	CInt16:   "CInt16",
	CInt32:   "CInt32",
	CFloat32: "CFloat32",
	CFloat64: "CFloat64",
	UInt64:   "UInt64",
	Int64:    "Int64",
	Int8:     "Int8",
}

func (dtype DataType) String() string {
	if n, ok := dataTypeNames[dtype]; ok {
		return n
	}
	return "Unknown"
}

// ParseDataType returns the DataType named name (case insensitive), or Unknown
func ParseDataType(name string) DataType {
	for dt, n := range dataTypeNames {
		if strings.EqualFold(n, name) {
			return dt
		}
	}
	if strings.EqualFold(name, "UInt8") {
		return Byte
	}
	return Unknown
}

// Size retruns the number of bytes needed for one instance of DataType
func (dtype DataType) Size() int {
	switch dtype {
	case Byte, Int8:
		return 1
	case Int16, UInt16:
		return 2
	case Int32, UInt32, Float32, CInt16:
		return 4
	case CInt32, Float64, CFloat32, Int64, UInt64:
		return 8
	case CFloat64:
		return 16
	default:
		return 0
	}
}

// IsComplex returns true for complex data types
func (dtype DataType) IsComplex() bool {
	switch dtype {
	case CInt16, CInt32, CFloat32, CFloat64:
		return true
	}
	return false
}

// isInteger returns true for data types whose values are rounded on conversion
func (dtype DataType) isInteger() bool {
	switch dtype {
	case Byte, Int8, UInt16, Int16, UInt32, Int32, UInt64, Int64:
		return true
	}
	return false
}

// valueRange returns the representable range of dtype
func (dtype DataType) valueRange() (float64, float64) {
	switch dtype {
	case Byte:
		return 0, math.MaxUint8
	case Int8:
		return math.MinInt8, math.MaxInt8
	case UInt16:
		return 0, math.MaxUint16
	case Int16:
		return math.MinInt16, math.MaxInt16
	case UInt32:
		return 0, math.MaxUint32
	case Int32:
		return math.MinInt32, math.MaxInt32
	case UInt64:
		return 0, math.Nextafter(math.MaxUint64, 0)
	case Int64:
		return math.MinInt64, math.Nextafter(math.MaxInt64, 0)
	case Float32:
		return -math.MaxFloat32, math.MaxFloat32
	default:
		return math.Inf(-1), math.Inf(1)
	}
}

// clamp converts v to the closest value representable by dtype
func (dtype DataType) clamp(v float64) float64 {
	if !dtype.isInteger() {
		if dtype == Float32 && !math.IsNaN(v) && !math.IsInf(v, 0) {
			return float64(float32(v))
		}
		return v
	}
	if math.IsNaN(v) {
		return 0
	}
	lo, hi := dtype.valueRange()
	v = math.Round(v)
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ColorInterp is a band's color interpretation
type ColorInterp int

const (
	//CIUndefined is an undefined ColorInterp
	CIUndefined ColorInterp = iota
	//CIGray is a gray level ColorInterp
	CIGray
	//CIPalette is a paletted ColorInterp
	CIPalette
	//CIRed is a Red ColorInterp
	CIRed
	//CIGreen is a Green ColorInterp
	CIGreen
	//CIBlue is a Blue ColorInterp
	CIBlue
	//CIAlpha is an Alpha/Transparency ColorInterp
	CIAlpha
	//CIHue is an HSL Hue ColorInterp
	CIHue
	//CISaturation is an HSL Saturation ColorInterp
	CISaturation
	//CILightness is an HSL Lightness ColorInterp
	CILightness
	//CICyan is an CMYK Cyan ColorInterp
	CICyan
	//CIMagenta is an CMYK Magenta ColorInterp
	CIMagenta
	//CIYellow is an CMYK Yellow ColorInterp
	CIYellow
	//CIBlack is an CMYK Black ColorInterp
	CIBlack
	//CIY is a YCbCr Y ColorInterp
	CIY
	//CICb is a YCbCr Cb ColorInterp
	CICb
	//CICr is a YCbCr Cr ColorInterp
	CICr
)

var colorInterpNames = []string{
	"Undefined", "Gray", "Palette", "Red", "Green", "Blue", "Alpha", "Hue",
	"Saturation", "Lightness", "Cyan", "Magenta", "Yellow", "Black",
	"YCbCr_Y", "YCbCr_Cb", "YCbCr_Cr",
}

// Name returns the ColorInterp's name
func (colorInterp ColorInterp) Name() string {
	if colorInterp < 0 || int(colorInterp) >= len(colorInterpNames) {
		return "Undefined"
	}
	return colorInterpNames[colorInterp]
}

// ParseColorInterp returns the ColorInterp named name (case insensitive)
func ParseColorInterp(name string) ColorInterp {
	for i, n := range colorInterpNames {
		if strings.EqualFold(n, name) {
			return ColorInterp(i)
		}
	}
	if strings.EqualFold(name, "GrayIndex") || strings.EqualFold(name, "Grey") {
		return CIGray
	}
	return CIUndefined
}

// ResamplingAlg is a resampling method
type ResamplingAlg int

const (
	//Nearest resampling
	Nearest ResamplingAlg = iota
	// Bilinear resampling
	Bilinear
	// Cubic resampling
	Cubic
	// CubicSpline resampling
	CubicSpline
	// Lanczos resampling
	Lanczos
	// Average resampling
	Average
	// Gauss resampling
	Gauss
	// Mode resampling
	Mode
	// Max resampling
	Max
	// Min resampling
	Min
	// Median resampling
	Median
	// Sum resampling
	Sum
	// Q1 resampling
	Q1
	// Q3 resampling
	Q3
	// RMS resampling
	RMS
)

func (ra ResamplingAlg) String() string {
	switch ra {
	case Nearest:
		return "nearest"
	case Average:
		return "average"
	case Bilinear:
		return "bilinear"
	case Cubic:
		return "cubic"
	case CubicSpline:
		return "cubicspline"
	case Lanczos:
		return "lanczos"
	case Gauss:
		return "gauss"
	case Mode:
		return "mode"
	case RMS:
		return "rms"
	case Q1:
		return "Q1"
	case Q3:
		return "Q3"
	case Median:
		return "med"
	case Max:
		return "max"
	case Min:
		return "min"
	case Sum:
		return "sum"
	default:
		return "nearest"
	}
}

// ParseResampling parses a resampling name as found in VRT documents and
// command line switches
func ParseResampling(name string) (ResamplingAlg, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "near", "nearest", "nearestneighbour", "nearestneighbor":
		return Nearest, nil
	case "bilinear":
		return Bilinear, nil
	case "cubic":
		return Cubic, nil
	case "cubicspline":
		return CubicSpline, nil
	case "lanczos":
		return Lanczos, nil
	case "average":
		return Average, nil
	case "gauss":
		return Gauss, nil
	case "mode":
		return Mode, nil
	case "max":
		return Max, nil
	case "min":
		return Min, nil
	case "med", "median":
		return Median, nil
	case "sum":
		return Sum, nil
	case "q1":
		return Q1, nil
	case "q3":
		return Q3, nil
	case "rms":
		return RMS, nil
	}
	return Nearest, errorf(ErrInvalidInput, "unknown resampling %q", name)
}

// Mask flags, as returned by MaskFlags()
const (
	// GMF_ALL_VALID means all pixels are valid
	GMF_ALL_VALID = 0x01
	// GMF_PER_DATASET means the mask is shared between all bands of the dataset
	GMF_PER_DATASET = 0x02
	// GMF_ALPHA means the mask is an alpha band
	GMF_ALPHA = 0x04
	// GMF_NODATA means the mask is derived from the nodata value
	GMF_NODATA = 0x08
)

// GCP is a ground control point
type GCP struct {
	ID    string
	Info  string
	Pixel float64
	Line  float64
	X     float64
	Y     float64
	Z     float64
}

// SpatialRef is the spatial reference attached to a dataset or its GCPs. Only its
// serialized form is handled here, reprojection is left to the caller.
type SpatialRef struct {
	// WKT is the well-known text (or any user input string) of the reference
	WKT string
	// AxisMapping is the data-axis to CRS-axis mapping, 1-based. Nil means the
	// traditional GIS order.
	AxisMapping []int
	// CoordinateEpoch is the epoch of dynamic CRSs, 0 if unset
	CoordinateEpoch float64
}

// IsEmpty returns true if no spatial reference is set
func (sr SpatialRef) IsEmpty() bool {
	return sr.WKT == ""
}
