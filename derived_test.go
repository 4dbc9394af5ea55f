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
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func derived(t *testing.T, opts ...string) (*Dataset, *Band) {
	t.Helper()
	memSource(t, "mem://dera", 3, 1, Byte, func(x, y int) float64 { return float64(x + 1) })
	memSource(t, "mem://derb", 3, 1, Byte, constant(10))
	ds, err := Create("", 3, 1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ds.Close() })
	b, err := ds.AddBand(Float32, CreationOption(append([]string{"subclass=VRTDerivedRasterBand"}, opts...)...))
	require.NoError(t, err)
	_, err = b.AddSimpleSource("mem://dera", 1)
	require.NoError(t, err)
	_, err = b.AddSimpleSource("mem://derb", 1)
	require.NoError(t, err)
	return ds, b
}

func TestBuiltinPixelFunctions(t *testing.T) {
	cases := []struct {
		name string
		args []string
		want []float64
	}{
		{"sum", nil, []float64{11, 12, 13}},
		{"sum", []string{"k=1"}, []float64{12, 13, 14}},
		{"mul", nil, []float64{10, 20, 30}},
		{"diff", nil, []float64{-9, -8, -7}},
		{"div", nil, []float64{0.1, 0.2, 0.3}},
		{"min", nil, []float64{1, 2, 3}},
		{"max", nil, []float64{10, 10, 10}},
		{"expression", []string{"expression=B1 * 2 + B2"}, []float64{12, 14, 16}},
		{"expression", []string{"expression=B1 > 1"}, []float64{0, 1, 1}},
	}
	for _, c := range cases {
		t.Run(fmt.Sprintf("%s%v", c.name, c.args), func(t *testing.T) {
			_, b := derived(t, "PixelFunctionType="+c.name)
			require.NoError(t, b.SetPixelFunction(c.name, c.args...))
			got := make([]float32, 3)
			require.NoError(t, b.Read(0, 0, got, 3, 1))
			for i := range got {
				assert.InDelta(t, c.want[i], got[i], 1e-6)
			}
		})
	}
}

func TestExpressionErrors(t *testing.T) {
	_, b := derived(t)
	buf := make([]float32, 3)
	for _, expr := range []string{"B3 + 1", "C1", "B1 +", ""} {
		require.NoError(t, b.SetPixelFunction("expression", "expression="+expr))
		err := b.Read(0, 0, buf, 3, 1)
		assert.True(t, errors.Is(err, ErrInvalidInput), expr)
	}
	assert.True(t, errors.Is(b.SetPixelFunction("expression", "noequal"), ErrInvalidInput))
}

func TestPixelFunctionRegistry(t *testing.T) {
	_, b := derived(t, "PixelFunctionType=nosuchfunc")
	buf := make([]float32, 3)
	assert.True(t, errors.Is(b.Read(0, 0, buf, 3, 1), ErrUnsupported))

	assert.True(t, errors.Is(RegisterPixelFunction("sum", sumPixelFunc), ErrInconsistentState))
	assert.True(t, errors.Is(RegisterPixelFunction("", sumPixelFunc), ErrInvalidInput))
	require.NoError(t, RegisterPixelFunction("test_hypot", func(sources [][]float64, out []float64, w, h int, args map[string]string) error {
		for i := range out {
			out[i] = math.Hypot(sources[0][i], sources[1][i])
		}
		return nil
	}))
	require.NoError(t, b.SetPixelFunction("test_hypot"))
	require.NoError(t, b.Read(0, 0, buf, 3, 1))
	assert.InDelta(t, math.Hypot(1, 10), buf[0], 1e-5)
}

func TestDerivedRoundTrip(t *testing.T) {
	ds, b := derived(t, "PixelFunctionType=expression", "SourceTransferType=Float64", "PixelFunctionLanguage=expression")
	require.NoError(t, b.SetPixelFunction("expression", "expression=B1 + B2"))
	assert.Equal(t, DerivedBand, b.Subclass())
	doc, err := ds.XML()
	require.NoError(t, err)
	assert.Contains(t, doc, `<PixelFunctionArguments expression="B1 + B2"`)
	assert.Contains(t, doc, "<SourceTransferType>Float64</SourceTransferType>")

	rt, err := Open(doc)
	require.NoError(t, err)
	defer rt.Close()
	assert.Equal(t, []float64{11, 12, 13}, readAll(t, rt.Bands()[0]))

	_, err = ds.AddBand(Byte, CreationOption("subclass=VRTDerivedRasterBand", "SourceTransferType=Int3"))
	assert.True(t, errors.Is(err, ErrInvalidInput))
	_, err = ds.AddBand(Byte, CreationOption("subclass=VRTDerivedRasterBand", "PixelFunctionType=sum", "PixelFunctionLanguage=Python"))
	require.NoError(t, err)
	buf := make([]byte, 3)
	assert.True(t, errors.Is(ds.Bands()[1].Read(0, 0, buf, 3, 1), ErrUnsupported))

	plain, _ := Create("", 3, 1)
	defer plain.Close()
	pb, _ := plain.AddBand(Byte)
	assert.True(t, errors.Is(pb.SetPixelFunction("sum"), ErrUnsupported))
}

func TestFuncSource(t *testing.T) {
	ds, err := Create("", 4, 2)
	require.NoError(t, err)
	defer ds.Close()
	b, _ := ds.AddBand(Int16)
	require.NoError(t, b.SetNoData(-5))
	_, err = b.AddFuncSource(func(xOff, yOff, xSize, ySize int, out []float64) error {
		for j := 0; j < ySize; j++ {
			for i := 0; i < xSize; i++ {
				x := xOff + i
				if x == 3 {
					out[j*xSize+i] = -1
					continue
				}
				out[j*xSize+i] = float64(100*(yOff+j) + x)
			}
		}
		return nil
	}, SourceNoData(-1))
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 2, -5, 100, 101, 102, -5}, readAll(t, b))

	buf := make([]int16, 2)
	require.NoError(t, b.Read(1, 1, buf, 2, 1))
	assert.Equal(t, []int16{101, 102}, buf)

	err = b.Read(0, 0, buf, 2, 1, Window(4, 2))
	assert.True(t, errors.Is(err, ErrUnsupported))

	_, err = b.AddFuncSource(nil)
	assert.True(t, errors.Is(err, ErrInvalidInput))

	failing, _ := ds.AddBand(Byte)
	_, err = failing.AddFuncSource(func(xOff, yOff, xSize, ySize int, out []float64) error {
		return errors.New("boom")
	})
	require.NoError(t, err)
	err = failing.Read(0, 0, make([]byte, 8), 4, 2)
	assert.True(t, errors.Is(err, ErrIOFailure))

	doc, err := ds.XML()
	require.NoError(t, err)
	assert.NotContains(t, doc, "FuncSource")
}

func TestExpressionEvaluation(t *testing.T) {
	sources := [][]float64{{1, 2}, {10, 20}}
	out := make([]float64, 2)
	eval := func(expr string) []float64 {
		t.Helper()
		require.NoError(t, exprPixelFunc(sources, out, 2, 1, map[string]string{"expression": expr}))
		return append([]float64(nil), out...)
	}
	assert.Equal(t, []float64{11, 22}, eval("B1 + B2"))
	assert.Equal(t, []float64{-9, -18}, eval("B1 - B2"))
	got := eval("B1 / 3")
	assert.InDelta(t, 1.0/3, got[0], 1e-6)
	assert.InDelta(t, 2.0/3, got[1], 1e-6)
	assert.Equal(t, []float64{0, 1}, eval("B2 > 10"))
}
