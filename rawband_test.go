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
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rawUInt16 encodes values after a header of hdr bytes
func rawUInt16(hdr int, order binary.ByteOrder, values ...uint16) []byte {
	ret := make([]byte, hdr+2*len(values))
	for i, v := range values {
		order.PutUint16(ret[hdr+2*i:], v)
	}
	return ret
}

func TestRawBand(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/d/data.raw",
		rawUInt16(4, binary.BigEndian, 1, 2, 3, 256, 512, 1024), 0o644))

	ds, err := Create("/d/raw.vrt", 3, 2, FileSystem(fs))
	require.NoError(t, err)
	b, err := ds.AddBand(UInt16, CreationOption(
		"subclass=VRTRawRasterBand",
		"SourceFilename=data.raw",
		"relativeToVRT=1",
		"ImageOffset=4",
		"ByteOrder=MSB",
	))
	require.NoError(t, err)
	assert.Equal(t, RawBand, b.Subclass())
	assert.Equal(t, []float64{1, 2, 3, 256, 512, 1024}, readAll(t, b))

	buf := make([]uint16, 2)
	require.NoError(t, b.Read(1, 1, buf, 2, 1))
	assert.Equal(t, []uint16{512, 1024}, buf)

	doc, err := ds.XML()
	require.NoError(t, err)
	assert.Contains(t, doc, "<ByteOrder>MSB</ByteOrder>")
	assert.Contains(t, doc, "<LineOffset>6</LineOffset>")
	require.NoError(t, ds.Close())

	rt, err := Open("/d/raw.vrt", FileSystem(fs))
	require.NoError(t, err)
	defer rt.Close()
	assert.Equal(t, []float64{1, 2, 3, 256, 512, 1024}, readAll(t, rt.Bands()[0]))
}

func TestRawBandLayout(t *testing.T) {
	fs := afero.NewMemMapFs()
	// pixel interleaved 2 band file, band 2 read with PixelOffset 4
	require.NoError(t, afero.WriteFile(fs, "/il.raw",
		rawUInt16(0, binary.LittleEndian, 1, 10, 2, 20, 3, 30, 4, 40), 0o644))
	ds, _ := Create("", 2, 2, FileSystem(fs))
	defer ds.Close()
	b, err := ds.AddBand(UInt16, CreationOption(
		"subclass=VRTRawRasterBand",
		"SourceFilename=/il.raw",
		"ImageOffset=2",
		"PixelOffset=4",
		"LineOffset=8",
	))
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 20, 30, 40}, readAll(t, b))

	// bytes past the end of the file read as zero
	short, err := ds.AddBand(UInt16, CreationOption(
		"subclass=VRTRawRasterBand",
		"SourceFilename=/il.raw",
		"ImageOffset=12",
	))
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 40, 0, 0}, readAll(t, short))
}

func TestRawBandErrors(t *testing.T) {
	ds, _ := Create("", 2, 2, FileSystem(afero.NewMemMapFs()))
	defer ds.Close()
	raw := func(opts ...string) error {
		_, err := ds.AddBand(Byte, CreationOption(append([]string{"subclass=VRTRawRasterBand"}, opts...)...))
		return err
	}
	assert.True(t, errors.Is(raw("SourceFilename=a.raw", "ByteOrder=VAX"), ErrUnsupported))
	assert.True(t, errors.Is(raw("SourceFilename=a.raw", "ByteOrder=PDP"), ErrInvalidInput))
	assert.True(t, errors.Is(raw(), ErrInvalidInput))
	assert.True(t, errors.Is(raw("SourceFilename=a.raw", "ImageOffset=-1"), ErrInvalidInput))
	assert.True(t, errors.Is(raw("SourceFilename=a.raw", "PixelOffset=x"), ErrInvalidInput))
	_, err := ds.AddBand(CFloat32, CreationOption("subclass=VRTRawRasterBand", "SourceFilename=a.raw"))
	assert.True(t, errors.Is(err, ErrUnsupported))

	require.NoError(t, raw("SourceFilename=/missing.raw"))
	buf := make([]byte, 4)
	err = ds.Bands()[0].Read(0, 0, buf, 2, 2)
	assert.True(t, errors.Is(err, ErrIOFailure))
}

type mapHandler struct {
	mu    sync.Mutex
	files map[string][]byte
	reads int
}

func (h *mapHandler) ReadAt(key string, p []byte, off int64) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reads++
	data, ok := h.files[key]
	if !ok {
		return 0, os.ErrNotExist
	}
	if off >= int64(len(data)) {
		return 0, io.EOF
	}
	n := copy(p, data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (h *mapHandler) Size(key string) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	data, ok := h.files[key]
	if !ok {
		return 0, os.ErrNotExist
	}
	return int64(len(data)), nil
}

func TestRawBandVSIHandler(t *testing.T) {
	h := &mapHandler{files: map[string][]byte{
		"bucket/img.raw": {1, 2, 3, 4, 5, 6},
	}}
	prefix := fmt.Sprintf("rawtest%d://", os.Getpid())
	require.NoError(t, RegisterVSIHandler(prefix, h, VSIHandlerBlockSize(4), VSIHandlerCacheSize(64)))
	err := RegisterVSIHandler(prefix, h)
	assert.True(t, errors.Is(err, ErrInconsistentState))
	assert.True(t, errors.Is(RegisterVSIHandler("", h), ErrInvalidInput))
	assert.True(t, errors.Is(RegisterVSIHandler("x://", h, VSIHandlerBlockSize(0)), ErrInvalidInput))

	ds, _ := Create("", 3, 2)
	defer ds.Close()
	b, err := ds.AddBand(Byte, CreationOption("subclass=VRTRawRasterBand", "SourceFilename="+prefix+"bucket/img.raw"))
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, readAll(t, b))
	reads := h.reads
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, readAll(t, b))
	assert.Equal(t, reads, h.reads, "second read is served from the block cache")

	missing, err := ds.AddBand(Byte, CreationOption("subclass=VRTRawRasterBand", "SourceFilename="+prefix+"bucket/none.raw"))
	require.NoError(t, err)
	buf := make([]byte, 6)
	err = missing.Read(0, 0, buf, 3, 2)
	assert.True(t, errors.Is(err, ErrIOFailure))
	assert.True(t, strings.Contains(err.Error(), "none.raw"))

	key := fmt.Sprintf("keep%d://", os.Getpid())
	h.files[key+"bucket/img.raw"] = []byte{9, 9, 9, 9, 9, 9}
	require.NoError(t, RegisterVSIHandler(key, h, VSIHandlerStripPrefix(false), VSIHandlerCacheSize(0)))
	kept, err := ds.AddBand(Byte, CreationOption("subclass=VRTRawRasterBand", "SourceFilename="+key+"bucket/img.raw"))
	require.NoError(t, err)
	assert.Equal(t, []float64{9, 9, 9, 9, 9, 9}, readAll(t, kept))
}
