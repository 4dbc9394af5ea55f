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
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKinds(t *testing.T) {
	err := errorf(ErrIOFailure, "read x: %w", io.EOF)
	assert.True(t, errors.Is(err, ErrIOFailure))
	assert.True(t, errors.Is(err, io.EOF))
	assert.Equal(t, "read x: EOF", err.Error())

	assert.True(t, errors.Is(asKind(ErrUnsupported, err), ErrIOFailure))
	assert.False(t, errors.Is(asKind(ErrUnsupported, err), ErrUnsupported))
	assert.True(t, errors.Is(asKind(ErrCapacity, io.EOF), ErrCapacity))
	assert.NoError(t, asKind(ErrCapacity, nil))

	e1 := errors.New("first")
	assert.Equal(t, e1, combine(nil, e1))
	assert.Equal(t, e1, combine(e1, nil))
	c := combine(combine(e1, errorf(ErrInvalidInput, "second")), errors.New("third"))
	assert.True(t, errors.Is(c, e1))
	assert.True(t, errors.Is(c, ErrInvalidInput))
	assert.Equal(t, "first\nsecond\nthird", c.Error())
}

func TestDiagnostics(t *testing.T) {
	failure := errorf(ErrInvalidInput, "bad window")

	d := newDiagnostics(nil)
	err := d.fail(failure)
	assert.True(t, errors.Is(err, ErrInvalidInput))
	assert.NoError(t, d.warnf("just a warning"))
	assert.NoError(t, d.fail(nil))

	swallow := newDiagnostics(func(ec ErrorCategory, code int, msg string) error { return nil })
	assert.NoError(t, swallow.fail(failure))

	custom := errors.New("custom")
	replace := newDiagnostics(func(ec ErrorCategory, code int, msg string) error { return custom })
	assert.Equal(t, custom, replace.fail(failure))

	promote := newDiagnostics(func(ec ErrorCategory, code int, msg string) error {
		if ec >= CE_Warning {
			return fmt.Errorf("promoted: %s", msg)
		}
		return nil
	})
	assert.EqualError(t, promote.warnf("careful %d", 1), "promoted: careful 1")
}

func TestDiagCollector(t *testing.T) {
	dc := &diagCollector{}
	assert.NoError(t, dc.handler(CE_Warning, 0, "w1"))
	assert.Error(t, dc.handler(CE_Failure, 0, "f1"))
	assert.NoError(t, dc.handler(CE_Debug, 0, "d1"))

	var got []string
	d := newDiagnostics(func(ec ErrorCategory, code int, msg string) error {
		got = append(got, msg)
		return nil
	})
	require.NoError(t, dc.replay(d))
	assert.Equal(t, []string{"w1", "d1"}, got)
}

func TestErrLoggerOnRead(t *testing.T) {
	ds, err := Create("", 4, 4)
	require.NoError(t, err)
	defer ds.Close()
	b, err := ds.AddBand(Byte)
	require.NoError(t, err)
	_, err = b.AddSimpleSource("mem://errlogger-missing", 1)
	require.NoError(t, err)

	buf := make([]byte, 16)
	err = b.Read(0, 0, buf, 4, 4)
	assert.True(t, errors.Is(err, ErrIOFailure))

	var msgs []string
	err = b.Read(0, 0, buf, 4, 4, ErrLogger(func(ec ErrorCategory, code int, msg string) error {
		if ec >= CE_Failure {
			msgs = append(msgs, msg)
		}
		return nil
	}))
	assert.NoError(t, err)
	assert.NotEmpty(t, msgs)
}

func TestXMLSizeLimits(t *testing.T) {
	memSource(t, "mem://xmlsize", 4, 4, Byte, constant(1))
	build := func(opts ...CreateOption) *Dataset {
		ds, err := Create("", 4, 4, opts...)
		require.NoError(t, err)
		t.Cleanup(func() { _ = ds.Close() })
		b, err := ds.AddBand(Byte)
		require.NoError(t, err)
		_, err = b.AddSimpleSource("mem://xmlsize", 1)
		require.NoError(t, err)
		return ds
	}

	ds := build(ConfigOption("VRT_XML_MAX_SIZE=100"))
	_, err := ds.XML()
	assert.True(t, errors.Is(err, ErrCapacity))

	var warnings []string
	ds = build(ConfigOption("VRT_XML_RAM_WARNING=10"), ErrLogger(func(ec ErrorCategory, code int, msg string) error {
		if ec == CE_Warning {
			warnings = append(warnings, msg)
		}
		return nil
	}))
	doc, err := ds.XML()
	require.NoError(t, err)
	assert.True(t, strings.Contains(doc, "mem://xmlsize"))
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "more than 10 bytes")
}

func TestBrokenSourceIsNotRetried(t *testing.T) {
	ds, err := Create("", 2, 2)
	require.NoError(t, err)
	defer ds.Close()
	b, err := ds.AddBand(Byte)
	require.NoError(t, err)
	_, err = b.AddSimpleSource("mem://late", 1)
	require.NoError(t, err)

	buf := make([]byte, 4)
	assert.True(t, errors.Is(b.Read(0, 0, buf, 2, 2), ErrIOFailure))
	memSource(t, "mem://late", 2, 2, Byte, constant(1))
	assert.True(t, errors.Is(b.Read(0, 0, buf, 2, 2), ErrIOFailure))
}
