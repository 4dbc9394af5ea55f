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
	"encoding/xml"
	"strings"
)

// derivedBand applies a pixel function to the rasters read from its sources
type derivedBand struct {
	sourcedBand
	funcName     string
	language     string
	args         []xml.Attr
	code         string
	transferType DataType
}

func (d *derivedBand) subclass() string {
	return DerivedBand
}

func (d *derivedBand) argMap() map[string]string {
	ret := make(map[string]string, len(d.args))
	for _, a := range d.args {
		ret[a.Name.Local] = a.Value
	}
	return ret
}

func (d *derivedBand) pixelFunc() (PixelFunc, error) {
	switch strings.ToLower(d.language) {
	case "", "c", "expression", "exprtk", "muparser":
	default:
		return nil, errorf(ErrUnsupported, "pixel function language %s is not supported", d.language)
	}
	if d.funcName == "" {
		return nil, errorf(ErrInvalidInput, "derived band has no pixel function")
	}
	fn, ok := lookupPixelFunction(d.funcName)
	if !ok {
		return nil, errorf(ErrUnsupported, "pixel function %s is not registered", d.funcName)
	}
	return fn, nil
}

func (d *derivedBand) read(b *Band, w ioWindow, l bufLayout, bo bandIOOpts) error {
	fn, err := d.pixelFunc()
	if err != nil {
		return err
	}
	transfer := d.transferType
	if transfer == Unknown {
		transfer = b.dtype
	}
	n := w.bufW * w.bufH
	init := transfer.clamp(b.initValue())
	srcs := make([][]float64, len(d.sources))
	for i, s := range d.sources {
		data := make([]float64, n)
		for j := range data {
			data[j] = init
		}
		if err := s.read(w, float64Layout(data, w.bufW, w.bufH), bo); err != nil {
			return err
		}
		if transfer != Float64 {
			for j := range data {
				data[j] = transfer.clamp(data[j])
			}
		}
		srcs[i] = data
	}
	out := make([]float64, n)
	if err := fn(srcs, out, w.bufW, w.bufH, d.argMap()); err != nil {
		return asKind(ErrInvalidInput, err)
	}
	l.putRaster(0, 0, out, w.bufW, w.bufH)
	return nil
}

func (d *derivedBand) serialize(b *Band, n *xmlNode, vrtDir string) {
	if d.funcName != "" {
		n.addText("PixelFunctionType", d.funcName)
	}
	if d.language != "" {
		n.addText("PixelFunctionLanguage", d.language)
	}
	if len(d.args) > 0 {
		a := n.add("PixelFunctionArguments")
		a.Attrs = append(a.Attrs, d.args...)
	}
	if d.code != "" {
		n.addText("PixelFunctionCode", d.code)
	}
	if d.transferType != Unknown {
		n.addText("SourceTransferType", d.transferType.String())
	}
	d.sourcedBand.serialize(b, n, vrtDir)
}

func parseDerivedBand(n *xmlNode) (*derivedBand, error) {
	d := &derivedBand{}
	d.funcName, _ = n.childText("PixelFunctionType")
	d.language, _ = n.childText("PixelFunctionLanguage")
	if a := n.child("PixelFunctionArguments"); a != nil {
		d.args = append(d.args, a.Attrs...)
	}
	if c := n.child("PixelFunctionCode"); c != nil {
		d.code = c.Text
	}
	if tt, ok := n.childText("SourceTransferType"); ok && tt != "" {
		d.transferType = ParseDataType(tt)
		if d.transferType == Unknown {
			return nil, errorf(ErrInvalidInput, "invalid SourceTransferType %s", tt)
		}
	}
	return d, nil
}

// SetPixelFunction sets the pixel function of a derived band and its arguments,
// given as KEY=VALUE strings
func (b *Band) SetPixelFunction(name string, args ...string) error {
	d, ok := b.impl.(*derivedBand)
	if !ok {
		return errorf(ErrUnsupported, "%s bands have no pixel function", b.impl.subclass())
	}
	d.funcName = name
	d.args = nil
	for _, kv := range args {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return errorf(ErrInvalidInput, "pixel function argument %q is not in KEY=VALUE form", kv)
		}
		d.args = append(d.args, xml.Attr{Name: xml.Name{Local: k}, Value: v})
	}
	b.ds.setDirty()
	return nil
}
