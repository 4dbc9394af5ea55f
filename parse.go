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
	"strconv"
	"strings"
)

// parseDataset builds a dataset from a parsed VRTDataset document. name is the
// file the document was read from, or the document itself when inline.
func parseDataset(root *xmlNode, name string, oo openOpts) (*Dataset, error) {
	if root.name() != "VRTDataset" {
		return nil, errorf(ErrInvalidInput, "%s: root element is %s, not VRTDataset", name, root.name())
	}
	subclass := root.attrOr("subClass", PlainDataset)
	switch subclass {
	case PlainDataset, WarpedDataset, PansharpenedDataset, ProcessedDataset:
	default:
		return nil, errorf(ErrInvalidInput, "%s: unknown subClass %q", name, subclass)
	}

	ds := newDataset(name, oo.fs, 0, 0)
	ds.subclass = subclass
	if err := ds.applyOpenOptions(oo); err != nil {
		return nil, err
	}
	if el := subclassOptionsElement(subclass); el != "" {
		if so := root.child(el); so != nil {
			ds.subclassOptions = so.clone()
		}
	}

	xs, hasX := root.attr("rasterXSize")
	ys, hasY := root.attr("rasterYSize")
	switch {
	case hasX && hasY:
		var err error
		if ds.width, err = strconv.Atoi(strings.TrimSpace(xs)); err != nil || ds.width <= 0 {
			return nil, errorf(ErrInvalidInput, "%s: invalid rasterXSize %q", name, xs)
		}
		if ds.height, err = strconv.Atoi(strings.TrimSpace(ys)); err != nil || ds.height <= 0 {
			return nil, errorf(ErrInvalidInput, "%s: invalid rasterYSize %q", name, ys)
		}
	case root.child("Group") != nil:
		return nil, errorf(ErrUnsupported, "%s: multidimensional documents are not supported", name)
	case subclass == PansharpenedDataset || subclass == ProcessedDataset:
		k, ok := kernelFor(subclass)
		sizer, isSizer := k.(KernelSizer)
		if !ok || !isSizer {
			return nil, errorf(ErrUnsupported, "%s: %s without raster size needs a registered kernel", name, subclass)
		}
		w, h, err := sizer.RasterSize(ds)
		if err != nil {
			return nil, errorf(ErrInvalidInput, "%s: %w", name, err)
		}
		if w <= 0 || h <= 0 {
			return nil, errorf(ErrInvalidInput, "%s: invalid raster size %dx%d", name, w, h)
		}
		ds.width, ds.height = w, h
	default:
		return nil, errorf(ErrInvalidInput, "%s: missing rasterXSize or rasterYSize", name)
	}
	ds.blockX, ds.blockY = defaultBlockSize(ds.width), defaultBlockSize(ds.height)
	if subclass == WarpedDataset {
		if err := parseBlockSize(root, "BlockXSize", &ds.blockX); err != nil {
			return nil, err
		}
		if err := parseBlockSize(root, "BlockYSize", &ds.blockY); err != nil {
			return nil, err
		}
	}

	if n := root.child("SRS"); n != nil {
		sr, err := parseSRS(n.text(), n)
		if err != nil {
			return nil, err
		}
		ds.srs = sr
	}
	if gt, ok := root.childText("GeoTransform"); ok {
		v, err := parseGeoTransform(gt)
		if err != nil {
			return nil, err
		}
		ds.gt, ds.hasGT = v, true
	}
	if n := root.child("GCPList"); n != nil {
		gcps, sr, err := parseGCPs(n)
		if err != nil {
			return nil, err
		}
		ds.gcps, ds.gcpSRS = gcps, sr
	}
	if err := parseMetadata(root, &ds.majorObject); err != nil {
		return nil, err
	}

	for _, bn := range root.childrenNamed("VRTRasterBand") {
		b, err := parseBand(ds, bn, len(ds.bands)+1)
		if err != nil {
			ds.closeParsed()
			return nil, err
		}
		ds.bands = append(ds.bands, b)
	}
	if mn := root.child("MaskBand"); mn != nil {
		if bn := mn.child("VRTRasterBand"); bn != nil {
			b, err := parseBand(ds, bn, 0)
			if err != nil {
				ds.closeParsed()
				return nil, err
			}
			ds.mask = b
		}
	}
	if ol := root.child("OverviewList"); ol != nil {
		for _, f := range strings.Fields(ol.text()) {
			v, err := strconv.Atoi(f)
			if err != nil || v <= 1 {
				ds.closeParsed()
				return nil, errorf(ErrInvalidInput, "%s: invalid overview factor %q", name, f)
			}
			ds.ovrFactors = append(ds.ovrFactors, v)
		}
		ds.ovrResampling = ol.attrOr("resampling", "")
	}
	ds.dirty = false
	return ds, nil
}

// closeParsed releases what a failed parse already opened
func (ds *Dataset) closeParsed() {
	for _, b := range ds.bands {
		_ = b.close()
	}
	if ds.mask != nil {
		_ = ds.mask.close()
	}
	_ = ds.registry.closeAll()
}

func parseBlockSize(n *xmlNode, key string, dst *int) error {
	v, ok := n.childText(key)
	if !ok {
		if v, ok = n.attr(key); !ok {
			return nil
		}
	}
	bs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || bs <= 0 {
		return errorf(ErrInvalidInput, "invalid %s %q", key, v)
	}
	*dst = bs
	return nil
}

func parseGeoTransform(s string) ([6]float64, error) {
	var gt [6]float64
	parts := strings.Split(s, ",")
	if len(parts) != 6 {
		return gt, errorf(ErrInvalidInput, "invalid GeoTransform %q", s)
	}
	for i, p := range parts {
		v, err := parseFloatText(p, "GeoTransform")
		if err != nil {
			return gt, err
		}
		gt[i] = v
	}
	return gt, nil
}

// parseSRS reads a spatial reference and the optional axis mapping and epoch
// attributes of n
func parseSRS(wkt string, n *xmlNode) (SpatialRef, error) {
	sr := SpatialRef{WKT: wkt}
	if m, ok := n.attr("dataAxisToSRSAxisMapping"); ok && strings.TrimSpace(m) != "" {
		for _, a := range strings.Split(m, ",") {
			v, err := strconv.Atoi(strings.TrimSpace(a))
			if err != nil {
				return sr, errorf(ErrInvalidInput, "invalid dataAxisToSRSAxisMapping %q", m)
			}
			sr.AxisMapping = append(sr.AxisMapping, v)
		}
	}
	if e, ok := n.attr("coordinateEpoch"); ok {
		v, err := parseFloatText(e, "coordinateEpoch")
		if err != nil {
			return sr, err
		}
		sr.CoordinateEpoch = v
	}
	return sr, nil
}

func parseGCPs(n *xmlNode) ([]GCP, SpatialRef, error) {
	sr, err := parseSRS(n.attrOr("Projection", ""), n)
	if err != nil {
		return nil, sr, err
	}
	var gcps []GCP
	for _, g := range n.childrenNamed("GCP") {
		gcp := GCP{ID: g.attrOr("Id", ""), Info: g.attrOr("Info", "")}
		for _, f := range []struct {
			name string
			v    *float64
		}{{"Pixel", &gcp.Pixel}, {"Line", &gcp.Line}, {"X", &gcp.X}, {"Y", &gcp.Y}, {"Z", &gcp.Z}} {
			v, ok := g.attr(f.name)
			if !ok {
				continue
			}
			if *f.v, err = parseFloatText(v, "GCP "+f.name); err != nil {
				return nil, sr, err
			}
		}
		gcps = append(gcps, gcp)
	}
	return gcps, sr, nil
}

func parseMetadata(parent *xmlNode, mo *majorObject) error {
	for _, md := range parent.childrenNamed("Metadata") {
		dom := md.attrOr("domain", "")
		if isXMLDomain(dom) {
			if len(md.Children) == 0 {
				continue
			}
			doc, err := md.Children[0].clone().marshal(false)
			if err != nil {
				return err
			}
			mo.setItem(dom, "", string(doc))
			continue
		}
		for _, mdi := range md.childrenNamed("MDI") {
			key := mdi.attrOr("key", "")
			if key == "" {
				continue
			}
			mo.setItem(dom, key, mdi.Text)
		}
	}
	return nil
}

// parseBand builds band n (0 for masks) of ds from its VRTRasterBand element
func parseBand(ds *Dataset, n *xmlNode, idx int) (*Band, error) {
	dtype := Byte
	if dt, ok := n.attr("dataType"); ok {
		if dtype = ParseDataType(dt); dtype == Unknown {
			return nil, errorf(ErrInvalidInput, "band %d: invalid dataType %q", idx, dt)
		}
	}
	if bs, ok := n.attr("band"); ok && idx > 0 {
		v, err := strconv.Atoi(strings.TrimSpace(bs))
		if err != nil || v != idx {
			return nil, errorf(ErrInconsistentState, "band element %d has band=%q", idx, bs)
		}
	}

	want := bandSubclassFor(ds.subclass)
	subclass := n.attrOr("subClass", "")
	var impl bandImpl
	switch {
	case want != SourcedBand:
		if subclass != "" && subclass != want {
			return nil, errorf(ErrInvalidInput, "band %d: %s bands are not allowed in %s datasets", idx, subclass, ds.subclass)
		}
		impl = &kernelBand{band: want}
	case subclass == "" || subclass == SourcedBand:
		impl = &sourcedBand{}
	case subclass == DerivedBand:
		db, err := parseDerivedBand(n)
		if err != nil {
			return nil, err
		}
		impl = db
	case subclass == RawBand:
		rb, err := parseRawBand(n, dtype, ds.width)
		if err != nil {
			return nil, err
		}
		impl = rb
	default:
		return nil, errorf(ErrInvalidInput, "band %d: unknown subClass %q", idx, subclass)
	}

	b := newBand(ds, idx, dtype, impl)
	if err := parseBlockSize(n, "blockXSize", &b.blockX); err != nil {
		return nil, err
	}
	if err := parseBlockSize(n, "blockYSize", &b.blockY); err != nil {
		return nil, err
	}
	if err := parseBandProperties(b, n); err != nil {
		return nil, err
	}

	if sb := b.sourced(); sb != nil {
		for _, c := range n.Children {
			if !isSourceElement(c.name()) {
				continue
			}
			src, err := parseSource(c)
			if err != nil {
				_ = sb.close()
				return nil, errorf(ErrInvalidInput, "band %d: %w", idx, err)
			}
			if a, ok := src.(attacher); ok {
				a.attach(ds)
			}
			sb.sources = append(sb.sources, src)
		}
	}

	for _, on := range n.childrenNamed("Overview") {
		fn := on.child("SourceFilename")
		if fn == nil || fn.text() == "" {
			return nil, errorf(ErrInvalidInput, "band %d: Overview without SourceFilename", idx)
		}
		sb := 1
		if v, ok := on.childText("SourceBand"); ok && v != "" {
			var err error
			if sb, err = strconv.Atoi(v); err != nil || sb < 1 {
				return nil, errorf(ErrInvalidInput, "band %d: invalid Overview SourceBand %q", idx, v)
			}
		}
		b.overviews = append(b.overviews, &overviewRef{
			filename: fn.text(),
			relative: isTrue(fn.attrOr("relativeToVRT", "0")),
			srcBand:  sb,
		})
	}

	if mn := n.child("MaskBand"); mn != nil && idx > 0 {
		if bn := mn.child("VRTRasterBand"); bn != nil {
			m, err := parseBand(ds, bn, 0)
			if err != nil {
				return nil, err
			}
			m.parent = b
			b.mask = m
		}
	}
	return b, nil
}

// parseBandProperties reads the descriptive children of a band element
func parseBandProperties(b *Band, n *xmlNode) error {
	if v, ok := n.childText("Description"); ok {
		b.description = v
	}
	if v, ok := n.childText("UnitType"); ok {
		b.unit = v
	}
	if v, ok := n.childText("Offset"); ok {
		f, err := parseFloatText(v, "Offset")
		if err != nil {
			return err
		}
		b.offset, b.hasOffset = f, true
	}
	if v, ok := n.childText("Scale"); ok {
		f, err := parseFloatText(v, "Scale")
		if err != nil {
			return err
		}
		b.scale, b.hasScale = f, true
	}
	if v, ok := n.childText("NoDataValue"); ok {
		f, err := parseFloatText(v, "NoDataValue")
		if err != nil {
			return err
		}
		b.nodata, b.hasNoData = f, true
	}
	if v, ok := n.childText("HideNoDataValue"); ok {
		b.hideNoData = isTrue(v)
	}
	if v, ok := n.childText("ColorInterp"); ok {
		b.colorInterp = ParseColorInterp(v)
	}
	if cn := n.child("CategoryNames"); cn != nil {
		for _, c := range cn.childrenNamed("Category") {
			b.categories = append(b.categories, c.text())
		}
	}
	if ct := n.child("ColorTable"); ct != nil {
		b.colorTable.PaletteInterp = RGBPalette
		for _, e := range ct.childrenNamed("Entry") {
			var entry [4]int16
			for i, def := range []string{"0", "0", "0", "255"} {
				key := "c" + strconv.Itoa(i+1)
				v, err := strconv.Atoi(strings.TrimSpace(e.attrOr(key, def)))
				if err != nil {
					return errorf(ErrInvalidInput, "invalid color table entry %s=%q", key, e.attrOr(key, def))
				}
				entry[i] = int16(v)
			}
			b.colorTable.Entries = append(b.colorTable.Entries, entry)
		}
	}
	return parseMetadata(n, &b.majorObject)
}
