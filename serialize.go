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
	"fmt"
	"strconv"
	"strings"
)

const (
	defaultXMLRAMWarning = int64(1) << 30
	defaultXMLMaxSize    = int64(2) << 30
)

func (ds *Dataset) serializeDocument() ([]byte, error) {
	root, err := ds.serialize(ds.vrtDir)
	if err != nil {
		return nil, err
	}
	return root.marshal(true)
}

func (ds *Dataset) xmlSizeLimits() (warn, max int64) {
	warn, max = defaultXMLRAMWarning, defaultXMLMaxSize
	if v := ds.config.get("VRT_XML_RAM_WARNING", ""); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			warn = n
		}
	}
	if v := ds.config.get("VRT_XML_MAX_SIZE", ""); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			max = n
		}
	}
	return warn, max
}

// serialize builds the document of the dataset. vrtDir is the directory the
// document is written into.
func (ds *Dataset) serialize(vrtDir string) (*xmlNode, error) {
	root := newNode("VRTDataset")
	root.setAttr("rasterXSize", strconv.Itoa(ds.width)).
		setAttr("rasterYSize", strconv.Itoa(ds.height))
	if ds.subclass != PlainDataset {
		root.setAttr("subClass", ds.subclass)
	}
	if !ds.srs.IsEmpty() {
		serializeSRS(root.add("SRS"), ds.srs)
	}
	if ds.hasGT {
		root.addText("GeoTransform", formatGeoTransform(ds.gt))
	}
	serializeMetadata(root, &ds.majorObject)
	if len(ds.gcps) > 0 {
		serializeGCPs(root.add("GCPList"), ds.gcps, ds.gcpSRS)
	}
	if ds.subclass == WarpedDataset {
		root.addText("BlockXSize", strconv.Itoa(ds.blockX))
		root.addText("BlockYSize", strconv.Itoa(ds.blockY))
	}

	warn, max := ds.xmlSizeLimits()
	total := root.size()
	warned := false
	for _, b := range ds.bands {
		bn := b.serialize(vrtDir)
		total += bn.size()
		if total > max {
			return nil, errorf(ErrCapacity, "%s: serialized document exceeds %d bytes (VRT_XML_MAX_SIZE)", ds.desc, max)
		}
		if total > warn && !warned {
			warned = true
			if err := ds.diag().warnf("%s: serialized document uses more than %d bytes", ds.desc, warn); err != nil {
				return nil, err
			}
		}
		root.appendChild(bn)
	}
	if ds.subclassOptions != nil {
		root.appendChild(ds.subclassOptions.clone())
	}
	if ds.mask != nil {
		root.add("MaskBand").appendChild(ds.mask.serialize(vrtDir))
	}
	if len(ds.ovrFactors) > 0 {
		f := make([]string, len(ds.ovrFactors))
		for i, v := range ds.ovrFactors {
			f[i] = strconv.Itoa(v)
		}
		ol := root.addText("OverviewList", strings.Join(f, " "))
		if ds.ovrResampling != "" {
			ol.setAttr("resampling", ds.ovrResampling)
		}
	}
	return root, nil
}

func formatGeoTransform(gt [6]float64) string {
	s := make([]string, 6)
	for i, v := range gt {
		s[i] = fmt.Sprintf("%24.16e", v)
	}
	return strings.Join(s, ",")
}

// formatEpoch formats a coordinate epoch with at least one decimal
func formatEpoch(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}

func formatAxisMapping(m []int) string {
	s := make([]string, len(m))
	for i, v := range m {
		s[i] = strconv.Itoa(v)
	}
	return strings.Join(s, ",")
}

func serializeSRS(n *xmlNode, sr SpatialRef) {
	n.Text = sr.WKT
	if len(sr.AxisMapping) > 0 {
		n.setAttr("dataAxisToSRSAxisMapping", formatAxisMapping(sr.AxisMapping))
	}
	if sr.CoordinateEpoch != 0 {
		n.setAttr("coordinateEpoch", formatEpoch(sr.CoordinateEpoch))
	}
}

func serializeGCPs(n *xmlNode, gcps []GCP, sr SpatialRef) {
	if !sr.IsEmpty() {
		n.setAttr("Projection", sr.WKT)
		if len(sr.AxisMapping) > 0 {
			n.setAttr("dataAxisToSRSAxisMapping", formatAxisMapping(sr.AxisMapping))
		}
		if sr.CoordinateEpoch != 0 {
			n.setAttr("coordinateEpoch", formatEpoch(sr.CoordinateEpoch))
		}
	}
	for _, g := range gcps {
		gn := n.add("GCP").setAttr("Id", g.ID)
		if g.Info != "" {
			gn.setAttr("Info", g.Info)
		}
		gn.setAttr("Pixel", fmtFloat(g.Pixel)).
			setAttr("Line", fmtFloat(g.Line)).
			setAttr("X", fmtFloat(g.X)).
			setAttr("Y", fmtFloat(g.Y))
		if g.Z != 0 {
			gn.setAttr("Z", fmtFloat(g.Z))
		}
	}
}

func serializeMetadata(parent *xmlNode, mo *majorObject) {
	for _, dom := range mo.MetadataDomains() {
		keys, vals := mo.items(dom)
		md := parent.add("Metadata")
		if dom != "" {
			md.setAttr("domain", dom)
		}
		if isXMLDomain(dom) {
			md.setAttr("format", "xml")
			if doc, err := parseXML([]byte(vals[""])); err == nil {
				md.appendChild(doc)
			}
			continue
		}
		for _, k := range keys {
			md.addText("MDI", vals[k]).setAttr("key", k)
		}
	}
}

// serialize builds the VRTRasterBand element of the band
func (b *Band) serialize(vrtDir string) *xmlNode {
	n := newNode("VRTRasterBand")
	n.setAttr("dataType", b.dtype.String())
	if b.n > 0 {
		n.setAttr("band", strconv.Itoa(b.n))
	}
	if sc := b.impl.subclass(); sc != SourcedBand {
		n.setAttr("subClass", sc)
	}
	if b.blockX != b.ds.blockX || b.blockY != b.ds.blockY ||
		b.ds.blockX != defaultBlockSize(b.ds.width) || b.ds.blockY != defaultBlockSize(b.ds.height) {
		n.setAttr("blockXSize", strconv.Itoa(b.blockX)).
			setAttr("blockYSize", strconv.Itoa(b.blockY))
	}
	if b.description != "" {
		n.addText("Description", b.description)
	}
	if b.unit != "" {
		n.addText("UnitType", b.unit)
	}
	if b.hasOffset || b.offset != 0 {
		n.addText("Offset", fmtFloat(b.offset))
	}
	if b.hasScale || b.scale != 1 {
		n.addText("Scale", fmtFloat(b.scale))
	}
	if len(b.categories) > 0 {
		cn := n.add("CategoryNames")
		for _, c := range b.categories {
			cn.addText("Category", c)
		}
	}
	if len(b.colorTable.Entries) > 0 {
		ct := n.add("ColorTable")
		for _, e := range b.colorTable.Entries {
			ct.add("Entry").
				setAttr("c1", strconv.Itoa(int(e[0]))).
				setAttr("c2", strconv.Itoa(int(e[1]))).
				setAttr("c3", strconv.Itoa(int(e[2]))).
				setAttr("c4", strconv.Itoa(int(e[3])))
		}
	}
	if b.hasNoData {
		n.addText("NoDataValue", fmtFloat(b.nodata))
		if b.hideNoData {
			n.addText("HideNoDataValue", "1")
		}
	}
	if b.colorInterp != CIUndefined {
		n.addText("ColorInterp", b.colorInterp.Name())
	}
	serializeMetadata(n, &b.majorObject)
	for _, o := range b.overviews {
		on := n.add("Overview")
		on.addText("SourceFilename", o.filename).setAttr("relativeToVRT", boolAttr(o.relative))
		on.addText("SourceBand", strconv.Itoa(o.srcBand))
	}
	if b.mask != nil {
		n.add("MaskBand").appendChild(b.mask.serialize(vrtDir))
	}
	b.impl.serialize(b, n, vrtDir)
	return n
}
