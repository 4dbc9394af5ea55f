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
	"sort"
	"strconv"
)

// resetOverviews drops the overview datasets built so far. They are rebuilt on
// the next request.
func (ds *Dataset) resetOverviews() {
	ds.ovrMu.Lock()
	ovrs := ds.ovrs
	if ds.building {
		ds.ovrMu.Unlock()
		return
	}
	ds.ovrs, ds.ovrBuilt = nil, false
	ds.ovrMu.Unlock()
	for _, o := range ovrs {
		_ = o.Close()
	}
}

// sidecar returns the external .ovr file of the dataset, if any
func (ds *Dataset) sidecar() SourceDataset {
	ds.ovrMu.Lock()
	defer ds.ovrMu.Unlock()
	if ds.sidecarDone {
		return ds.sidecarDS
	}
	ds.sidecarDone = true
	if !ds.persistent() || hasScheme(ds.desc) {
		return nil
	}
	name := ds.desc + ".ovr"
	if _, err := ds.fs.Stat(name); err != nil {
		return nil
	}
	sc, err := openSource(name, openOpts{config: ds.config, fs: ds.fs, pool: ds.pool, errorHandler: ds.eh})
	if err != nil {
		ds.diag().debugf("%s: ignoring overview file: %v", ds.desc, err)
		return nil
	}
	ds.sidecarDS = sc
	return sc
}

// overviewDatasets returns the overview datasets of the dataset, built from its
// OverviewList or from the overviews of its sources
func (ds *Dataset) overviewDatasets() []*Dataset {
	ds.ovrMu.Lock()
	if ds.ovrBuilt || ds.building || ds.closed {
		ovrs := ds.ovrs
		ds.ovrMu.Unlock()
		return ovrs
	}
	ds.building = true
	ds.ovrMu.Unlock()

	var ovrs []*Dataset
	if len(ds.ovrFactors) > 0 {
		ovrs = ds.buildListedOverviews()
	} else {
		ovrs = ds.buildVirtualOverviews()
	}

	ds.ovrMu.Lock()
	ds.ovrs, ds.ovrBuilt, ds.building = ovrs, true, false
	ds.ovrMu.Unlock()
	return ovrs
}

// buildListedOverviews builds one reduced copy of the dataset per factor of the
// OverviewList
func (ds *Dataset) buildListedOverviews() []*Dataset {
	factors := append([]int(nil), ds.ovrFactors...)
	sort.Ints(factors)
	alg := Nearest
	if ds.ovrResampling != "" {
		if a, err := ParseResampling(ds.ovrResampling); err == nil {
			alg = a
		} else {
			_ = ds.diag().warnf("%s: %v", ds.desc, err)
		}
	}
	var ovrs []*Dataset
	lastW, lastH := ds.width, ds.height
	for _, f := range factors {
		w, h := (ds.width+f-1)/f, (ds.height+f-1)/f
		if w >= lastW || h >= lastH {
			continue
		}
		ovr, err := Translate("", borrowedDataset{ds}, []string{
			"-outsize", strconv.Itoa(w), strconv.Itoa(h),
			"-r", alg.String(),
		}, fullResTranslateOpt{}, ConfigOption(ds.config...), ErrLogger(ds.eh))
		if err != nil {
			_ = ds.diag().warnf("%s: cannot build overview %d: %v", ds.desc, f, err)
			continue
		}
		ovr.dirty = false
		ovrs = append(ovrs, ovr)
		lastW, lastH = w, h
	}
	return ovrs
}

// singleSource returns the only source of a sourced band, if it is a simple or
// complex source
func singleSource(b *Band) *SimpleSource {
	sb, ok := b.impl.(*sourcedBand)
	if !ok || len(sb.sources) != 1 {
		return nil
	}
	switch s := sb.sources[0].(type) {
	case *SimpleSource:
		if s.kind == SimpleSourceKind {
			return s
		}
	case *ComplexSource:
		return s.SimpleSource
	}
	return nil
}

// matchOverview returns the index of the overview of b whose size is the
// closest to w x h within tol pixels
func matchOverview(ovrs []SourceBand, w, h float64, tol float64) int {
	best, bestDist := -1, 0.0
	for i, o := range ovrs {
		st := o.Structure()
		dx, dy := float64(st.SizeX)-w, float64(st.SizeY)-h
		if dx < 0 {
			dx = -dx
		}
		if dy < 0 {
			dy = -dy
		}
		if dx > tol || dy > tol {
			continue
		}
		if best < 0 || dx+dy < bestDist {
			best, bestDist = i, dx+dy
		}
	}
	return best
}

// buildVirtualOverviews mirrors the overviews of the sources of a dataset made
// of a single source per band
func (ds *Dataset) buildVirtualOverviews() []*Dataset {
	if len(ds.bands) == 0 || ds.subclass != PlainDataset {
		return nil
	}
	srcs := make([]*SimpleSource, len(ds.bands))
	for i, b := range ds.bands {
		if srcs[i] = singleSource(b); srcs[i] == nil {
			return nil
		}
	}
	first, err := srcs[0].resolve()
	if err != nil {
		return nil
	}
	refOvrs := first.Overviews()
	if len(refOvrs) == 0 {
		return nil
	}
	refSt := first.Structure()

	var ovrs []*Dataset
	lastW, lastH := ds.width, ds.height
	for _, ro := range refOvrs {
		ost := ro.Structure()
		rx := float64(ost.SizeX) / float64(refSt.SizeX)
		ry := float64(ost.SizeY) / float64(refSt.SizeY)
		w, h := round(float64(ds.width)*rx), round(float64(ds.height)*ry)
		if w <= 0 || h <= 0 || w >= lastW || h >= lastH {
			continue
		}
		small := w < ds.blockX || h < ds.blockY
		ovr, ok := ds.virtualOverview(srcs, w, h, small)
		if !ok {
			if small {
				break
			}
			continue
		}
		ovrs = append(ovrs, ovr)
		lastW, lastH = w, h
	}
	return ovrs
}

// virtualOverview builds a w x h copy of the dataset whose sources read the
// matching overview of the original sources. exact requires overview sizes to
// match without tolerance.
func (ds *Dataset) virtualOverview(srcs []*SimpleSource, w, h int, exact bool) (*Dataset, bool) {
	ovr := newDataset("", ds.fs, w, h)
	ovr.registry, ovr.ownsRegistry = ds.registry, false
	ovr.config, ovr.eh, ovr.pool, ovr.numThreads = ds.config, ds.eh, ds.pool, ds.numThreads
	ovr.gt, ovr.hasGT, ovr.srs = ds.gt, ds.hasGT, ds.srs
	if ds.hasGT {
		sx, sy := float64(ds.width)/float64(w), float64(ds.height)/float64(h)
		ovr.gt[1] *= sx
		ovr.gt[2] *= sy
		ovr.gt[4] *= sx
		ovr.gt[5] *= sy
	}
	tol := 1.0
	if exact {
		tol = 0
	}
	dx, dy := float64(w)/float64(ds.width), float64(h)/float64(ds.height)
	for i, b := range ds.bands {
		s := srcs[i]
		sb, err := s.resolve()
		if err != nil {
			return nil, false
		}
		st := sb.Structure()
		bovrs := sb.Overviews()
		level := matchOverview(bovrs, float64(st.SizeX)*dx, float64(st.SizeY)*dy, tol)
		if level < 0 {
			return nil, false
		}
		handle, err := s.dataset()
		if err != nil {
			return nil, false
		}
		lds, err := newOverviewLevelDataset(borrowedDataset{handle}, level)
		if err != nil {
			return nil, false
		}
		ost := bovrs[level].Structure()
		srx, sry := float64(ost.SizeX)/float64(st.SizeX), float64(ost.SizeY)/float64(st.SizeY)
		src, err := s.SrcWindow()
		if err != nil {
			return nil, false
		}
		dst := s.DstWindow()
		so := sourceOpts{
			srcRect:    &Rect{src.XOff * srx, src.YOff * sry, src.XSize * srx, src.YSize * sry},
			dstRect:    &Rect{dst.XOff * dx, dst.YOff * dy, dst.XSize * dx, dst.YSize * dy},
			resampling: s.resampling,
			open:       append(append([]string(nil), s.openOptions...), "OVERVIEW_LEVEL="+strconv.Itoa(level)),
			bandList:   s.bandList,
			relative:   s.relative,
			notShared:  !s.shared,
			mask:       s.mask,
			handle:     lds,
		}
		var clone Source
		if cs, ok := ds.bands[i].impl.(*sourcedBand).sources[0].(*ComplexSource); ok {
			cs.copyOpts(&so)
			clone, err = newComplexSource(cs.kind, s.filename, s.srcBand, so)
		} else {
			clone, err = newSimpleSource(s.kind, s.filename, s.srcBand, so)
		}
		if err != nil {
			return nil, false
		}
		ob := newBand(ovr, i+1, b.dtype, &sourcedBand{})
		ob.nodata, ob.hasNoData = b.nodata, b.hasNoData
		ob.colorInterp = b.colorInterp
		ob.colorTable = b.colorTable
		ob.scale, ob.offset = b.scale, b.offset
		if a, ok := clone.(attacher); ok {
			a.attach(ovr)
		}
		ob.impl.(*sourcedBand).sources = []Source{clone}
		ovr.bands = append(ovr.bands, ob)
	}
	ovr.dirty = false
	return ovr, true
}

// BuildOverviews declares overviews of the dataset, one per decimation factor,
// computed on the fly from the dataset itself with the given resampling. It
// requires the VRT_VIRTUAL_OVERVIEWS configuration option. Calling it without
// levels removes the declared overviews.
func (ds *Dataset) BuildOverviews(alg ResamplingAlg, levels ...int) error {
	d := ds.diag()
	if !isTrue(ds.config.get("VRT_VIRTUAL_OVERVIEWS", "NO")) {
		return d.fail(errorf(ErrUnsupported, "%s: building overviews needs VRT_VIRTUAL_OVERVIEWS=YES", ds.desc))
	}
	var factors []int
	seen := map[int]bool{}
	for _, l := range levels {
		if l <= 1 {
			return d.fail(errorf(ErrInvalidInput, "invalid overview factor %d", l))
		}
		if !seen[l] {
			seen[l] = true
			factors = append(factors, l)
		}
	}
	sort.Ints(factors)
	ds.ovrFactors = factors
	ds.ovrResampling = ""
	if len(factors) > 0 {
		ds.ovrResampling = alg.String()
	}
	ds.setDirty()
	return nil
}

// OverviewFactors returns the decimation factors of the declared overview list
// and its resampling
func (ds *Dataset) OverviewFactors() ([]int, string) {
	return append([]int(nil), ds.ovrFactors...), ds.ovrResampling
}
