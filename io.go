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

// sliceFrom returns buffer[off:] for a typed slice buffer
func sliceFrom(buffer interface{}, off int) interface{} {
	switch b := buffer.(type) {
	case []byte:
		return b[off:]
	case []int8:
		return b[off:]
	case []int16:
		return b[off:]
	case []uint16:
		return b[off:]
	case []int32:
		return b[off:]
	case []uint32:
		return b[off:]
	case []int64:
		return b[off:]
	case []uint64:
		return b[off:]
	case []float32:
		return b[off:]
	case []float64:
		return b[off:]
	default:
		return buffer
	}
}

func parseDatasetIOOpts(opts []DatasetIOOption, bufWidth, bufHeight, nBands int) datasetIOOpts {
	ro := datasetIOOpts{}
	for _, o := range opts {
		o.setDatasetIOOpt(&ro)
	}
	if ro.dsWidth == 0 {
		ro.dsWidth = bufWidth
	}
	if ro.dsHeight == 0 {
		ro.dsHeight = bufHeight
	}
	if len(ro.bands) == 0 {
		ro.bands = make([]int, nBands)
		for i := range ro.bands {
			ro.bands[i] = i + 1
		}
	}
	return ro
}

// bandIOOptsFor converts the options of a dataset read into the options of the
// read of one of its bands, writing into layout l of buffer
func bandIOOptsFor(ro datasetIOOpts, l bufLayout) []BandIOOption {
	esz := l.acc.dataType().Size()
	ret := []BandIOOption{
		Window(ro.dsWidth, ro.dsHeight),
		PixelSpacing(l.pixel * esz),
		LineSpacing(l.line * esz),
		chainOpt{ro.chain},
	}
	if ro.resamplingSet {
		ret = append(ret, Resampling(ro.resampling))
	}
	if len(ro.config) > 0 {
		ret = append(ret, ConfigOption(ro.config...))
	}
	if ro.errorHandler != nil {
		ret = append(ret, ErrLogger(ro.errorHandler))
	}
	if ro.skipOverviews {
		ret = append(ret, skipOverviewsOpt{})
	}
	return ret
}

// readBandByBand implements a dataset read as a sequence of band reads
func readBandByBand(sizeX, sizeY int, band func(n int) (SourceBand, error), nBands int,
	srcX, srcY int, buffer interface{}, bufWidth, bufHeight int, opts []DatasetIOOption) error {
	ro := parseDatasetIOOpts(opts, bufWidth, bufHeight, nBands)
	if err := checkWindow(sizeX, sizeY, srcX, srcY, ro.dsWidth, ro.dsHeight); err != nil {
		return err
	}
	layouts, err := datasetLayouts(buffer, len(ro.bands), bufWidth, bufHeight, ro.bandInterleave,
		ro.pixelSpacing, ro.lineSpacing, ro.bandSpacing)
	if err != nil {
		return err
	}
	for i, bn := range ro.bands {
		b, err := band(bn)
		if err != nil {
			return err
		}
		l := layouts[i]
		if err := b.Read(srcX, srcY, sliceFrom(buffer, l.off), bufWidth, bufHeight, bandIOOptsFor(ro, l)...); err != nil {
			return err
		}
		if ro.progress != nil && !ro.progress(float64(i+1)/float64(len(ro.bands))) {
			return errorf(ErrInvalidInput, "read interrupted by progress callback")
		}
	}
	return nil
}

// noOverviewLevel selects the full resolution bands, hiding their overviews
const noOverviewLevel = -2

// overviewLevelDataset exposes a fixed overview level of every band of a dataset
type overviewLevelDataset struct {
	ds    SourceDataset
	level int
	bands []SourceBand
}

func newOverviewLevelDataset(ds SourceDataset, level int) (SourceDataset, error) {
	st := ds.Structure()
	ovl := &overviewLevelDataset{ds: ds, level: level}
	for i := 1; i <= st.NBands; i++ {
		b, err := ds.RasterBand(i)
		if err != nil {
			_ = ds.Close()
			return nil, err
		}
		if level == noOverviewLevel {
			ovl.bands = append(ovl.bands, fullResBand{b})
			continue
		}
		ovrs := b.Overviews()
		if level >= len(ovrs) {
			_ = ds.Close()
			return nil, errorf(ErrIOFailure, "%s: band %d has no overview level %d", ds.Description(), i, level)
		}
		ovl.bands = append(ovl.bands, ovrs[level])
	}
	return ovl, nil
}

func (o *overviewLevelDataset) Structure() DatasetStructure {
	st := o.ds.Structure()
	if len(o.bands) > 0 {
		st.BandStructure = o.bands[0].Structure()
	}
	return st
}

func (o *overviewLevelDataset) RasterBand(n int) (SourceBand, error) {
	if n < 1 || n > len(o.bands) {
		return nil, errorf(ErrInvalidInput, "invalid band number %d", n)
	}
	return o.bands[n-1], nil
}

func (o *overviewLevelDataset) GeoTransform() ([6]float64, error) {
	gt, err := o.ds.GeoTransform()
	if err != nil {
		return gt, err
	}
	full, ovr := o.ds.Structure(), o.Structure()
	rx := float64(full.SizeX) / float64(ovr.SizeX)
	ry := float64(full.SizeY) / float64(ovr.SizeY)
	gt[1] *= rx
	gt[2] *= ry
	gt[4] *= rx
	gt[5] *= ry
	return gt, nil
}

func (o *overviewLevelDataset) SpatialRef() SpatialRef {
	return o.ds.SpatialRef()
}

func (o *overviewLevelDataset) Description() string {
	return o.ds.Description()
}

func (o *overviewLevelDataset) Metadatas(opts ...MetadataOption) map[string]string {
	return o.ds.Metadatas(opts...)
}

func (o *overviewLevelDataset) Read(srcX, srcY int, buffer interface{}, bufWidth, bufHeight int, opts ...DatasetIOOption) error {
	st := o.Structure()
	return readBandByBand(st.SizeX, st.SizeY, o.RasterBand, len(o.bands), srcX, srcY, buffer, bufWidth, bufHeight, opts)
}

func (o *overviewLevelDataset) Close(opts ...CloseOption) error {
	return o.ds.Close(opts...)
}
