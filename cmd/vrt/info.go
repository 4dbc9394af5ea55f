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

package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/airbusgeo/vrt"
	"github.com/spf13/cobra"
)

var withChecksum bool
var withXML bool
var openOptions []string

func init() {
	infoCommand.Flags().BoolVar(&withChecksum, "checksum", false, "compute the checksum of each band")
	infoCommand.Flags().BoolVar(&withXML, "xml", false, "print the document of virtual datasets")
	infoCommand.Flags().StringArrayVar(&openOptions, "oo", nil, "KEY=VALUE open option, may be repeated")
}

var infoCommand = &cobra.Command{
	Use:   "info dataset",
	Short: "describe a raster",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, err := openAny(cmd.Context(), args[0], vrt.DriverOpenOption(openOptions...))
		if err != nil {
			return err
		}
		defer ds.Close()
		return info(cmd.OutOrStdout(), ds)
	},
}

func info(w io.Writer, ds vrt.SourceDataset) error {
	st := ds.Structure()
	fmt.Fprintf(w, "Description: %s\n", ds.Description())
	fmt.Fprintf(w, "Size is %d, %d\n", st.SizeX, st.SizeY)
	if gt, err := ds.GeoTransform(); err == nil {
		fmt.Fprintf(w, "Origin = (%.15f,%.15f)\n", gt[0], gt[3])
		fmt.Fprintf(w, "Pixel Size = (%.15f,%.15f)\n", gt[1], gt[5])
	}
	if sr := ds.SpatialRef(); !sr.IsEmpty() {
		fmt.Fprintf(w, "Coordinate System is:\n%s\n", sr.WKT)
	}
	if md := ds.Metadatas(); len(md) > 0 {
		fmt.Fprintln(w, "Metadata:")
		for _, k := range sortedKeys(md) {
			fmt.Fprintf(w, "  %s=%s\n", k, md[k])
		}
	}
	vds, _ := ds.(*vrt.Dataset)
	for i := 1; i <= st.NBands; i++ {
		b, err := ds.RasterBand(i)
		if err != nil {
			return err
		}
		bst := b.Structure()
		fmt.Fprintf(w, "Band %d Block=%dx%d Type=%s, ColorInterp=%s\n", i,
			bst.BlockSizeX, bst.BlockSizeY, bst.DataType, b.ColorInterp().Name())
		if nd, ok := b.NoData(); ok {
			fmt.Fprintf(w, "  NoData Value=%g\n", nd)
		}
		if ovrs := b.Overviews(); len(ovrs) > 0 {
			sizes := make([]string, len(ovrs))
			for j, o := range ovrs {
				ost := o.Structure()
				sizes[j] = fmt.Sprintf("%dx%d", ost.SizeX, ost.SizeY)
			}
			fmt.Fprintf(w, "  Overviews: %s\n", strings.Join(sizes, ", "))
		}
		if vds != nil {
			vb := vds.Bands()[i-1]
			for _, s := range vb.Sources() {
				dw := s.DstWindow()
				fmt.Fprintf(w, "  %s at %g,%g %gx%g\n", s.Kind(), dw.XOff, dw.YOff, dw.XSize, dw.YSize)
			}
		}
		if withChecksum {
			sum, err := vrt.Checksum(b)
			if err != nil {
				return fmt.Errorf("band %d checksum: %w", i, err)
			}
			fmt.Fprintf(w, "  Checksum=%d\n", sum)
		}
	}
	if withXML && vds != nil {
		doc, err := vds.XML()
		if err != nil {
			return err
		}
		fmt.Fprintln(w, doc)
	}
	return nil
}

var checksumBands []int

func init() {
	checksumCommand.Flags().IntSliceVar(&checksumBands, "bands", nil, "bands to checksum, all by default")
}

var checksumCommand = &cobra.Command{
	Use:   "checksum dataset",
	Short: "print the checksum of the bands of a raster",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, err := openAny(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		defer ds.Close()
		bands := checksumBands
		if len(bands) == 0 {
			for i := 1; i <= ds.Structure().NBands; i++ {
				bands = append(bands, i)
			}
		}
		for _, n := range bands {
			b, err := ds.RasterBand(n)
			if err != nil {
				return err
			}
			sum, err := vrt.Checksum(b)
			if err != nil {
				return fmt.Errorf("band %d: %w", n, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d\n", sum)
		}
		return nil
	},
}

func sortedKeys(md map[string]string) []string {
	keys := make([]string, 0, len(md))
	for k := range md {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
