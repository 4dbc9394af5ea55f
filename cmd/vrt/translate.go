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
	"strconv"

	"github.com/airbusgeo/vrt"
	"github.com/spf13/cobra"
)

var translateCommand = &cobra.Command{
	Use:   "translate [flags] -- infile outfile [gdal_translate switches]*",
	Short: "create a virtual raster exposing a transformed input",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		infile, outfile := args[0], args[1]
		src, err := openAny(ctx, infile)
		if err != nil {
			return fmt.Errorf("open %s: %w", infile, err)
		}
		defer src.Close()

		ob, oo := gsparse(outfile)
		dst := outfile
		if ob != "" {
			dst = ""
		}
		ds, err := vrt.Translate(dst, src, args[2:])
		if err != nil {
			return fmt.Errorf("translate: %w", err)
		}
		if ob == "" {
			if err := ds.Close(); err != nil {
				return fmt.Errorf("close %s: %w", outfile, err)
			}
			return nil
		}
		defer ds.Close()
		doc, err := ds.XML()
		if err != nil {
			return err
		}
		w := gsClient.Bucket(ob).Object(oo).NewWriter(ctx)
		if _, err := w.Write([]byte(doc)); err != nil {
			w.Close()
			return fmt.Errorf("write %s: %w", outfile, err)
		}
		if err := w.Close(); err != nil {
			return fmt.Errorf("close %s: %w", outfile, err)
		}
		return nil
	},
}

var overviewsResampling string

func init() {
	overviewsCommand.Flags().StringVarP(&overviewsResampling, "resampling", "r", "nearest", "resampling of the overviews")
}

var overviewsCommand = &cobra.Command{
	Use:   "overviews file.vrt [levels]*",
	Short: "declare the overview factors of a virtual raster, or remove them if no level is given",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		alg, err := vrt.ParseResampling(overviewsResampling)
		if err != nil {
			return err
		}
		levels := make([]int, 0, len(args)-1)
		for _, a := range args[1:] {
			l, err := strconv.Atoi(a)
			if err != nil {
				return fmt.Errorf("invalid level %q", a)
			}
			levels = append(levels, l)
		}
		ds, err := vrt.Open(args[0], vrt.ConfigOption("VRT_VIRTUAL_OVERVIEWS=YES"))
		if err != nil {
			return err
		}
		if err := ds.BuildOverviews(alg, levels...); err != nil {
			_ = ds.Close()
			return err
		}
		return ds.Close()
	},
}
