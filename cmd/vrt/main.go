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

// Command vrt inspects, creates and checks virtual rasters.
//
//	vrt translate -- in.tif out.vrt -srcwin 0 0 512 512 -b 1
//	vrt info --checksum out.vrt
//	vrt info "vrt://in.tif?bands=3,2,1&outsize=50%,50%"
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/airbusgeo/godal"
	"github.com/airbusgeo/osio"
	"github.com/airbusgeo/vrt"
	"github.com/airbusgeo/vrt/gcs"
	"github.com/airbusgeo/vrt/gdalsource"
	"github.com/spf13/cobra"
)

var configs []string
var configFile string
var numThreads string
var blockSize string
var numCachedBlocks int

func init() {
	rootCommand.PersistentFlags().StringArrayVar(&configs, "config", nil, "KEY=VALUE configuration option, may be repeated")
	rootCommand.PersistentFlags().StringVar(&configFile, "config-file", "", "yaml file of configuration options")
	rootCommand.PersistentFlags().StringVar(&numThreads, "threads", "", "number of threads used to read sources (a number or ALL_CPUS)")
	rootCommand.PersistentFlags().StringVarP(&blockSize, "gs.blocksize", "b", "512k", "gs:// block size")
	rootCommand.PersistentFlags().IntVarP(&numCachedBlocks, "gs.numblocks", "n", 512, "number of gs:// blocks to cache")
	rootCommand.AddCommand(infoCommand, translateCommand, checksumCommand, overviewsCommand)
}

func main() {
	err := rootCommand.Execute()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

var rootCommand = &cobra.Command{
	Use:           "vrt",
	Short:         "virtual raster toolbox",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configFile != "" {
			f, err := os.Open(configFile)
			if err != nil {
				return fmt.Errorf("open config file: %w", err)
			}
			err = vrt.LoadConfig(f)
			f.Close()
			if err != nil {
				return err
			}
		}
		for _, c := range configs {
			k, v, ok := strings.Cut(c, "=")
			if !ok {
				return fmt.Errorf("invalid config option %q, expecting KEY=VALUE", c)
			}
			vrt.SetConfigOption(k, v)
		}
		if numThreads != "" {
			vrt.SetConfigOption("VRT_NUM_THREADS", numThreads)
		}
		gdalsource.Register()
		for _, a := range args {
			if strings.Contains(a, "gs://") {
				return registerGS(cmd.Context())
			}
		}
		return nil
	},
}

var gsOnce sync.Once
var gsErr error
var gsClient *storage.Client

// registerGS makes gs:// objects readable by gdal sources, raw bands and
// dataset loading
func registerGS(ctx context.Context) error {
	gsOnce.Do(func() {
		if ctx == nil {
			ctx = context.Background()
		}
		bs, err := parseSize(blockSize)
		if err != nil {
			gsErr = err
			return
		}
		gsClient, err = storage.NewClient(ctx)
		if err != nil {
			gsErr = fmt.Errorf("failed to create gcs storage client: %w", err)
			return
		}
		gs, err := osio.GCSHandle(ctx, osio.GCSClient(gsClient))
		if err != nil {
			gsErr = fmt.Errorf("osio.gcshandle: %w", err)
			return
		}
		gsa, err := osio.NewAdapter(gs, osio.BlockSize(blockSize), osio.NumCachedBlocks(numCachedBlocks))
		if err != nil {
			gsErr = fmt.Errorf("osio.newadapter: %w", err)
			return
		}
		if err = godal.RegisterVSIHandler("gs://", gsa); err != nil {
			gsErr = fmt.Errorf("godal.registervsihandler: %w", err)
			return
		}
		gsErr = gcs.RegisterHandler(ctx, gcs.Client(gsClient), gcs.BlockSize(bs),
			gcs.CacheSize(bs*numCachedBlocks))
	})
	return gsErr
}

func gsparse(file string) (bucket, object string) {
	if !strings.HasPrefix(file, "gs://") {
		return
	}
	bucket, object, _ = strings.Cut(file[5:], "/")
	object = strings.Trim(object, "/")
	if object == "" {
		bucket = ""
	}
	return
}

// openAny opens a virtual dataset, a vrt:// URI or any raster gdal can read.
// Virtual datasets stored on gs:// are downloaded and opened inline.
func openAny(ctx context.Context, name string, opts ...vrt.OpenOption) (vrt.SourceDataset, error) {
	if b, o := gsparse(name); b != "" && strings.HasSuffix(strings.ToLower(o), ".vrt") {
		r, err := gsClient.Bucket(b).Object(o).NewReader(ctx)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		defer r.Close()
		buf := strings.Builder{}
		if _, err := copyLimited(&buf, r); err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		return vrt.Open(buf.String(), opts...)
	}
	return vrt.OpenSource(name, opts...)
}
