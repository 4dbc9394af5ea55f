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
	"strings"
	"sync"

	"github.com/spf13/afero"
)

//DriverName is the name of a registered Driver
type DriverName string

const (
	//VRT is a virtual raster
	VRT DriverName = "VRT"
	//Memory is an in memory raster
	Memory DriverName = "MEM"
)

// OpenRequest holds the parameters passed to Driver.Open
type OpenRequest struct {
	// Name is the dataset name, a path, an URI or an inline document
	Name string
	// Options are the driver specific open options, as KEY=VALUE strings
	Options []string
	// Config are the call scoped configuration options, as KEY=VALUE strings
	Config []string
	// Fs is the filesystem to read files from
	Fs           afero.Fs
	ErrorHandler ErrorHandler
	Pool         WorkerPool
}

// Driver opens datasets that can be referenced by virtual rasters
type Driver interface {
	Name() DriverName
	// Identify returns true if the driver may be able to open name
	Identify(name string) bool
	Open(req OpenRequest) (SourceDataset, error)
}

var driversMu sync.RWMutex
var drivers []Driver

func init() {
	drivers = []Driver{vrtDriver{}, memDriver{}}
}

// RegisterDriver makes drv available to OpenSource and to the sources of virtual
// datasets. Drivers are tried in registration order, after the built-in VRT and
// MEM drivers. Registering a driver twice under the same name is a no-op.
func RegisterDriver(drv Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	for _, d := range drivers {
		if d.Name() == drv.Name() {
			return
		}
	}
	drivers = append(drivers, drv)
}

func registeredDrivers() []Driver {
	driversMu.RLock()
	defer driversMu.RUnlock()
	return append([]Driver(nil), drivers...)
}

// OpenSource opens name with the first registered driver that identifies it.
//
// The OVERVIEW_LEVEL=n open option is honored for every driver: the returned
// dataset exposes the n'th (0-based) overview of each band instead of the band.
// OVERVIEW_LEVEL=NONE exposes the full resolution bands without their overviews.
func OpenSource(name string, opts ...OpenOption) (SourceDataset, error) {
	oo := openOpts{}
	for _, o := range opts {
		o.setOpenOpt(&oo)
	}
	return openSource(name, oo)
}

func openSource(name string, oo openOpts) (SourceDataset, error) {
	if oo.fs == nil {
		oo.fs = afero.NewOsFs()
	}
	ovrLevel := -1
	if v, ok := fetchKeyValue(oo.open, "OVERVIEW_LEVEL"); ok {
		if strings.EqualFold(v, "NONE") {
			ovrLevel = noOverviewLevel
		} else {
			n, err := parseIntOption("OVERVIEW_LEVEL", v)
			if err != nil {
				return nil, err
			}
			if n < 0 {
				return nil, errorf(ErrInvalidInput, "invalid OVERVIEW_LEVEL %d", n)
			}
			ovrLevel = n
		}
		oo.open = removeKeyValue(oo.open, "OVERVIEW_LEVEL")
	}
	req := OpenRequest{
		Name:         name,
		Options:      oo.open,
		Config:       oo.config,
		Fs:           oo.fs,
		ErrorHandler: oo.errorHandler,
		Pool:         oo.pool,
	}
	var tried []string
	for _, drv := range registeredDrivers() {
		if len(oo.drivers) > 0 && !driverAllowed(drv.Name(), oo.drivers) {
			continue
		}
		if !drv.Identify(name) {
			continue
		}
		tried = append(tried, string(drv.Name()))
		ds, err := drv.Open(req)
		if err != nil {
			return nil, asKind(ErrIOFailure, err)
		}
		if ovrLevel != -1 {
			return newOverviewLevelDataset(ds, ovrLevel)
		}
		return ds, nil
	}
	if len(tried) == 0 {
		return nil, errorf(ErrIOFailure, "%s: no registered driver can open this dataset", name)
	}
	return nil, errorf(ErrIOFailure, "%s: not recognized by %s", name, strings.Join(tried, ","))
}

func driverAllowed(name DriverName, allowed []string) bool {
	for _, a := range allowed {
		if strings.EqualFold(a, string(name)) {
			return true
		}
	}
	return false
}

type vrtDriver struct{}

func (vrtDriver) Name() DriverName {
	return VRT
}

func (vrtDriver) Identify(name string) bool {
	tn := strings.TrimSpace(name)
	return strings.HasPrefix(tn, "<VRTDataset") ||
		strings.HasPrefix(name, protocolPrefix) ||
		strings.HasSuffix(strings.ToLower(name), ".vrt")
}

func (vrtDriver) Open(req OpenRequest) (SourceDataset, error) {
	oo := openOpts{
		config:       req.Config,
		open:         req.Options,
		fs:           req.Fs,
		pool:         req.Pool,
		errorHandler: req.ErrorHandler,
	}
	ds, err := openDataset(req.Name, oo)
	if err != nil {
		return nil, err
	}
	return ds, nil
}
