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

const protocolPrefix = "vrt://"

// protocolSwitch maps the keys of vrt:// URIs to translate switches, with the
// number of comma separated values they take (-1 for none, 0 for any)
var protocolSwitch = map[string]struct {
	sw     string
	values int
}{
	"bands":         {"-b", 0},
	"a_nodata":      {"-a_nodata", 1},
	"a_srs":         {"-a_srs", 1},
	"a_ullr":        {"-a_ullr", 4},
	"a_gt":          {"-a_gt", 6},
	"a_scale":       {"-a_scale", 1},
	"a_offset":      {"-a_offset", 1},
	"a_coord_epoch": {"-a_coord_epoch", 1},
	"ot":            {"-ot", 1},
	"gcp":           {"-gcp", 0},
	"scale":         {"-scale", 0},
	"exponent":      {"-exponent", 1},
	"ovr":           {"-ovr", 1},
	"expand":        {"-expand", 1},
	"outsize":       {"-outsize", 2},
	"projwin":       {"-projwin", 4},
	"projwin_srs":   {"-projwin_srs", 1},
	"tr":            {"-tr", 2},
	"r":             {"-r", 1},
	"srcwin":        {"-srcwin", 4},
	"unscale":       {"-unscale", -1},
	"nogcp":         {"-nogcp", -1},
	"epo":           {"-epo", -1},
	"eco":           {"-eco", -1},
}

// splitProtocol splits a vrt:// URI into the path of its source and its
// key/value options. The path may be enclosed in braces when it contains '?'.
func splitProtocol(uri string) (string, [][2]string, error) {
	rest := strings.TrimPrefix(uri, protocolPrefix)
	var path, query string
	if strings.HasPrefix(rest, "{") {
		end := strings.Index(rest, "}")
		if end < 0 {
			return "", nil, errorf(ErrInvalidInput, "%s: missing closing brace", uri)
		}
		path, rest = rest[1:end], rest[end+1:]
		if rest != "" && !strings.HasPrefix(rest, "?") {
			return "", nil, errorf(ErrInvalidInput, "%s: unexpected %q after path", uri, rest)
		}
		query = strings.TrimPrefix(rest, "?")
	} else {
		path, query, _ = strings.Cut(rest, "?")
	}
	if path == "" {
		return "", nil, errorf(ErrInvalidInput, "%s: empty source path", uri)
	}
	var kvs [][2]string
	for _, item := range strings.Split(query, "&") {
		if item == "" {
			continue
		}
		k, v, ok := strings.Cut(item, "=")
		if !ok {
			return "", nil, errorf(ErrInvalidInput, "%s: option %q is not in key=value form", uri, item)
		}
		kvs = append(kvs, [2]string{strings.ToLower(k), v})
	}
	return path, kvs, nil
}

// protocolArgs builds the translate switches of the options of a vrt:// URI
func protocolArgs(uri string, kvs [][2]string) (switches, drivers, openOptions []string, sd int, sdName string, err error) {
	hasSD, hasSDName := false, false
	for _, kv := range kvs {
		k, v := kv[0], kv[1]
		switch k {
		case "if":
			drivers = append(drivers, strings.Split(v, ",")...)
			continue
		case "oo":
			openOptions = append(openOptions, strings.Split(v, ",")...)
			continue
		case "sd":
			if sd, err = strconv.Atoi(v); err != nil || sd < 1 {
				return nil, nil, nil, 0, "", errorf(ErrInvalidInput, "%s: invalid sd %q", uri, v)
			}
			hasSD = true
			continue
		case "sd_name":
			sdName, hasSDName = v, true
			continue
		}
		name := k
		if i := strings.LastIndex(k, "_"); i > 0 && (k[:i] == "scale" || k[:i] == "exponent") {
			if n, err := strconv.Atoi(k[i+1:]); err == nil && n > 0 {
				name = k[:i]
			}
		}
		ps, ok := protocolSwitch[name]
		if !ok {
			return nil, nil, nil, 0, "", errorf(ErrInvalidInput, "%s: unknown option %q", uri, k)
		}
		sw := ps.sw
		if name != k {
			sw = "-" + k
		}
		vals := strings.Split(v, ",")
		switch {
		case ps.values == -1:
			if isTrue(v) {
				switches = append(switches, sw)
			}
		case name == "bands":
			for _, b := range vals {
				switches = append(switches, "-b", b)
			}
		case name == "gcp":
			if len(vals) != 4 && len(vals) != 5 {
				return nil, nil, nil, 0, "", errorf(ErrInvalidInput, "%s: gcp expects 4 or 5 values", uri)
			}
			switches = append(switches, sw)
			switches = append(switches, vals...)
		case name == "scale":
			if len(vals) != 2 && len(vals) != 4 {
				return nil, nil, nil, 0, "", errorf(ErrInvalidInput, "%s: %s expects 2 or 4 values", uri, k)
			}
			switches = append(switches, sw)
			switches = append(switches, vals...)
		case ps.values == 1:
			switches = append(switches, sw, v)
		default:
			if len(vals) != ps.values {
				return nil, nil, nil, 0, "", errorf(ErrInvalidInput, "%s: %s expects %d values", uri, k, ps.values)
			}
			switches = append(switches, sw)
			switches = append(switches, vals...)
		}
	}
	if hasSD && hasSDName {
		return nil, nil, nil, 0, "", errorf(ErrInvalidInput, "%s: sd and sd_name are mutually exclusive", uri)
	}
	return switches, drivers, openOptions, sd, sdName, nil
}

// selectSubdataset returns the name of the subdataset of ds selected by its
// 1-based index or by the last component of its name
func selectSubdataset(ds SourceDataset, sd int, sdName string) (string, error) {
	subs := subdatasets(ds)
	if sd > 0 {
		if sd > len(subs) {
			return "", errorf(ErrInvalidInput, "%s has no subdataset %d", ds.Description(), sd)
		}
		return subs[sd-1], nil
	}
	for _, s := range subs {
		parts := strings.Split(s, ":")
		if strings.EqualFold(parts[len(parts)-1], sdName) || strings.EqualFold(s, sdName) {
			return s, nil
		}
	}
	return "", errorf(ErrInvalidInput, "%s has no subdataset named %q", ds.Description(), sdName)
}

// openProtocol opens a vrt://path?key=value&... URI as the virtual dataset
// exposing the transformed source
func openProtocol(uri string, oo openOpts) (*Dataset, error) {
	path, kvs, err := splitProtocol(uri)
	if err != nil {
		return nil, err
	}
	switches, drivers, srcOpen, sd, sdName, err := protocolArgs(uri, kvs)
	if err != nil {
		return nil, err
	}
	soo := openOpts{
		config:       oo.config,
		open:         srcOpen,
		drivers:      drivers,
		fs:           oo.fs,
		pool:         oo.pool,
		errorHandler: oo.errorHandler,
	}
	src, err := openSource(path, soo)
	if err != nil {
		return nil, errorf(ErrIOFailure, "%s: %w", uri, err)
	}
	if sd > 0 || sdName != "" {
		name, err := selectSubdataset(src, sd, sdName)
		_ = src.Close()
		if err != nil {
			return nil, err
		}
		path = name
		if src, err = openSource(path, soo); err != nil {
			return nil, errorf(ErrIOFailure, "%s: %w", uri, err)
		}
	}

	topts := []TranslateOption{ConfigOption(oo.config...)}
	if oo.fs != nil {
		topts = append(topts, FileSystem(oo.fs))
	}
	if oo.errorHandler != nil {
		topts = append(topts, ErrLogger(oo.errorHandler))
	}
	ds, err := translate("", src, switches, translateOptsFrom(topts))
	if err != nil {
		_ = src.Close()
		return nil, err
	}
	ds.registry.insert(newSharedKey(path, srcOpen, nil, false), src)
	ds.desc = uri
	if err := ds.applyOpenOptions(oo); err != nil {
		_ = ds.Close()
		return nil, err
	}
	ds.dirty = false
	return ds, nil
}

func translateOptsFrom(opts []TranslateOption) translateOpts {
	to := translateOpts{}
	for _, o := range opts {
		o.setTranslateOpt(&to)
	}
	return to
}
