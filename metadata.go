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
	"strings"
)

type metadataOpt struct {
	domain string
}

// MetadataOption is an option that can be passed to metadata related calls
// Available MetadataOptions are:
//
// • Domain
type MetadataOption interface {
	setMetadataOpt(mo *metadataOpt)
}

// Domain specifies the metadata domain to use
func Domain(mdDomain string) interface {
	MetadataOption
} {
	return metadataOpt{mdDomain}
}
func (mdo metadataOpt) setMetadataOpt(mo *metadataOpt) {
	mo.domain = mdo.domain
}

// isXMLDomain reports domains holding a single xml document instead of key/values
func isXMLDomain(domain string) bool {
	return strings.HasPrefix(domain, "xml:")
}

type mdDomain struct {
	keys   []string
	values map[string]string
}

// majorObject holds the metadata domains of a dataset or band
type majorObject struct {
	domains  map[string]*mdDomain
	order    []string
	onChange func()
}

func mdOpts(opts []MetadataOption) metadataOpt {
	mopts := metadataOpt{}
	for _, opt := range opts {
		opt.setMetadataOpt(&mopts)
	}
	return mopts
}

// Metadata returns the value of key in the requested domain (default domain if unset).
// For "xml:" domains, the whole document is returned regardless of key.
func (mo *majorObject) Metadata(key string, opts ...MetadataOption) string {
	mopts := mdOpts(opts)
	d := mo.domains[mopts.domain]
	if d == nil {
		return ""
	}
	if isXMLDomain(mopts.domain) {
		key = ""
	}
	return d.values[key]
}

// Metadatas returns all key/values of the requested domain (default domain if unset)
func (mo *majorObject) Metadatas(opts ...MetadataOption) map[string]string {
	mopts := mdOpts(opts)
	d := mo.domains[mopts.domain]
	if d == nil || len(d.keys) == 0 {
		return nil
	}
	ret := make(map[string]string, len(d.keys))
	for _, k := range d.keys {
		ret[k] = d.values[k]
	}
	return ret
}

// SetMetadata sets key to value in the requested domain. An empty value removes
// the key. For "xml:" domains, value is the whole document and key is ignored.
func (mo *majorObject) SetMetadata(key, value string, opts ...MetadataOption) error {
	mopts := mdOpts(opts)
	if isXMLDomain(mopts.domain) {
		key = ""
	} else if key == "" || strings.ContainsAny(key, "=") {
		return errorf(ErrInvalidInput, "invalid metadata key %q", key)
	}
	mo.setItem(mopts.domain, key, value)
	if mo.onChange != nil {
		mo.onChange()
	}
	return nil
}

func (mo *majorObject) setItem(domain, key, value string) {
	if mo.domains == nil {
		mo.domains = make(map[string]*mdDomain)
	}
	d := mo.domains[domain]
	if d == nil {
		if value == "" {
			return
		}
		d = &mdDomain{values: make(map[string]string)}
		mo.domains[domain] = d
		mo.order = append(mo.order, domain)
	}
	if _, ok := d.values[key]; !ok {
		if value == "" {
			return
		}
		d.keys = append(d.keys, key)
	}
	if value == "" {
		delete(d.values, key)
		for i, k := range d.keys {
			if k == key {
				d.keys = append(d.keys[:i], d.keys[i+1:]...)
				break
			}
		}
		return
	}
	d.values[key] = value
}

// MetadataDomains returns the list of domains holding metadata, default domain first
func (mo *majorObject) MetadataDomains() []string {
	ret := make([]string, 0, len(mo.order))
	for _, d := range mo.order {
		if md := mo.domains[d]; md != nil && len(md.keys) > 0 {
			ret = append(ret, d)
		}
	}
	sort.SliceStable(ret, func(i, j int) bool {
		return ret[i] == "" && ret[j] != ""
	})
	return ret
}

// items returns the ordered key/values of a domain
func (mo *majorObject) items(domain string) ([]string, map[string]string) {
	d := mo.domains[domain]
	if d == nil {
		return nil, nil
	}
	return d.keys, d.values
}

func (mo *majorObject) copyFrom(other *majorObject) {
	for _, dom := range other.order {
		keys, vals := other.items(dom)
		for _, k := range keys {
			mo.setItem(dom, k, vals[k])
		}
	}
}
