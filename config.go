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
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v2"
)

var configMu sync.RWMutex
var processConfig = map[string]string{}

// SetConfigOption sets a process-wide configuration option. An empty value
// removes the option, in which case the environment variable of the same name
// is used again.
//
// Notable options are VRT_NUM_THREADS, GDAL_NUM_THREADS and VRT_VIRTUAL_OVERVIEWS
func SetConfigOption(key, value string) {
	configMu.Lock()
	defer configMu.Unlock()
	if value == "" {
		delete(processConfig, strings.ToUpper(key))
		return
	}
	processConfig[strings.ToUpper(key)] = value
}

// GetConfigOption returns the process-wide value of key, falling back to the
// environment and then to def
func GetConfigOption(key, def string) string {
	configMu.RLock()
	v, ok := processConfig[strings.ToUpper(key)]
	configMu.RUnlock()
	if ok {
		return v
	}
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

// LoadConfig reads a yaml mapping of configuration keys and sets them as
// process-wide options:
//
//	VRT_NUM_THREADS: 4
//	VRT_VIRTUAL_OVERVIEWS: YES
func LoadConfig(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	kv := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &kv); err != nil {
		return errorf(ErrInvalidInput, "parse config: %w", err)
	}
	for k, v := range kv {
		switch vv := v.(type) {
		case bool:
			if vv {
				SetConfigOption(k, "YES")
			} else {
				SetConfigOption(k, "NO")
			}
		case nil:
			SetConfigOption(k, "")
		default:
			SetConfigOption(k, fmt.Sprint(vv))
		}
	}
	return nil
}

// configScope resolves a key against call or dataset scoped KEY=VALUE options
// before the process-wide configuration
type configScope []string

func (cs configScope) get(key, def string) string {
	for i := len(cs) - 1; i >= 0; i-- {
		k, v, ok := strings.Cut(cs[i], "=")
		if ok && strings.EqualFold(k, key) {
			return v
		}
	}
	return GetConfigOption(key, def)
}

func (cs configScope) with(more []string) configScope {
	if len(more) == 0 {
		return cs
	}
	ret := make(configScope, 0, len(cs)+len(more))
	ret = append(ret, cs...)
	return append(ret, more...)
}

func isTrue(s string) bool {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "YES", "ON", "TRUE", "1":
		return true
	}
	return false
}

// parseKeyValues parses KEY=VALUE strings. Keys are upper-cased.
func parseKeyValues(kvs []string) (map[string]string, error) {
	ret := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, errorf(ErrInvalidInput, "option %q is not in KEY=VALUE form", kv)
		}
		ret[strings.ToUpper(strings.TrimSpace(k))] = v
	}
	return ret, nil
}

func fetchKeyValue(kvs []string, key string) (string, bool) {
	for i := len(kvs) - 1; i >= 0; i-- {
		k, v, ok := strings.Cut(kvs[i], "=")
		if ok && strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}

func removeKeyValue(kvs []string, key string) []string {
	ret := make([]string, 0, len(kvs))
	for _, kv := range kvs {
		k, _, _ := strings.Cut(kv, "=")
		if !strings.EqualFold(k, key) {
			ret = append(ret, kv)
		}
	}
	return ret
}

func parseIntOption(name, v string) (int, error) {
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, errorf(ErrInvalidInput, "invalid %s value %q", name, v)
	}
	return i, nil
}
