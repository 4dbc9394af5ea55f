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
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// hasScheme returns true for URIs (scheme://...) and /vsi paths, which are never
// joined to a local directory
func hasScheme(name string) bool {
	if strings.HasPrefix(name, "/vsi") {
		return true
	}
	i := strings.Index(name, "://")
	return i > 0 && !strings.ContainsAny(name[:i], "/\\")
}

func isInlineXML(name string) bool {
	return strings.HasPrefix(strings.TrimSpace(name), "<")
}

func isAbsPath(name string) bool {
	return filepath.IsAbs(name) || hasScheme(name) || strings.HasPrefix(name, "/")
}

// joinPath joins a relative file name to a local or URI directory
func joinPath(dir, name string) string {
	if dir == "" {
		return name
	}
	if hasScheme(dir) {
		return strings.TrimSuffix(dir, "/") + "/" + path.Clean(name)
	}
	return filepath.Join(dir, name)
}

// dirOf returns the directory of a local or URI file name
func dirOf(name string) string {
	if hasScheme(name) {
		i := strings.LastIndex(name, "/")
		if i < 0 || strings.HasSuffix(name[:i+1], "://") {
			return name
		}
		return name[:i]
	}
	return filepath.Dir(name)
}

// vrtDirs returns the directory relative sources of the document name resolve
// against. When name is a symbolic link, dir is the directory of its target and
// linkDir the directory of the link itself.
func vrtDirs(fs afero.Fs, name string) (dir, linkDir string) {
	if name == "" || isInlineXML(name) || strings.HasPrefix(name, protocolPrefix) {
		return "", ""
	}
	dir = dirOf(name)
	if hasScheme(name) {
		return dir, ""
	}
	ls, ok := fs.(afero.Lstater)
	if !ok {
		return dir, ""
	}
	lr, ok := fs.(afero.LinkReader)
	if !ok {
		return dir, ""
	}
	fi, lstatCalled, err := ls.LstatIfPossible(name)
	if err != nil || !lstatCalled || fi.Mode()&os.ModeSymlink == 0 {
		return dir, ""
	}
	target, err := lr.ReadlinkIfPossible(name)
	if err != nil {
		return dir, ""
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(dir, target)
	}
	if tdir := filepath.Dir(target); tdir != dir {
		return tdir, dir
	}
	return dir, ""
}

// resolvePath returns the name a source file is opened with. Relative names
// are joined to ROOT_PATH if set, else to the directory of the document, falling
// back to the directory of the link the document was opened through when the
// file does not exist next to the link target.
func (ds *Dataset) resolvePath(filename string, relative bool) string {
	if !relative || isAbsPath(filename) || isInlineXML(filename) {
		return filename
	}
	if ds.rootPath != "" {
		return joinPath(ds.rootPath, filename)
	}
	if ds.vrtDir == "" {
		return filename
	}
	p := joinPath(ds.vrtDir, filename)
	if ds.linkDir != "" && !hasScheme(p) {
		if _, err := ds.fs.Stat(p); err != nil {
			alt := joinPath(ds.linkDir, filename)
			if _, err := ds.fs.Stat(alt); err == nil {
				return alt
			}
		}
	}
	return p
}
