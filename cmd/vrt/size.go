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
	"strconv"
	"strings"
	"unicode"
)

// parseSize parses a byte count with an optional k, m or g suffix
func parseSize(s string) (int, error) {
	const (
		BYTE = 1 << (10 * iota)
		KILOBYTE
		MEGABYTE
		GIGABYTE
	)
	s = strings.ToUpper(strings.TrimSpace(s))
	i := strings.IndexFunc(s, unicode.IsLetter)
	if i == -1 {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid size %q", s)
		}
		return n, nil
	}
	bytesString, multiple := s[:i], s[i:]
	bytes, err := strconv.ParseFloat(bytesString, 64)
	if err != nil || bytes <= 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	switch multiple {
	case "G", "GB", "GIB":
		return int(bytes * GIGABYTE), nil
	case "M", "MB", "MIB":
		return int(bytes * MEGABYTE), nil
	case "K", "KB", "KIB":
		return int(bytes * KILOBYTE), nil
	case "B":
		return int(bytes), nil
	default:
		return 0, fmt.Errorf("invalid size %q", s)
	}
}

// maxDocumentSize bounds the virtual datasets downloaded from buckets
const maxDocumentSize = 64 << 20

func copyLimited(w io.Writer, r io.Reader) (int64, error) {
	n, err := io.Copy(w, io.LimitReader(r, maxDocumentSize+1))
	if err == nil && n > maxDocumentSize {
		err = fmt.Errorf("document larger than %d bytes", maxDocumentSize)
	}
	return n, err
}
