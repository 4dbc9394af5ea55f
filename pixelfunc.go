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
	"math"
	"strconv"
	"strings"
	"sync"

	goeval "github.com/edisonguo/govaluate"
)

// PixelFunc computes the pixels of a derived band. sources holds one packed
// width x height raster per source of the band, out receives the result. args
// are the attributes of the band's PixelFunctionArguments element.
type PixelFunc func(sources [][]float64, out []float64, width, height int, args map[string]string) error

var pixelFuncsMu sync.RWMutex
var pixelFuncs = map[string]PixelFunc{
	"expression": exprPixelFunc,
	"sum":        sumPixelFunc,
	"mul":        mulPixelFunc,
	"diff":       diffPixelFunc,
	"div":        divPixelFunc,
	"inv":        invPixelFunc,
	"min":        minPixelFunc,
	"max":        maxPixelFunc,
}

// RegisterPixelFunction makes fn available to derived bands whose
// PixelFunctionType is name. Built-in functions cannot be replaced.
func RegisterPixelFunction(name string, fn PixelFunc) error {
	if name == "" || fn == nil {
		return errorf(ErrInvalidInput, "invalid pixel function registration")
	}
	pixelFuncsMu.Lock()
	defer pixelFuncsMu.Unlock()
	if _, ok := pixelFuncs[name]; ok {
		return errorf(ErrInconsistentState, "pixel function %s already registered", name)
	}
	pixelFuncs[name] = fn
	return nil
}

func lookupPixelFunction(name string) (PixelFunc, bool) {
	pixelFuncsMu.RLock()
	defer pixelFuncsMu.RUnlock()
	fn, ok := pixelFuncs[name]
	return fn, ok
}

func constArg(args map[string]string, key string, def float64) (float64, error) {
	v, ok := args[key]
	if !ok {
		return def, nil
	}
	return parseFloatText(v, "pixel function argument "+key)
}

func sumPixelFunc(sources [][]float64, out []float64, width, height int, args map[string]string) error {
	k, err := constArg(args, "k", 0)
	if err != nil {
		return err
	}
	for i := range out {
		v := k
		for _, s := range sources {
			v += s[i]
		}
		out[i] = v
	}
	return nil
}

func mulPixelFunc(sources [][]float64, out []float64, width, height int, args map[string]string) error {
	k, err := constArg(args, "k", 1)
	if err != nil {
		return err
	}
	for i := range out {
		v := k
		for _, s := range sources {
			v *= s[i]
		}
		out[i] = v
	}
	return nil
}

func diffPixelFunc(sources [][]float64, out []float64, width, height int, args map[string]string) error {
	if len(sources) != 2 {
		return errorf(ErrInvalidInput, "diff needs 2 sources, got %d", len(sources))
	}
	for i := range out {
		out[i] = sources[0][i] - sources[1][i]
	}
	return nil
}

func divPixelFunc(sources [][]float64, out []float64, width, height int, args map[string]string) error {
	if len(sources) != 2 {
		return errorf(ErrInvalidInput, "div needs 2 sources, got %d", len(sources))
	}
	for i := range out {
		if sources[1][i] == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = sources[0][i] / sources[1][i]
	}
	return nil
}

func invPixelFunc(sources [][]float64, out []float64, width, height int, args map[string]string) error {
	if len(sources) != 1 {
		return errorf(ErrInvalidInput, "inv needs 1 source, got %d", len(sources))
	}
	k, err := constArg(args, "k", 1)
	if err != nil {
		return err
	}
	for i := range out {
		if sources[0][i] == 0 {
			out[i] = math.Inf(1)
			continue
		}
		out[i] = k / sources[0][i]
	}
	return nil
}

func minPixelFunc(sources [][]float64, out []float64, width, height int, args map[string]string) error {
	return reducePixels(sources, out, math.Min)
}

func maxPixelFunc(sources [][]float64, out []float64, width, height int, args map[string]string) error {
	return reducePixels(sources, out, math.Max)
}

func reducePixels(sources [][]float64, out []float64, fn func(a, b float64) float64) error {
	if len(sources) == 0 {
		return errorf(ErrInvalidInput, "pixel function needs at least one source")
	}
	for i := range out {
		v := sources[0][i]
		for _, s := range sources[1:] {
			v = fn(v, s[i])
		}
		out[i] = v
	}
	return nil
}

// parseExpression compiles expr, checking that it only references the B1..Bn
// source variables
func parseExpression(expr string, nSources int) (*goeval.EvaluableExpression, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, errorf(ErrInvalidInput, "empty expression")
	}
	e, err := goeval.NewEvaluableExpression(expr)
	if err != nil {
		return nil, errorf(ErrInvalidInput, "expression %q: %w", expr, err)
	}
	for _, token := range e.Tokens() {
		if token.Kind != goeval.VARIABLE {
			continue
		}
		name, ok := token.Value.(string)
		if !ok {
			return nil, errorf(ErrInvalidInput, "variable token '%v' failed to cast string", token.Value)
		}
		if !strings.HasPrefix(name, "B") {
			return nil, errorf(ErrInvalidInput, "expression %q: unknown variable %s", expr, name)
		}
		n, err := strconv.Atoi(name[1:])
		if err != nil || n < 1 || n > nSources {
			return nil, errorf(ErrInvalidInput, "expression %q: unknown variable %s", expr, name)
		}
	}
	return e, nil
}

// exprPixelFunc evaluates the expression argument for each pixel, binding the
// value of the i'th source to Bi. The evaluator computes in float32.
func exprPixelFunc(sources [][]float64, out []float64, width, height int, args map[string]string) error {
	e, err := parseExpression(args["expression"], len(sources))
	if err != nil {
		return err
	}
	names := make([]string, len(sources))
	for i := range sources {
		names[i] = "B" + strconv.Itoa(i+1)
	}
	params := make(map[string]interface{}, len(sources))
	for i := range out {
		for s := range sources {
			params[names[s]] = float32(sources[s][i])
		}
		res, err := e.Evaluate(params)
		if err != nil {
			return errorf(ErrInvalidInput, "expression %q: %w", args["expression"], err)
		}
		switch v := res.(type) {
		case float32:
			out[i] = float64(v)
		case float64:
			out[i] = v
		case bool:
			out[i] = 0
			if v {
				out[i] = 1
			}
		default:
			return errorf(ErrInvalidInput, "expression %q: result '%v' is not a number", args["expression"], res)
		}
	}
	return nil
}
