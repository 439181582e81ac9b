package container

import (
	"bytes"
	"encoding/json"
	"math"
	"path/filepath"
)

// Structural predicates over decoded JSON documents. Each is a pure boolean:
// a missing key or a value of the wrong type yields false. Documents are
// expected to be decoded with json.Decoder.UseNumber (see decodeDocument),
// though plain float64 numbers are accepted as well.

// IsCanvIndex reports whether v is a valid Canv index.json document.
func IsCanvIndex(v any) bool {
	obj, ok := v.(map[string]any)
	if !ok {
		return false
	}
	if !isIndexHeader(obj) {
		return false
	}
	size, ok := obj["image-size"].([]any)
	if !ok || len(size) != 2 || !isPositiveInt(size[0]) || !isPositiveInt(size[1]) {
		return false
	}
	companion, ok := obj["canonic-video-path"].(string)
	if !ok {
		return false
	}
	return isCompanionPath(companion)
}

// IsImsIndex reports whether v is a valid Ims index.json document.
func IsImsIndex(v any) bool {
	obj, ok := v.(map[string]any)
	if !ok {
		return false
	}
	return isIndexHeader(obj)
}

// IsProc reports whether v is a valid proc.json document: a list of
// {"cmds": [...], "pwin": string} records. An empty list is valid.
func IsProc(v any) bool {
	recs, ok := v.([]any)
	if !ok {
		return false
	}
	for _, r := range recs {
		rec, ok := r.(map[string]any)
		if !ok {
			return false
		}
		cmds, ok := rec["cmds"].([]any)
		if !ok {
			return false
		}
		for _, c := range cmds {
			if _, ok := c.(string); !ok {
				return false
			}
		}
		if _, ok := rec["pwin"].(string); !ok {
			return false
		}
	}
	return true
}

// IsMetadata reports whether v is a valid per-frame metadata document:
// cam.pos and cam.att of three numbers each, cam.lens.hfov and
// cam.lens.vfov numbers, and optional numeric k2, k3 and k4.
func IsMetadata(v any) bool {
	obj, ok := v.(map[string]any)
	if !ok {
		return false
	}
	cam, ok := obj["cam"].(map[string]any)
	if !ok {
		return false
	}
	if !isNumberList(cam["pos"], 3) || !isNumberList(cam["att"], 3) {
		return false
	}
	lens, ok := cam["lens"].(map[string]any)
	if !ok {
		return false
	}
	if !isNumber(lens["hfov"]) || !isNumber(lens["vfov"]) {
		return false
	}
	for _, k := range []string{"k2", "k3", "k4"} {
		if term, present := lens[k]; present && !isNumber(term) {
			return false
		}
	}
	return true
}

func isIndexHeader(obj map[string]any) bool {
	version, ok := asInt(obj["version"])
	if !ok || version < MinFormatVersion {
		return false
	}
	return isPositiveInt(obj["frame-count"])
}

// isCompanionPath requires a relative path carrying the Ims suffix.
func isCompanionPath(p string) bool {
	return p != "" && !filepath.IsAbs(p) && filepath.Ext(p) == ImsExt
}

func isPositiveInt(v any) bool {
	n, ok := asInt(v)
	return ok && n > 0
}

func isNumberList(v any, n int) bool {
	xs, ok := v.([]any)
	if !ok || len(xs) != n {
		return false
	}
	for _, x := range xs {
		if !isNumber(x) {
			return false
		}
	}
	return true
}

// isNumber accepts integral numbers as well as floats, so documents written
// by tools that drop the fraction of whole values still validate.
func isNumber(v any) bool {
	switch n := v.(type) {
	case json.Number:
		_, err := n.Float64()
		return err == nil
	case float64:
		return true
	default:
		return false
	}
}

// asInt accepts only integral numbers: "4" yes, "4.5" no.
func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int64(n), true
	default:
		return 0, false
	}
}

// decodeDocument decodes data into generic JSON values, keeping numbers as
// json.Number so integers and floats stay distinguishable.
func decodeDocument(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
