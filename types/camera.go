package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Metadata is one per-frame metadata entry of a Canv container.
type Metadata struct {
	Cam Camera `json:"cam"`
}

// Camera is the canonic camera pose for a frame.
// Angles are radians.
type Camera struct {
	// Pos is latitude, longitude, height.
	Pos []float64 `json:"pos"`
	// Att is yaw, pitch, roll.
	Att  []float64 `json:"att"`
	Lens *Lens     `json:"lens"`
}

// Lens holds field of view and optional radial distortion terms.
type Lens struct {
	HFov float64  `json:"hfov"`
	VFov float64  `json:"vfov"`
	K2   *float64 `json:"k2,omitempty"`
	K3   *float64 `json:"k3,omitempty"`
	K4   *float64 `json:"k4,omitempty"`
}

// Complete reports an error naming the first missing camera field.
func (c *Camera) Complete() error {
	if c == nil {
		return fmt.Errorf("missing camera")
	}
	if len(c.Pos) != 3 {
		return fmt.Errorf("camera pos has %d components, want 3", len(c.Pos))
	}
	if len(c.Att) != 3 {
		return fmt.Errorf("camera att has %d components, want 3", len(c.Att))
	}
	if c.Lens == nil {
		return fmt.Errorf("missing camera lens")
	}
	return nil
}

// Clone returns a deep copy of the camera.
func (c *Camera) Clone() *Camera {
	if c == nil {
		return nil
	}
	out := &Camera{
		Pos: append([]float64(nil), c.Pos...),
		Att: append([]float64(nil), c.Att...),
	}
	if c.Lens != nil {
		lens := *c.Lens
		lens.K2 = cloneFloat(c.Lens.K2)
		lens.K3 = cloneFloat(c.Lens.K3)
		lens.K4 = cloneFloat(c.Lens.K4)
		out.Lens = &lens
	}
	return out
}

// Float returns a pointer to v, for optional lens terms.
func Float(v float64) *float64 {
	return &v
}

// FloatOr returns *p, or def when p is nil.
func FloatOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// MarshalJSON writes every coordinate as a JSON float, so integral values
// keep a decimal point ("3.0", not "3") and stay floats for strict readers.
func (c Camera) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Pos  []jsonFloat `json:"pos"`
		Att  []jsonFloat `json:"att"`
		Lens *Lens      `json:"lens"`
	}{Pos: jsonFloats(c.Pos), Att: jsonFloats(c.Att), Lens: c.Lens})
}

// MarshalJSON writes fields of view and distortion terms as JSON floats.
func (l Lens) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		HFov jsonFloat  `json:"hfov"`
		VFov jsonFloat  `json:"vfov"`
		K2   *jsonFloat `json:"k2,omitempty"`
		K3   *jsonFloat `json:"k3,omitempty"`
		K4   *jsonFloat `json:"k4,omitempty"`
	}{HFov: jsonFloat(l.HFov), VFov: jsonFloat(l.VFov), K2: jsonFloatPtr(l.K2), K3: jsonFloatPtr(l.K3), K4: jsonFloatPtr(l.K4)})
}

// jsonFloat is a float64 that always encodes with a fraction or exponent.
type jsonFloat float64

func (r jsonFloat) MarshalJSON() ([]byte, error) {
	b, err := json.Marshal(float64(r))
	if err != nil {
		return nil, err
	}
	if !bytes.ContainsAny(b, ".eE") {
		b = append(b, ".0"...)
	}
	return b, nil
}

func jsonFloats(xs []float64) []jsonFloat {
	if xs == nil {
		return nil
	}
	out := make([]jsonFloat, len(xs))
	for i, x := range xs {
		out[i] = jsonFloat(x)
	}
	return out
}

func jsonFloatPtr(p *float64) *jsonFloat {
	if p == nil {
		return nil
	}
	r := jsonFloat(*p)
	return &r
}
