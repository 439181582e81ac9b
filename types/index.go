package types

// CanvIndex is the index.json document of a Canv container.
type CanvIndex struct {
	Version    int    `json:"version"`
	FrameCount int    `json:"frame-count"`
	ImageSize  [2]int `json:"image-size"`
	// CompanionPath is the Ims path, relative to the Canv's directory.
	CompanionPath string `json:"canonic-video-path"`
}

// ImsIndex is the index.json document of an Ims container.
type ImsIndex struct {
	Version    int `json:"version"`
	FrameCount int `json:"frame-count"`
}

// ProcRecord groups the commands recorded under one pwin tag.
type ProcRecord struct {
	Cmds []string `json:"cmds"`
	Pwin string   `json:"pwin"`
}

// History is the proc.json document: at most one record per tag,
// in first-seen tag order.
type History []ProcRecord

// Append adds cmd to the record tagged tag, creating the record at the end
// if no record carries that tag yet.
func (h *History) Append(cmd, tag string) {
	for i := range *h {
		if (*h)[i].Pwin == tag {
			(*h)[i].Cmds = append((*h)[i].Cmds, cmd)
			return
		}
	}
	*h = append(*h, ProcRecord{Cmds: []string{cmd}, Pwin: tag})
}

// Clone returns a deep copy, so a derived container can extend an inherited
// history without touching the source's.
func (h History) Clone() History {
	if h == nil {
		return History{}
	}
	out := make(History, len(h))
	for i, rec := range h {
		out[i] = ProcRecord{
			Cmds: append([]string(nil), rec.Cmds...),
			Pwin: rec.Pwin,
		}
	}
	return out
}
