package container

import (
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/justapithecus/canv/archive"
	"github.com/justapithecus/canv/log"
	"github.com/justapithecus/canv/types"
)

var testLogger = log.Nop()

// frameMeta returns distinct, valid metadata for frame i.
func frameMeta(i int) *types.Metadata {
	f := float64(i)
	return &types.Metadata{Cam: types.Camera{
		Pos: []float64{0.1 + f, 0.2 + f, 100 + f},
		Att: []float64{0.5, 0.01 * f, -0.25},
		Lens: &types.Lens{
			HFov: 0.6,
			VFov: 0.4,
			K2:   types.Float(0.01 * f),
		},
	}}
}

// frameImage returns a w×h grayscale image whose brightness encodes i.
func frameImage(i, w, h int) image.Image {
	img := image.NewGray(image.Rect(0, 0, w, h))
	shade := uint8(20 + (i*37)%200)
	for y := range h {
		for x := range w {
			img.SetGray(x, y, color.Gray{Y: shade})
		}
	}
	return img
}

// writePair creates dir/name.canv + dir/name.ims with canvN and imsN frames.
func writePair(t *testing.T, dir, name string, canvN, imsN int) string {
	t.Helper()
	canvPath := filepath.Join(dir, name+CanvExt)
	imsPath := filepath.Join(dir, name+ImsExt)

	history := types.History{}
	history.Append("record", "0.1.0")

	canv, err := CreateCanv(canvPath, canvN, [2]int{16, 8}, name+ImsExt, history, testLogger)
	if err != nil {
		t.Fatalf("CreateCanv: %v", err)
	}
	for i := range canvN {
		if err := canv.Append(frameMeta(i)); err != nil {
			t.Fatalf("canv Append(%d): %v", i, err)
		}
	}
	if err := canv.Close(); err != nil {
		t.Fatalf("canv Close: %v", err)
	}

	ims, err := CreateIms(imsPath, imsN, history, testLogger)
	if err != nil {
		t.Fatalf("CreateIms: %v", err)
	}
	for i := range imsN {
		if err := ims.Append(frameImage(i, 16, 8)); err != nil {
			t.Fatalf("ims Append(%d): %v", i, err)
		}
	}
	if err := ims.Close(); err != nil {
		t.Fatalf("ims Close: %v", err)
	}
	return canvPath
}

// writeRawArchive writes the given entries verbatim into a new archive.
func writeRawArchive(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	a, err := archive.Open(path, archive.ModeWrite)
	if err != nil {
		t.Fatal(err)
	}
	for name, data := range entries {
		if err := a.Write(name, []byte(data)); err != nil {
			t.Fatal(err)
		}
	}
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}
}

// grayAt returns the luminance of pixel (x, y).
func grayAt(img image.Image, x, y int) uint8 {
	return color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y
}
