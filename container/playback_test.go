package container

import (
	"errors"
	"io"
	"path/filepath"
	"reflect"
	"testing"
)

func TestPlayback_Alignment(t *testing.T) {
	for _, n := range []int{1, 5, 11} {
		path := writePair(t, t.TempDir(), "play", n, n)

		p, err := OpenPlayback(path, testLogger)
		if err != nil {
			t.Fatalf("OpenPlayback: %v", err)
		}

		count := 0
		for f, err := range p.All() {
			if err != nil {
				t.Fatalf("frame %d: %v", count, err)
			}
			if f.Index != count {
				t.Fatalf("frame index = %d, want %d", f.Index, count)
			}
			if !reflect.DeepEqual(f.Metadata, frameMeta(count)) {
				t.Errorf("frame %d metadata mismatch", count)
			}
			want := grayAt(frameImage(count, 16, 8), 0, 0)
			if got := grayAt(f.Image, 3, 3); int(got)-int(want) > 3 || int(want)-int(got) > 3 {
				t.Errorf("frame %d shade = %d, want ~%d", count, got, want)
			}
			count++
		}
		if count != n {
			t.Fatalf("yielded %d frames, want %d", count, n)
		}
		if err := p.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}
}

func TestPlayback_FrameCountMismatch(t *testing.T) {
	path := writePair(t, t.TempDir(), "odd", 3, 4)
	if _, err := OpenPlayback(path, testLogger); !errors.Is(err, ErrFrameCountMismatch) {
		t.Fatalf("err = %v, want ErrFrameCountMismatch", err)
	}
}

func TestPlayback_RestartAndEOF(t *testing.T) {
	path := writePair(t, t.TempDir(), "again", 2, 2)

	canv, err := OpenCanv(path, false, testLogger)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = canv.Close() }()
	ims, err := OpenIms(canv.ImsPath(), false, testLogger)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = ims.Close() }()

	p, err := NewPlayback(canv, ims)
	if err != nil {
		t.Fatal(err)
	}
	for range 2 {
		if _, err := p.Next(); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := p.Next(); err != io.EOF {
		t.Fatalf("Next at end err = %v, want io.EOF", err)
	}
	p.Reset()
	f, err := p.Next()
	if err != nil || f.Index != 0 {
		t.Fatalf("after Reset: frame %d, err %v", f.Index, err)
	}

	// Non-owning playback leaves the containers open.
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := canv.Read(0); err != nil {
		t.Errorf("canv closed by non-owning playback: %v", err)
	}
}

func TestPlayback_UnreadableFrameIsFatal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.canv")
	meta := `{"cam":{"pos":[1,2,3],"att":[0,0,0],"lens":{"hfov":1,"vfov":1}}}`
	writeRawArchive(t, path, map[string]string{
		IndexEntry: `{"version":4,"frame-count":3,"image-size":[4,4],"canonic-video-path":"broken.ims"}`,
		ProcEntry:  `[]`,
		"0.json":   meta,
		"1.json":   `{"cam":{"pos":[1,2,3]}}`,
		"2.json":   meta,
	})
	ims, err := CreateIms(filepath.Join(dir, "broken.ims"), 3, nil, testLogger)
	if err != nil {
		t.Fatal(err)
	}
	for i := range 3 {
		if err := ims.Append(frameImage(i, 4, 4)); err != nil {
			t.Fatal(err)
		}
	}
	if err := ims.Close(); err != nil {
		t.Fatal(err)
	}

	p, err := OpenPlayback(path, testLogger)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = p.Close() }()

	var seen []int
	var failure error
	for f, err := range p.All() {
		if err != nil {
			failure = err
			break
		}
		seen = append(seen, f.Index)
	}
	if !reflect.DeepEqual(seen, []int{0}) {
		t.Errorf("frames before failure = %v, want [0]", seen)
	}
	var fre *FrameReadError
	if !errors.As(failure, &fre) || fre.Index != 1 {
		t.Fatalf("failure = %v, want *FrameReadError for frame 1", failure)
	}
	if !errors.Is(failure, ErrValidation) {
		t.Errorf("failure = %v, want it to wrap ErrValidation", failure)
	}
}
