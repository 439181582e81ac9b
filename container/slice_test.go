package container

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestSlice_Range(t *testing.T) {
	dir := t.TempDir()
	src := writePair(t, dir, "src", 10, 10)
	target := filepath.Join(dir, "part.canv")

	err := Slice(t.Context(), SliceOptions{
		Source:  src,
		Target:  target,
		From:    3,
		To:      7,
		Command: "canv slice src.canv part.canv --range 3 7",
		Tag:     "0.4.0",
	}, testLogger)
	if err != nil {
		t.Fatalf("Slice: %v", err)
	}

	if err := ValidateCanv(target, testLogger); err != nil {
		t.Fatalf("sliced pair does not validate: %v", err)
	}

	p, err := OpenPlayback(target, testLogger)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = p.Close() }()

	if p.FrameCount() != 4 {
		t.Fatalf("FrameCount = %d, want 4", p.FrameCount())
	}
	if p.Canv().CompanionPath() != "part.ims" {
		t.Errorf("CompanionPath = %q, want part.ims", p.Canv().CompanionPath())
	}
	for f, err := range p.All() {
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(f.Metadata, frameMeta(f.Index+3)) {
			t.Errorf("frame %d does not carry source frame %d", f.Index, f.Index+3)
		}
	}

	h := p.Canv().History()
	if len(h) != 2 || h[1].Pwin != "0.4.0" || h[1].Cmds[0] != "canv slice src.canv part.canv --range 3 7" {
		t.Errorf("canv history = %+v", h)
	}
	if h := p.Ims().History(); len(h) != 2 || h[1].Pwin != "0.4.0" {
		t.Errorf("ims history = %+v", h)
	}
}

func TestSlice_FullRangeByDefault(t *testing.T) {
	dir := t.TempDir()
	src := writePair(t, dir, "all", 3, 3)
	target := filepath.Join(dir, "copy.canv")

	if err := Slice(t.Context(), SliceOptions{Source: src, Target: target}, testLogger); err != nil {
		t.Fatalf("Slice: %v", err)
	}
	c, err := OpenCanv(target, true, testLogger)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = c.Close() }()
	if c.FrameCount() != 3 {
		t.Errorf("FrameCount = %d, want 3", c.FrameCount())
	}
	if len(c.History()) != 1 {
		t.Errorf("history without a command should be inherited unchanged: %+v", c.History())
	}
}

func TestSlice_Rejects(t *testing.T) {
	dir := t.TempDir()
	src := writePair(t, dir, "src", 5, 5)
	existing := filepath.Join(dir, "taken.ims")
	if err := os.WriteFile(existing, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		target   string
		from, to int
		wantVal  bool
	}{
		{"wrong suffix", "out.ims", 0, 1, true},
		{"target exists", "src.canv", 0, 1, false},
		{"companion exists", "taken.canv", 0, 1, false},
		{"negative", "neg.canv", -1, 2, true},
		{"reversed", "rev.canv", 3, 2, true},
		{"beyond source", "far.canv", 0, 6, true},
		{"empty", "empty.canv", 2, 2, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := filepath.Join(dir, tt.target)
			err := Slice(t.Context(), SliceOptions{Source: src, Target: target, From: tt.from, To: tt.to}, testLogger)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantVal && !errors.Is(err, ErrValidation) {
				t.Errorf("err = %v, want ErrValidation", err)
			}
			if tt.name != "target exists" {
				if _, statErr := os.Stat(target); statErr == nil && filepath.Ext(target) == CanvExt {
					t.Errorf("target %s left behind", target)
				}
			}
		})
	}
}
