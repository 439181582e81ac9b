package metrics

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestCollector_IncrementMethods(t *testing.T) {
	c := NewCollector("remote", "fs", "run-001", 10)

	c.IncFrameSubmitted()
	c.IncFrameSubmitted()
	c.IncFrameSubmitted()
	c.IncFrameRegistered(0.8)
	c.IncFrameRegistered(0.6)
	c.IncFrameFailed()
	c.IncEncodingFailure()
	c.IncFrameWritten()
	c.IncFrameWritten()
	c.IncReceiveTimeout()
	c.IncUnknownReply()
	c.IncUnknownReply()
	c.IncLodeWriteSuccess()
	c.IncLodeWriteFailure()

	s := c.Snapshot()

	checks := []struct {
		name string
		got  int64
		want int64
	}{
		{"FramesSubmitted", s.FramesSubmitted, 3},
		{"FramesRegistered", s.FramesRegistered, 2},
		{"FramesFailed", s.FramesFailed, 1},
		{"EncodingFailures", s.EncodingFailures, 1},
		{"FramesWritten", s.FramesWritten, 2},
		{"ReceiveTimeouts", s.ReceiveTimeouts, 1},
		{"UnknownReplies", s.UnknownReplies, 2},
		{"LodeWriteSuccess", s.LodeWriteSuccess, 1},
		{"LodeWriteFailure", s.LodeWriteFailure, 1},
	}
	for _, tc := range checks {
		if tc.got != tc.want {
			t.Errorf("%s = %d, want %d", tc.name, tc.got, tc.want)
		}
	}
}

func TestCollector_Dimensions(t *testing.T) {
	c := NewCollector("managed", "s3", "run-abc", 4)
	s := c.Snapshot()

	if s.ServerMode != "managed" {
		t.Errorf("ServerMode = %q, want %q", s.ServerMode, "managed")
	}
	if s.StorageBackend != "s3" {
		t.Errorf("StorageBackend = %q, want %q", s.StorageBackend, "s3")
	}
	if s.RunID != "run-abc" {
		t.Errorf("RunID = %q, want %q", s.RunID, "run-abc")
	}
	if s.Window != 4 {
		t.Errorf("Window = %d, want 4", s.Window)
	}
}

func TestCollector_ObserveInFlightKeepsMaximum(t *testing.T) {
	c := NewCollector("remote", "", "run-001", 3)
	for _, n := range []int{1, 2, 3, 2, 1, 0} {
		c.ObserveInFlight(n)
	}
	if got := c.Snapshot().MaxInFlight; got != 3 {
		t.Errorf("MaxInFlight = %d, want 3", got)
	}
}

func TestCollector_SnapshotImmutability(t *testing.T) {
	c := NewCollector("remote", "fs", "run-001", 2)
	c.IncFrameSubmitted()
	c.IncLodeWriteSuccess()

	s1 := c.Snapshot()

	c.IncFrameWritten()
	c.IncLodeWriteSuccess()
	c.IncLodeWriteSuccess()

	if s1.FramesWritten != 0 {
		t.Errorf("s1.FramesWritten = %d, want 0 (snapshot should be frozen)", s1.FramesWritten)
	}
	if s1.LodeWriteSuccess != 1 {
		t.Errorf("s1.LodeWriteSuccess = %d, want 1 (snapshot should be frozen)", s1.LodeWriteSuccess)
	}

	s2 := c.Snapshot()
	if s2.FramesWritten != 1 {
		t.Errorf("s2.FramesWritten = %d, want 1", s2.FramesWritten)
	}
	if s2.LodeWriteSuccess != 3 {
		t.Errorf("s2.LodeWriteSuccess = %d, want 3", s2.LodeWriteSuccess)
	}
}

func TestCollector_NilReceiverSafety(t *testing.T) {
	var c *Collector

	// None of these should panic
	c.Attach(nil)
	c.IncFrameSubmitted()
	c.IncFrameRegistered(1)
	c.IncFrameFailed()
	c.IncEncodingFailure()
	c.IncFrameWritten()
	c.ObserveInFlight(5)
	c.IncReceiveTimeout()
	c.IncUnknownReply()
	c.IncLodeWriteSuccess()
	c.IncLodeWriteFailure()

	if s := c.Snapshot(); s != (Snapshot{}) {
		t.Errorf("nil collector snapshot = %+v, want zero", s)
	}
}

func TestCollector_ConcurrentAccess(t *testing.T) {
	c := NewCollector("remote", "fs", "run-001", 10)
	const goroutines = 10
	const iterations = 1000

	var wg sync.WaitGroup
	wg.Add(goroutines)

	for range goroutines {
		go func() {
			defer wg.Done()
			for range iterations {
				c.IncFrameSubmitted()
				c.IncLodeWriteSuccess()
				c.IncReceiveTimeout()
			}
		}()
	}

	wg.Wait()

	s := c.Snapshot()
	want := int64(goroutines * iterations)

	if s.FramesSubmitted != want {
		t.Errorf("FramesSubmitted = %d, want %d", s.FramesSubmitted, want)
	}
	if s.LodeWriteSuccess != want {
		t.Errorf("LodeWriteSuccess = %d, want %d", s.LodeWriteSuccess, want)
	}
	if s.ReceiveTimeouts != want {
		t.Errorf("ReceiveTimeouts = %d, want %d", s.ReceiveTimeouts, want)
	}
}

func TestCollector_ZeroValueSnapshot(t *testing.T) {
	c := NewCollector("remote", "fs", "run-001", 10)
	s := c.Snapshot()

	if s.FramesSubmitted != 0 || s.FramesRegistered != 0 || s.FramesFailed != 0 || s.FramesWritten != 0 {
		t.Error("fresh collector should have zero frame counters")
	}
	if s.ReceiveTimeouts != 0 || s.UnknownReplies != 0 || s.MaxInFlight != 0 {
		t.Error("fresh collector should have zero transport counters")
	}
	if s.LodeWriteSuccess != 0 || s.LodeWriteFailure != 0 {
		t.Error("fresh collector should have zero Lode counters")
	}
}

func TestPrometheus_MirrorsCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	p, err := NewPrometheus(reg)
	if err != nil {
		t.Fatalf("NewPrometheus failed: %v", err)
	}

	c := NewCollector("remote", "", "run-001", 4)
	c.Attach(p)
	c.IncFrameSubmitted()
	c.IncFrameSubmitted()
	c.IncFrameRegistered(0.75)
	c.IncFrameFailed()
	c.IncReceiveTimeout()
	c.ObserveInFlight(2)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	byOutcome := map[string]float64{}
	values := map[string]float64{}
	var meritCount uint64
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch mf.GetName() {
			case "canv_registration_frames_total":
				for _, lp := range m.GetLabel() {
					if lp.GetName() == "outcome" {
						byOutcome[lp.GetValue()] = m.GetCounter().GetValue()
					}
				}
			case "canv_registration_receive_timeouts_total":
				values[mf.GetName()] = m.GetCounter().GetValue()
			case "canv_registration_in_flight", "canv_registration_window":
				values[mf.GetName()] = m.GetGauge().GetValue()
			case "canv_registration_figure_of_merit":
				meritCount = m.GetHistogram().GetSampleCount()
			}
		}
	}

	if byOutcome["submitted"] != 2 || byOutcome["registered"] != 1 || byOutcome["failed"] != 1 {
		t.Errorf("frames_total = %v", byOutcome)
	}
	if values["canv_registration_receive_timeouts_total"] != 1 {
		t.Errorf("receive_timeouts_total = %v, want 1", values["canv_registration_receive_timeouts_total"])
	}
	if values["canv_registration_in_flight"] != 2 {
		t.Errorf("in_flight = %v, want 2", values["canv_registration_in_flight"])
	}
	if values["canv_registration_window"] != 4 {
		t.Errorf("window = %v, want 4", values["canv_registration_window"])
	}
	if meritCount != 1 {
		t.Errorf("figure_of_merit count = %d, want 1", meritCount)
	}
}

func TestPrometheus_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewPrometheus(reg); err != nil {
		t.Fatalf("first NewPrometheus failed: %v", err)
	}
	if _, err := NewPrometheus(reg); err == nil {
		t.Error("second NewPrometheus on the same registry should fail")
	}
}
