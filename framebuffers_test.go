package rpysight

import "testing"

// Property 6: FrameBuffers voxel color is a saturating sum.
func TestFrameBuffersSaturatingSum(t *testing.T) {
	fb := NewFrameBuffers(0.3)
	p := ImageCoor{X: 0.5, Y: 0.5, Z: 0}

	for k := 1; k <= 5; k++ {
		fb.AddToRenderQueue(p, 0)
		want := float32(k) * 0.3
		if want > 1.0 {
			want = 1.0
		}
		got := fb.Channel(0)[p]
		if got.R != want || got.G != want || got.B != want {
			t.Fatalf("after %d additions: color = %+v, want R=G=B=%v", k, got, want)
		}
	}
}

func TestFrameBuffersMergeReceivesEveryChannel(t *testing.T) {
	fb := NewFrameBuffers(0.25)
	p1 := ImageCoor{X: 0, Y: 0, Z: 0}
	p2 := ImageCoor{X: 1, Y: 1, Z: 0}

	fb.AddToRenderQueue(p1, 0)
	fb.AddToRenderQueue(p2, 2)

	merge := fb.Merge()
	if len(merge) != 2 {
		t.Fatalf("len(merge) = %d, want 2", len(merge))
	}
	if merge[p1].R != 0.25 {
		t.Fatalf("merge[p1].R = %v, want 0.25", merge[p1].R)
	}
	if merge[p2].B != 0.25 {
		t.Fatalf("merge[p2].B = %v, want 0.25", merge[p2].B)
	}
}

func TestFrameBuffersDrainMergeResetsMerge(t *testing.T) {
	fb := NewFrameBuffers(0.1)
	p := ImageCoor{X: 0, Y: 0, Z: 0}
	fb.AddToRenderQueue(p, 1)

	drained := fb.DrainMerge()
	if len(drained) != 1 {
		t.Fatalf("len(drained) = %d, want 1", len(drained))
	}
	if len(fb.Merge()) != 0 {
		t.Fatalf("merge channel not cleared after DrainMerge, len = %d", len(fb.Merge()))
	}
}

func TestFrameBuffersClearNonRenderedChannels(t *testing.T) {
	fb := NewFrameBuffers(0.1)
	p := ImageCoor{X: 0, Y: 0, Z: 0}
	fb.AddToRenderQueue(p, 0)
	fb.AddToRenderQueue(p, 1)

	fb.ClearNonRenderedChannels()
	for i := 0; i < SupportedSpectralChannels; i++ {
		if len(fb.Channel(i)) != 0 {
			t.Fatalf("Channel(%d) not cleared, len = %d", i, len(fb.Channel(i)))
		}
	}
}

func TestFrameBuffersCloneSnapshotIsIndependent(t *testing.T) {
	fb := NewFrameBuffers(0.2)
	p := ImageCoor{X: 0, Y: 0, Z: 0}
	fb.AddToRenderQueue(p, 0)

	clone := fb.CloneSnapshot()
	fb.AddToRenderQueue(p, 0)

	if clone.Channel(0)[p].R != 0.2 {
		t.Fatalf("clone mutated after original changed: %v, want 0.2", clone.Channel(0)[p].R)
	}
	if fb.Channel(0)[p].R != 0.4 {
		t.Fatalf("original.Channel(0)[p].R = %v, want 0.4", fb.Channel(0)[p].R)
	}
}
