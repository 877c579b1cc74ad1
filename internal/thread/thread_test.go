package thread

import (
	"testing"
	"time"

	"github.com/transitlab/transitpulse/internal/feedback"
)

func unit(id, threadID, parentID string) feedback.TextUnit {
	return feedback.TextUnit{
		ID:        id,
		ThreadID:  threadID,
		ParentID:  parentID,
		Source:    feedback.SourceReddit,
		RawText:   "text for " + id,
		CreatedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func walkOrder(f *Forest) []string {
	var order []string
	f.Walk(func(_, n *Node) { order = append(order, n.Unit.ID) })
	return order
}

func TestBuildSimpleTree(t *testing.T) {
	f := Build([]feedback.TextUnit{
		unit("post", "t1", ""),
		unit("c1", "t1", "post"),
		unit("c2", "t1", "post"),
		unit("c1a", "t1", "c1"),
	})
	if len(f.Roots) != 1 || len(f.Orphans) != 0 {
		t.Fatalf("got %d roots %d orphans, want 1 and 0", len(f.Roots), len(f.Orphans))
	}
	got := walkOrder(f)
	want := []string{"post", "c1", "c1a", "c2"}
	if len(got) != len(want) {
		t.Fatalf("walk order %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("walk[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestBuildMultipleThreads(t *testing.T) {
	f := Build([]feedback.TextUnit{
		unit("a", "t1", ""),
		unit("b", "t2", ""),
		unit("b1", "t2", "b"),
		unit("a1", "t1", "a"),
	})
	if len(f.Roots) != 2 {
		t.Fatalf("got %d roots, want 2", len(f.Roots))
	}
	if f.Size() != 4 {
		t.Errorf("Size = %d, want 4", f.Size())
	}
}

func TestBuildOrphan(t *testing.T) {
	f := Build([]feedback.TextUnit{
		unit("post", "t1", ""),
		unit("lost", "t1", "deleted-parent"),
		unit("lost-child", "t1", "lost"),
	})
	if len(f.Roots) != 1 {
		t.Fatalf("got %d roots, want 1", len(f.Roots))
	}
	if len(f.Orphans) != 1 {
		t.Fatalf("got %d orphans, want 1", len(f.Orphans))
	}
	o := f.Orphans[0]
	if o.Unit.ID != "lost" || !o.Orphan {
		t.Errorf("orphan = %+v, want unit lost with Orphan set", o)
	}
	// The orphan keeps its own subtree.
	if len(o.Children) != 1 || o.Children[0].Unit.ID != "lost-child" {
		t.Errorf("orphan children = %v, want [lost-child]", len(o.Children))
	}
	if f.Size() != 3 {
		t.Errorf("Size = %d, want all units walkable", f.Size())
	}
}

func TestBuildCrossThreadParentIsOrphan(t *testing.T) {
	f := Build([]feedback.TextUnit{
		unit("a", "t1", ""),
		unit("b", "t2", "a"),
	})
	if len(f.Orphans) != 1 || f.Orphans[0].Unit.ID != "b" {
		t.Fatalf("want unit b orphaned on cross-thread parent, got %d orphans", len(f.Orphans))
	}
}

func TestBuildCycleForceRoots(t *testing.T) {
	f := Build([]feedback.TextUnit{
		unit("x", "t1", "y"),
		unit("y", "t1", "x"),
		unit("z", "t1", "y"),
	})
	if len(f.Roots) != 1 {
		t.Fatalf("got %d roots, want 1 force-rooted", len(f.Roots))
	}
	root := f.Roots[0]
	if root.Unit.ID != "x" || !root.ForcedRoot {
		t.Fatalf("root = %s forced=%v, want x force-rooted", root.Unit.ID, root.ForcedRoot)
	}
	if f.Size() != 3 {
		t.Errorf("Size = %d, want every cycle member reachable", f.Size())
	}
}

func TestBuildSelfParent(t *testing.T) {
	f := Build([]feedback.TextUnit{unit("loner", "t1", "loner")})
	if len(f.Roots) != 1 || !f.Roots[0].ForcedRoot {
		t.Fatalf("self-parented unit must be force-rooted, got %+v", f.Roots)
	}
	if len(f.Roots[0].Children) != 0 {
		t.Errorf("self-parented unit must not be its own child")
	}
}

func TestBuildDeterministic(t *testing.T) {
	units := []feedback.TextUnit{
		unit("post", "t1", ""),
		unit("c2", "t1", "post"),
		unit("c1", "t1", "post"),
	}
	first := walkOrder(Build(units))
	for i := 0; i < 5; i++ {
		again := walkOrder(Build(units))
		for j := range first {
			if again[j] != first[j] {
				t.Fatalf("walk order changed between builds: %v vs %v", first, again)
			}
		}
	}
}
