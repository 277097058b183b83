package dataset

import (
	"testing"

	"github.com/kirubashankar/tools-api/internal/model"
)

func left() *Table {
	return &Table{
		Columns: []string{"id", "name"},
		Rows:    [][]string{{"1", "alice"}, {"2", "bob"}, {"3", "carol"}},
	}
}

func right() *Table {
	return &Table{
		Columns: []string{"id", "city"},
		Rows:    [][]string{{"1", "paris"}, {"3", "tokyo"}, {"4", "oslo"}},
	}
}

func TestInnerJoin(t *testing.T) {
	out, stats, err := Join(left(), right(), "id", "id", model.JoinInner)
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if stats.OutputRows != 2 || stats.Matched != 2 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.LeftOnly != 0 || stats.RightOnly != 0 {
		t.Errorf("inner join should have no unmatched rows: %+v", stats)
	}
	// Shared key name yields a single id column.
	if len(out.Columns) != 3 {
		t.Errorf("unexpected columns: %v", out.Columns)
	}
	if out.Rows[0][2] != "paris" {
		t.Errorf("expected paris, got %q", out.Rows[0][2])
	}
}

func TestInnerJoinAllMatched(t *testing.T) {
	l := left()
	r := &Table{
		Columns: []string{"id", "x"},
		Rows:    [][]string{{"1", "a"}, {"2", "b"}, {"3", "c"}},
	}
	_, stats, err := Join(l, r, "id", "id", model.JoinInner)
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	// Every left key matches exactly once: output equals left side exactly.
	if stats.OutputRows != stats.LeftRows || stats.Matched != stats.LeftRows {
		t.Errorf("expected outputRows == leftRows == matched, got %+v", stats)
	}
}

func TestLeftJoin(t *testing.T) {
	out, stats, err := Join(left(), right(), "id", "id", model.JoinLeft)
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if stats.OutputRows != 3 || stats.Matched != 2 || stats.LeftOnly != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	// bob has no match: right cells empty.
	if out.Rows[1][0] != "2" || out.Rows[1][2] != "" {
		t.Errorf("unexpected left-only row: %v", out.Rows[1])
	}
}

func TestRightJoin(t *testing.T) {
	_, stats, err := Join(left(), right(), "id", "id", model.JoinRight)
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if stats.OutputRows != 3 || stats.Matched != 2 || stats.RightOnly != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.LeftOnly != 0 {
		t.Errorf("right join should drop left-only rows: %+v", stats)
	}
}

func TestOuterJoin(t *testing.T) {
	_, stats, err := Join(left(), right(), "id", "id", model.JoinOuter)
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if stats.OutputRows != 4 || stats.Matched != 2 || stats.LeftOnly != 1 || stats.RightOnly != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestJoinDuplicateKeysExpand(t *testing.T) {
	l := &Table{Columns: []string{"k", "lv"}, Rows: [][]string{{"a", "1"}, {"a", "2"}}}
	r := &Table{Columns: []string{"k", "rv"}, Rows: [][]string{{"a", "x"}, {"a", "y"}, {"a", "z"}}}
	_, stats, err := Join(l, r, "k", "k", model.JoinInner)
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if stats.OutputRows != 6 || stats.Matched != 6 {
		t.Errorf("expected 2x3 cross product, got %+v", stats)
	}
}

func TestJoinDifferentKeyNames(t *testing.T) {
	l := &Table{Columns: []string{"email", "name"}, Rows: [][]string{{"a@x.com", "alice"}}}
	r := &Table{Columns: []string{"contact", "name"}, Rows: [][]string{{"a@x.com", "aliceB"}}}
	out, stats, err := Join(l, r, "email", "contact", model.JoinInner)
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if stats.Matched != 1 {
		t.Errorf("expected one match, got %+v", stats)
	}
	// Both keys kept; colliding right column renamed.
	want := []string{"email", "name", "contact", "name_right"}
	if len(out.Columns) != len(want) {
		t.Fatalf("unexpected columns: %v", out.Columns)
	}
	for i, c := range want {
		if out.Columns[i] != c {
			t.Errorf("column %d: expected %q, got %q", i, c, out.Columns[i])
		}
	}
	if out.Rows[0][3] != "aliceB" {
		t.Errorf("expected aliceB in name_right, got %q", out.Rows[0][3])
	}
}

func TestJoinMissingKeyColumn(t *testing.T) {
	if _, _, err := Join(left(), right(), "nope", "id", model.JoinInner); err == nil {
		t.Error("expected error for missing left key")
	}
	if _, _, err := Join(left(), right(), "id", "nope", model.JoinInner); err == nil {
		t.Error("expected error for missing right key")
	}
}

func TestJoinBadType(t *testing.T) {
	if _, _, err := Join(left(), right(), "id", "id", "cross"); err == nil {
		t.Error("expected error for unsupported join type")
	}
}
