package dataset

import (
	"fmt"

	"github.com/kirubashankar/tools-api/internal/model"
)

// rowOrigin tracks where a merged row came from. Stats are derived from the
// origin markers; the markers themselves never reach the output table.
type rowOrigin int

const (
	originBoth rowOrigin = iota
	originLeftOnly
	originRightOnly
)

// Join merges two tables on a key column from each side. Matching is exact
// on the cell text. Duplicate keys on both sides expand to the cross product
// of the matching rows. Right-side columns whose names collide with a left
// column are renamed with a _right suffix; when both keys share a name the
// right key column is dropped instead of duplicated.
func Join(left, right *Table, leftKey, rightKey string, joinType model.JoinType) (*Table, model.MergeStats, error) {
	var stats model.MergeStats

	leftIdx := left.ColumnIndex(leftKey)
	if leftIdx < 0 {
		return nil, stats, fmt.Errorf("join key %q not found in first file", leftKey)
	}
	rightIdx := right.ColumnIndex(rightKey)
	if rightIdx < 0 {
		return nil, stats, fmt.Errorf("join key %q not found in second file", rightKey)
	}
	switch joinType {
	case model.JoinInner, model.JoinLeft, model.JoinRight, model.JoinOuter:
	default:
		return nil, stats, fmt.Errorf("unsupported join type %q", joinType)
	}

	// Right columns carried into the output, with collision renames. The
	// right key is skipped when it has the same name as the left key.
	type rightCol struct {
		idx  int
		name string
	}
	leftNames := make(map[string]struct{}, len(left.Columns))
	for _, c := range left.Columns {
		leftNames[c] = struct{}{}
	}
	var rightCols []rightCol
	for i, c := range right.Columns {
		if i == rightIdx && rightKey == leftKey {
			continue
		}
		name := c
		if _, clash := leftNames[name]; clash {
			name += "_right"
		}
		rightCols = append(rightCols, rightCol{idx: i, name: name})
	}

	columns := make([]string, 0, len(left.Columns)+len(rightCols))
	columns = append(columns, left.Columns...)
	for _, rc := range rightCols {
		columns = append(columns, rc.name)
	}

	index := make(map[string][]int)
	for i, row := range right.Rows {
		key := row[rightIdx]
		index[key] = append(index[key], i)
	}

	out := &Table{Columns: columns}
	origins := make([]rowOrigin, 0, len(left.Rows))
	rightMatched := make([]bool, len(right.Rows))

	emit := func(leftRow, rightRow []string, origin rowOrigin) {
		row := make([]string, 0, len(columns))
		if leftRow != nil {
			row = append(row, leftRow...)
		} else {
			for range left.Columns {
				row = append(row, "")
			}
		}
		for _, rc := range rightCols {
			if rightRow != nil {
				row = append(row, rightRow[rc.idx])
			} else {
				row = append(row, "")
			}
		}
		out.Rows = append(out.Rows, row)
		origins = append(origins, origin)
	}

	for _, lrow := range left.Rows {
		matches := index[lrow[leftIdx]]
		if len(matches) > 0 {
			for _, ri := range matches {
				rightMatched[ri] = true
				emit(lrow, right.Rows[ri], originBoth)
			}
			continue
		}
		if joinType == model.JoinLeft || joinType == model.JoinOuter {
			emit(lrow, nil, originLeftOnly)
		}
	}
	if joinType == model.JoinRight || joinType == model.JoinOuter {
		for i, rrow := range right.Rows {
			if !rightMatched[i] {
				emit(nil, rrow, originRightOnly)
			}
		}
	}

	stats = model.MergeStats{
		LeftRows:   len(left.Rows),
		RightRows:  len(right.Rows),
		OutputRows: len(out.Rows),
		JoinType:   string(joinType),
	}
	for _, o := range origins {
		switch o {
		case originBoth:
			stats.Matched++
		case originLeftOnly:
			stats.LeftOnly++
		case originRightOnly:
			stats.RightOnly++
		}
	}

	return out, stats, nil
}
