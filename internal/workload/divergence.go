package workload

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// ErrDivergence is matched by every *DivergenceError.
var ErrDivergence = errors.New("tree diverged from the reference map")

// DivergenceError reports the first observable difference between the tree
// and the reference map.
type DivergenceError struct {
	Step int
	Op   string
	Key  int
	// Detail describes the mismatch; for traversal mismatches it is a line diff
	// of the expected (-) and actual (+) key sequences.
	Detail string
}

func (e *DivergenceError) Error() string {
	return fmt.Sprintf("%s: step %d, %s %d: %s", ErrDivergence, e.Step, e.Op, e.Key, e.Detail)
}

// Unwrap makes errors.Is(err, ErrDivergence) hold.
func (e *DivergenceError) Unwrap() error {
	return ErrDivergence
}

// TraversalDiff renders the keys of want and got one per line and returns
// their unified line diff, or "" when they are equal.
func TraversalDiff(want, got []int) string {
	wantText, gotText := keysAsLines(want), keysAsLines(got)
	if wantText == gotText {
		return ""
	}

	dmp := diffmatchpatch.New()
	src, dst, lines := dmp.DiffLinesToRunes(wantText, gotText)
	diffs := dmp.DiffCharsToLines(dmp.DiffMainRunes(src, dst, false), lines)

	var out strings.Builder

	for _, diff := range diffs {
		prefix := " "

		switch diff.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		case diffmatchpatch.DiffEqual:
		}

		for line := range strings.Lines(diff.Text) {
			out.WriteString(prefix)
			out.WriteString(line)
		}
	}

	return out.String()
}

func keysAsLines(keys []int) string {
	var out strings.Builder

	for _, key := range keys {
		out.WriteString(strconv.Itoa(key))
		out.WriteByte('\n')
	}

	return out.String()
}
