// Package diff computes unified text diffs for content assertions. Output
// mirrors the conventional unified format: "@@" hunk headers and " ", "+",
// "-" prefixed lines with three lines of context, each keeping its original
// line ending.
package diff

import (
	"fmt"
	"strings"
)

const contextLines = 3

// Lines splits text into lines, each keeping its trailing newline. The last
// line has no newline if the text does not end with one.
func Lines(text string) []string {
	if text == "" {
		return nil
	}
	var out []string
	for len(text) > 0 {
		i := strings.IndexByte(text, '\n')
		if i < 0 {
			out = append(out, text)
			break
		}
		out = append(out, text[:i+1])
		text = text[i+1:]
	}
	return out
}

// Unified returns the unified diff between old and new. Equal inputs yield
// no lines.
func Unified(old, new string) []string {
	a, b := Lines(old), Lines(new)
	edits := editScript(a, b)

	changed := false
	for _, e := range edits {
		if e.kind != ' ' {
			changed = true
			break
		}
	}
	if !changed {
		return nil
	}

	return hunks(edits)
}

type edit struct {
	kind byte // ' ', '+', '-'
	line string
}

// hunks groups an edit script into unified hunks with contextLines of
// context, merging hunks whose gaps overlap.
func hunks(edits []edit) []string {
	var out []string

	i := 0
	for i < len(edits) {
		// Find the next change.
		for i < len(edits) && edits[i].kind == ' ' {
			i++
		}
		if i == len(edits) {
			break
		}

		start := max(i-contextLines, 0)
		end := i
		for j := i; j < len(edits); j++ {
			if edits[j].kind != ' ' {
				end = j + 1
				continue
			}
			// A gap of more than twice the context splits the hunk.
			if j-end >= 2*contextLines {
				break
			}
		}
		stop := min(end+contextLines, len(edits))

		out = append(out, header(edits, start, stop))
		for _, e := range edits[start:stop] {
			out = append(out, string(e.kind)+e.line)
		}
		i = stop
	}

	return out
}

func header(edits []edit, start, stop int) string {
	aStart, bStart := 1, 1
	for _, e := range edits[:start] {
		switch e.kind {
		case ' ':
			aStart++
			bStart++
		case '-':
			aStart++
		case '+':
			bStart++
		}
	}
	var aLen, bLen int
	for _, e := range edits[start:stop] {
		switch e.kind {
		case ' ':
			aLen++
			bLen++
		case '-':
			aLen++
		case '+':
			bLen++
		}
	}
	return fmt.Sprintf("@@ -%s +%s @@", rangeSpec(aStart, aLen), rangeSpec(bStart, bLen))
}

func rangeSpec(start, length int) string {
	switch length {
	case 0:
		return fmt.Sprintf("%d,0", start-1)
	case 1:
		return fmt.Sprintf("%d", start)
	default:
		return fmt.Sprintf("%d,%d", start, length)
	}
}

// editScript computes a shortest edit script with the Myers greedy
// algorithm.
func editScript(a, b []string) []edit {
	n, m := len(a), len(b)
	if n == 0 && m == 0 {
		return nil
	}

	size := n + m
	offset := size
	v := make([]int, 2*size+1)
	var trace [][]int

	found := -1
search:
	for d := 0; d <= size; d++ {
		snapshot := make([]int, len(v))
		copy(snapshot, v)
		trace = append(trace, snapshot)

		for k := -d; k <= d; k += 2 {
			var x int
			if k == -d || (k != d && v[offset+k-1] < v[offset+k+1]) {
				x = v[offset+k+1]
			} else {
				x = v[offset+k-1] + 1
			}
			y := x - k
			for x < n && y < m && a[x] == b[y] {
				x++
				y++
			}
			v[offset+k] = x
			if x >= n && y >= m {
				found = d
				break search
			}
		}
	}

	var reversed []edit
	x, y := n, m
	for d := found; d > 0; d-- {
		prev := trace[d]
		k := x - y

		var prevK int
		if k == -d || (k != d && prev[offset+k-1] < prev[offset+k+1]) {
			prevK = k + 1
		} else {
			prevK = k - 1
		}
		prevX := prev[offset+prevK]
		prevY := prevX - prevK

		for x > prevX && y > prevY {
			reversed = append(reversed, edit{' ', a[x-1]})
			x--
			y--
		}
		if x == prevX {
			reversed = append(reversed, edit{'+', b[y-1]})
			y--
		} else {
			reversed = append(reversed, edit{'-', a[x-1]})
			x--
		}
	}
	for x > 0 && y > 0 {
		reversed = append(reversed, edit{' ', a[x-1]})
		x--
		y--
	}

	for i, j := 0, len(reversed)-1; i < j; i, j = i+1, j-1 {
		reversed[i], reversed[j] = reversed[j], reversed[i]
	}
	return reversed
}
