package frame

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Group is one partition produced by GroupBy.
type Group struct {
	Key   string
	Frame *Frame
}

// Unique returns the sorted distinct values of a string column.
func (f *Frame) Unique(name string) ([]string, error) {
	col, err := f.Strings(name)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, v := range col {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}

// GroupBy partitions the rows by the value of a string column. Groups are
// ordered by key; rows inside a group keep their source order. Only keys
// that occur in the frame produce a group.
func (f *Frame) GroupBy(name string) ([]Group, error) {
	col, err := f.Strings(name)
	if err != nil {
		return nil, fmt.Errorf("groupby: %w", err)
	}
	rows := make(map[string][]int)
	for i, v := range col {
		rows[v] = append(rows[v], i)
	}
	keys := make([]string, 0, len(rows))
	for k := range rows {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Group, len(keys))
	for i, k := range keys {
		out[i] = Group{Key: k, Frame: f.Take(rows[k])}
	}
	return out, nil
}

// cell addresses one (entity, time) row of a pivoted frame. The instant is
// kept as seconds plus nanoseconds so that keys stay exact for any year.
type cell struct {
	entity string
	sec    int64
	nsec   int32
}

func cellOf(entity string, t time.Time) cell {
	return cell{entity: entity, sec: t.Unix(), nsec: int32(t.Nanosecond())}
}

func (c cell) before(o cell) bool {
	if c.sec != o.sec {
		return c.sec < o.sec
	}
	return c.nsec < o.nsec
}

// Unstack pivots the string column level into one float column per
// distinct level value, taking values from the float column value. The
// result has the columns entity, time and then the level values in sorted
// order; its rows are the distinct (entity, time) pairs sorted by entity and
// then time, with times in UTC. Combinations without an observation are NaN.
//
// A (level, entity, time) key that occurs more than once is rejected with
// ErrDuplicateKey. A level value equal to the entity or time column name is
// rejected with ErrDuplicateName.
func (f *Frame) Unstack(entity, at, level, value string) (*Frame, error) {
	ids, err := f.Strings(entity)
	if err != nil {
		return nil, fmt.Errorf("unstack: %w", err)
	}
	times, err := f.Times(at)
	if err != nil {
		return nil, fmt.Errorf("unstack: %w", err)
	}
	levels, err := f.Strings(level)
	if err != nil {
		return nil, fmt.Errorf("unstack: %w", err)
	}
	vals, err := f.Floats(value)
	if err != nil {
		return nil, fmt.Errorf("unstack: %w", err)
	}

	rowOf := make(map[cell]int)
	var cells []cell
	levelSet := make(map[string]struct{})
	for i := range ids {
		c := cellOf(ids[i], times[i])
		if _, ok := rowOf[c]; !ok {
			rowOf[c] = len(cells)
			cells = append(cells, c)
		}
		levelSet[levels[i]] = struct{}{}
	}
	for _, reserved := range []string{entity, at} {
		if _, ok := levelSet[reserved]; ok {
			return nil, fmt.Errorf("unstack: %w: %s value %q is also the %q column",
				ErrDuplicateName, level, reserved, reserved)
		}
	}

	order := make([]int, len(cells))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ca, cb := cells[order[a]], cells[order[b]]
		if ca.entity != cb.entity {
			return ca.entity < cb.entity
		}
		return ca.before(cb)
	})
	pos := make([]int, len(cells))
	for p, i := range order {
		pos[i] = p
	}

	names := make([]string, 0, len(levelSet))
	for l := range levelSet {
		names = append(names, l)
	}
	sort.Strings(names)
	colOf := make(map[string]int, len(names))
	data := make([][]float64, len(names))
	filled := make([][]bool, len(names))
	for j, n := range names {
		colOf[n] = j
		data[j] = make([]float64, len(cells))
		for r := range data[j] {
			data[j][r] = math.NaN()
		}
		filled[j] = make([]bool, len(cells))
	}

	for i := range ids {
		r := pos[rowOf[cellOf(ids[i], times[i])]]
		j := colOf[levels[i]]
		if filled[j][r] {
			return nil, fmt.Errorf("unstack: %w: (%s=%q, %s=%q, %s=%s)", ErrDuplicateKey,
				level, levels[i], entity, ids[i], at, times[i].Format(time.RFC3339))
		}
		filled[j][r] = true
		data[j][r] = vals[i]
	}

	outIDs := make([]string, len(cells))
	outTimes := make([]time.Time, len(cells))
	for p, i := range order {
		outIDs[p] = cells[i].entity
		outTimes[p] = time.Unix(cells[i].sec, int64(cells[i].nsec)).UTC()
	}
	cols := make([]*Column, 0, len(names)+2)
	cols = append(cols, StringColumn(entity, outIDs), TimeColumn(at, outTimes))
	for j, n := range names {
		cols = append(cols, FloatColumn(n, data[j]))
	}
	out, err := New(cols...)
	if err != nil {
		return nil, fmt.Errorf("unstack: %w", err)
	}
	return out, nil
}
