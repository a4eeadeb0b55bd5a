package executor

import (
	"sort"

	"github.com/vertexdb/vertexdb/pkg/ir"
	"github.com/vertexdb/vertexdb/pkg/planner"
)

// RunPipeline drives a compiled match executable through its modifier
// chain (filter, sort, offset, limit, reduce), invoking emit for every
// row that survives to the end. Modifiers run in the order they appear
// in the modifiers argument, which is the order the query lists them;
// they are not reordered.
func (c *Context) RunPipeline(exe *planner.MatchExecutable, input Row, modifiers []ir.Modifier, emit func(Row) bool) error {
	rows, err := c.collectRows(exe, input)
	if err != nil {
		return err
	}
	for _, m := range modifiers {
		if err := c.checkInterrupt(); err != nil {
			return err
		}
		switch m.Kind {
		case ir.ModifierFilter:
			rows = c.applyFilter(exe, m, rows)
		case ir.ModifierSort:
			rows = c.applySort(exe, m, rows)
		case ir.ModifierOffset:
			rows = applyOffset(m, rows)
		case ir.ModifierLimit:
			rows = applyLimit(m, rows)
		case ir.ModifierReduce:
			rows = c.applyReduce(exe, m, rows)
		}
	}
	for _, row := range rows {
		if err := c.checkInterrupt(); err != nil {
			return err
		}
		if !emit(row) {
			break
		}
	}
	return nil
}

func (c *Context) collectRows(exe *planner.MatchExecutable, input Row) ([]Row, error) {
	var rows []Row
	err := c.RunMatch(exe, input, func(r Row) bool {
		rows = append(rows, r)
		return true
	})
	return rows, err
}

// applyFilter drops rows that leave any of the modifier's named
// variables unbound.
func (c *Context) applyFilter(exe *planner.MatchExecutable, m ir.Modifier, rows []Row) []Row {
	kept := rows[:0]
	for _, row := range rows {
		ok := true
		for _, v := range m.FilterVariables {
			pos, posOK := variablePosition(exe, v)
			if !posOK || !row.bound(pos) {
				ok = false
				break
			}
		}
		if ok {
			kept = append(kept, row)
		}
	}
	return kept
}

// applySort is a blocking collector: the whole batch is drained before
// any row is yielded, so a composite comparator over every sort key can
// be applied in one pass.
func (c *Context) applySort(exe *planner.MatchExecutable, m ir.Modifier, rows []Row) []Row {
	sorted := append([]Row(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool {
		for _, key := range m.SortKeys {
			pos, ok := variablePosition(exe, key.Variable)
			if !ok {
				continue
			}
			a, aok := resolveComparableValue(sorted[i].get(pos))
			b, bok := resolveComparableValue(sorted[j].get(pos))
			if !aok || !bok {
				continue
			}
			cmp, ok := compareValues(a, b)
			if !ok || cmp == 0 {
				continue
			}
			if key.Descending {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
	return sorted
}

func applyOffset(m ir.Modifier, rows []Row) []Row {
	if m.Offset >= len(rows) {
		return nil
	}
	return rows[m.Offset:]
}

func applyLimit(m ir.Modifier, rows []Row) []Row {
	if m.Limit < len(rows) {
		return rows[:m.Limit]
	}
	return rows
}

// applyReduce is a blocking group-by: rows sharing identical values at
// every GroupBy position accumulate into one output row carrying the
// group-by columns followed by each Reduction's result.
func (c *Context) applyReduce(exe *planner.MatchExecutable, m ir.Modifier, rows []Row) []Row {
	type group struct {
		key    string
		keyRow Row
		accs   []reduceAcc
	}
	groups := make(map[string]*group)
	var order []string

	for _, row := range rows {
		key := c.groupKey(exe, m.GroupBy, row)
		g, ok := groups[key]
		if !ok {
			g = &group{key: key, keyRow: row, accs: make([]reduceAcc, len(m.Reductions))}
			groups[key] = g
			order = append(order, key)
		}
		for i, red := range m.Reductions {
			g.accs[i].accumulate(c, exe, red, row)
		}
	}

	out := make([]Row, 0, len(order))
	for _, key := range order {
		g := groups[key]
		result := newRow(exe.OutputWidth)
		for _, v := range m.GroupBy {
			if pos, ok := variablePosition(exe, v); ok {
				result[pos] = g.keyRow.get(pos)
			}
		}
		for i, red := range m.Reductions {
			if pos, ok := variablePosition(exe, red.As); ok {
				result[pos] = g.accs[i].result()
			}
		}
		out = append(out, result)
	}
	return out
}

func (c *Context) groupKey(exe *planner.MatchExecutable, groupBy []ir.Variable, row Row) string {
	key := make([]byte, 0, 16*len(groupBy))
	for _, v := range groupBy {
		pos, ok := variablePosition(exe, v)
		if !ok {
			continue
		}
		cell := row.get(pos)
		if vertex, ok := objectVertexOf(cell); ok {
			key = append(key, byte(vertex.Prefix))
			key = appendUint64(key, uint64(vertex.TypeID))
			key = appendUint64(key, uint64(vertex.ObjectID))
			continue
		}
		if lit, ok := resolveComparableValue(cell); ok {
			key = append(key, byte(lit.kind))
			key = append(key, lit.str...)
			key = appendUint64(key, uint64(lit.long))
		}
	}
	return string(key)
}

func appendUint64(b []byte, v uint64) []byte {
	for i := 0; i < 8; i++ {
		b = append(b, byte(v>>(56-8*i)))
	}
	return b
}

type reduceAcc struct {
	op      ir.ReduceOp
	count   int64
	sum     float64
	max     float64
	min     float64
	started bool
}

func (a *reduceAcc) accumulate(c *Context, exe *planner.MatchExecutable, red ir.Reduction, row Row) {
	a.op = red.Op
	a.count++
	if red.Op == ir.ReduceCount {
		return
	}
	pos, ok := variablePosition(exe, red.Variable)
	if !ok {
		return
	}
	lit, ok := resolveComparableValue(row.get(pos))
	if !ok {
		return
	}
	v := numericOf(lit)
	a.sum += v
	if !a.started || v > a.max {
		a.max = v
	}
	if !a.started || v < a.min {
		a.min = v
	}
	a.started = true
}

func (a *reduceAcc) result() VariableValue {
	switch a.op {
	case ir.ReduceCount:
		return valueCell(longValue(a.count))
	case ir.ReduceSum:
		return valueCell(doubleValue(a.sum))
	case ir.ReduceMax:
		return valueCell(doubleValue(a.max))
	case ir.ReduceMin:
		return valueCell(doubleValue(a.min))
	case ir.ReduceMean:
		if a.count == 0 {
			return valueCell(doubleValue(0))
		}
		return valueCell(doubleValue(a.sum / float64(a.count)))
	default:
		return VariableValue{}
	}
}
