package coverage

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"droidbench/internal/trace"
)

// WriteGraph renders r as a Graphviz digraph from action-type nodes to page
// nodes. Covered edges are solid green and labelled with their test
// occurrence count; uncovered edges are dashed red.
func WriteGraph(w io.Writer, r Result) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "digraph transition_coverage {")
	fmt.Fprintln(bw, "  rankdir=LR;")

	actions := map[string]bool{}
	pages := map[string]bool{}
	var order []string
	node := func(set map[string]bool, id, label, shape, color string) {
		if set[id] {
			return
		}
		set[id] = true
		order = append(order, fmt.Sprintf("  %s [label=%s, shape=%s, style=filled, fillcolor=%s];",
			strconv.Quote(id), strconv.Quote(label), shape, color))
	}
	visit := func(k trace.TransitionKey) {
		node(actions, "action:"+k.Type, k.Type, "box", "lightblue")
		node(pages, pageID(k), k.PageLabel(), "ellipse", "lightgreen")
	}
	for _, k := range r.Covered {
		visit(k)
	}
	for _, k := range r.Uncovered {
		visit(k)
	}
	for _, line := range order {
		fmt.Fprintln(bw, line)
	}

	counts := make(map[trace.TransitionKey]int, len(r.Counts))
	for _, c := range r.Counts {
		counts[c.Transition] = c.Count
	}
	for _, k := range r.Covered {
		fmt.Fprintf(bw, "  %s -> %s [color=green, penwidth=2, label=%q];\n",
			strconv.Quote("action:"+k.Type), strconv.Quote(pageID(k)), strconv.Itoa(counts[k]))
	}
	for _, k := range r.Uncovered {
		fmt.Fprintf(bw, "  %s -> %s [color=red, style=dashed];\n",
			strconv.Quote("action:"+k.Type), strconv.Quote(pageID(k)))
	}
	fmt.Fprintln(bw, "}")
	return bw.Flush()
}

// pageID is the DOT node id of a transition's page. Observed pages are
// prefixed "page:", so the null page cannot collide with any of them.
func pageID(k trace.TransitionKey) string {
	if !k.Known {
		return "null-page"
	}
	return "page:" + k.Page
}
