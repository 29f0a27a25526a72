package graph

import (
	"strings"
)

// Print renders g in graph text form. Graphs whose constants hold more than
// a handful of tensor elements print those constants elided and do not
// parse back.
func Print(g *Graph) string {
	p := &printer{}
	p.writeHeader(g)
	p.indent++
	for _, n := range g.Nodes {
		p.writeLine(n.String())
	}
	outs := make([]string, len(g.Outputs))
	for i, o := range g.Outputs {
		outs[i] = o.String()
	}
	p.writeLine("return (" + strings.Join(outs, ", ") + ")")
	return p.buf.String()
}

type printer struct {
	buf    strings.Builder
	indent int
}

func (p *printer) writeHeader(g *Graph) {
	params := make([]string, len(g.Inputs))
	for i, in := range g.Inputs {
		params[i] = in.String() + " : " + in.Type.String()
	}
	p.writeLine("graph(" + strings.Join(params, ", ") + "):")
}

func (p *printer) writeLine(s string) {
	p.buf.WriteString(strings.Repeat("  ", p.indent))
	p.buf.WriteString(s)
	p.buf.WriteByte('\n')
}
