package sandbox

import (
	"slices"
	"strconv"

	"go.trai.ch/zerr"
)

// DemoSource is the program evaluated when no source file is given.
const DemoSource = `# demo program
let a = 1 + 2;
let b = a + c;
let c = 4;
let d = e;
let e = d;
print b + x;
`

type environment struct {
	scopes int
}

// DemoGrammar returns the calc grammar. Besides ordinary attributes it carries deliberate
// defects: Let.uid draws from a shared counter, so its value depends on evaluation order, and
// Let.detached returns a node that is never attached to the tree.
func DemoGrammar() *Grammar {
	return NewGrammar(
		&Attribute{
			Name:  "lets",
			Types: []string{TypeProgram},
			Equation: func(_ *Program, n *Node, _ []any) (any, error) {
				var out []any
				for _, c := range n.Children {
					if c.Type == TypeLet {
						out = append(out, c)
					}
				}
				return out, nil
			},
		},
		&Attribute{
			Name:   "lookup",
			Types:  []string{TypeProgram},
			Params: 1,
			Equation: func(p *Program, n *Node, args []any) (any, error) {
				lets, err := p.Get(n, "lets")
				if err != nil {
					return nil, err
				}
				for _, l := range lets.([]any) {
					if l.(*Node).Label == args[0] {
						return l, nil
					}
				}
				return nil, nil
			},
		},
		&Attribute{
			Name:  "errors",
			Types: []string{TypeProgram},
			Equation: func(p *Program, n *Node, _ []any) (any, error) {
				out := []any{}
				var walkErr error
				n.Walk(func(c *Node) bool {
					if walkErr != nil || c.Type != TypeRef {
						return walkErr == nil
					}
					decl, err := p.Get(c, "decl")
					if err != nil {
						walkErr = err
						return false
					}
					if decl == nil {
						out = append(out, "undeclared '"+c.Label+"' at "+strconv.Itoa(c.Start))
					}
					return true
				})
				return out, walkErr
			},
		},
		&Attribute{
			Name:  "prelude",
			Types: []string{TypeProgram},
			NTA:   true,
			Equation: func(_ *Program, _ *Node, _ []any) (any, error) {
				return NewNode(TypeLet, "zero", 0, 0, NewNode(TypeNum, "0", 0, 0)), nil
			},
		},
		&Attribute{
			Name:  "stamp",
			Types: []string{TypeProgram},
			Equation: func(p *Program, _ *Node, _ []any) (any, error) {
				return p.Globals().Next("stamp"), nil
			},
		},
		&Attribute{
			Name:  "env",
			Types: []string{TypeProgram},
			Equation: func(_ *Program, n *Node, _ []any) (any, error) {
				return &environment{scopes: len(n.Children)}, nil
			},
		},
		&Attribute{
			Name:  "decl",
			Types: []string{TypeRef},
			Equation: func(p *Program, n *Node, _ []any) (any, error) {
				v, err := p.Get(p.Root(), "lookup", n.Label)
				if err != nil || v == nil {
					return nil, err
				}
				return v, nil
			},
		},
		&Attribute{
			Name:  "value",
			Types: []string{TypeRef},
			Equation: func(p *Program, n *Node, _ []any) (any, error) {
				decl, err := p.Get(n, "decl")
				if err != nil {
					return nil, err
				}
				if decl == nil {
					return nil, zerr.With(zerr.New("undeclared variable"), "name", n.Label)
				}
				return p.Get(decl.(*Node), "value")
			},
		},
		&Attribute{
			Name:  "value",
			Types: []string{TypeNum},
			Equation: func(_ *Program, n *Node, _ []any) (any, error) {
				return strconv.Atoi(n.Label)
			},
		},
		&Attribute{
			Name:  "value",
			Types: []string{TypeAdd},
			Equation: func(p *Program, n *Node, _ []any) (any, error) {
				l, err := p.Get(n.Children[0], "value")
				if err != nil {
					return nil, err
				}
				r, err := p.Get(n.Children[1], "value")
				if err != nil {
					return nil, err
				}
				return l.(int) + r.(int), nil
			},
		},
		&Attribute{
			Name:  "value",
			Types: []string{TypeLet, TypePrint},
			Equation: func(p *Program, n *Node, _ []any) (any, error) {
				return p.Get(n.Children[0], "value")
			},
		},
		&Attribute{
			Name:       "isConst",
			Types:      []string{TypeNum, TypeRef, TypeAdd, TypeLet, TypePrint},
			Resettable: true,
			Equation: func(p *Program, n *Node, _ []any) (any, error) {
				switch n.Type {
				case TypeNum:
					return true, nil
				case TypeRef:
					return false, nil
				}
				for _, c := range n.Children {
					v, err := p.Get(c, "isConst")
					if err != nil {
						return nil, err
					}
					if !v.(bool) {
						return false, nil
					}
				}
				return true, nil
			},
		},
		&Attribute{
			Name:       "uid",
			Types:      []string{TypeLet},
			Resettable: true,
			Equation: func(p *Program, _ *Node, _ []any) (any, error) {
				return p.Globals().Next("uid"), nil
			},
		},
		&Attribute{
			Name:  "label",
			Types: []string{TypeLet},
			Equation: func(p *Program, n *Node, _ []any) (any, error) {
				uid, err := p.Get(n, "uid")
				if err != nil {
					return nil, err
				}
				return n.Label + "#" + strconv.Itoa(uid.(int)), nil
			},
		},
		&Attribute{
			Name:     "reaches",
			Types:    []string{TypeLet},
			Circular: true,
			Bottom:   []any{},
			Equation: func(p *Program, n *Node, _ []any) (any, error) {
				var names []string
				var walkErr error
				n.Walk(func(c *Node) bool {
					if walkErr != nil || c.Type != TypeRef {
						return walkErr == nil
					}
					names = append(names, c.Label)
					decl, err := p.Get(c, "decl")
					if err != nil {
						walkErr = err
						return false
					}
					if decl == nil {
						return true
					}
					more, err := p.Get(decl.(*Node), "reaches")
					if err != nil {
						walkErr = err
						return false
					}
					for _, m := range more.([]any) {
						names = append(names, m.(string))
					}
					return true
				})
				if walkErr != nil {
					return nil, walkErr
				}
				slices.Sort(names)
				names = slices.Compact(names)
				out := make([]any, len(names))
				for i, s := range names {
					out[i] = s
				}
				return out, nil
			},
		},
		&Attribute{
			Name:  "detached",
			Types: []string{TypeLet},
			Equation: func(_ *Program, n *Node, _ []any) (any, error) {
				return NewNode(TypeNum, "0", n.Start, n.Start), nil
			},
		},
		&Attribute{
			Name:     "text",
			Types:    []string{TypePrint},
			Uncached: true,
			Equation: func(p *Program, n *Node, _ []any) (any, error) {
				v, err := p.Get(n, "value")
				if err != nil {
					return "<error>", nil
				}
				return strconv.Itoa(v.(int)), nil
			},
		},
	)
}
