package binding

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
	"github.com/zot/modbind/internal/engine"
	"github.com/zot/modbind/internal/module"
	"github.com/zot/modbind/internal/reactive"
)

// goValueType carries Go values, observables included, through HCL evaluation.
var goValueType = cty.Capsule("go value", reflect.TypeOf((*any)(nil)).Elem())

var exprFunctions = map[string]function.Function{
	"upper":    stdlib.UpperFunc,
	"lower":    stdlib.LowerFunc,
	"format":   stdlib.FormatFunc,
	"concat":   stdlib.ConcatFunc,
	"coalesce": stdlib.CoalesceFunc,
	"length":   stdlib.LengthFunc,
	"join":     stdlib.JoinFunc,
}

// Expression is a parsed binding attribute value in HCL expression syntax.
//
// Names resolve against the binding context: module, data, parent and root
// are special; anything else is a property of the context data. A name used
// bare (the whole expression, an object attribute value or a tuple element)
// evaluates to the observable itself when it holds one, so the module
// directive unwraps it. Names used any other way are unwrapped while
// evaluating, with dependency tracking.
type Expression struct {
	Source   string
	expr     hclsyntax.Expression
	computed map[string]bool // names used in a computed position
}

// ParseExpression parses a binding attribute value.
func ParseExpression(src string) (*Expression, error) {
	expr, diags := hclsyntax.ParseExpression([]byte(src), "binding", hcl.Pos{Line: 1, Column: 1, Byte: 0})
	if diags.HasErrors() {
		return nil, fmt.Errorf("binding %q: %s", src, diags.Error())
	}

	direct := map[*hclsyntax.ScopeTraversalExpr]bool{}
	keys := map[hclsyntax.Node]bool{}
	markDirect(expr, direct, keys)

	computed := map[string]bool{}
	hclsyntax.VisitAll(expr, func(node hclsyntax.Node) hcl.Diagnostics {
		if keys[node] {
			return nil
		}
		if st, ok := node.(*hclsyntax.ScopeTraversalExpr); ok && !direct[st] {
			computed[st.Traversal.RootName()] = true
		}
		return nil
	})

	return &Expression{Source: src, expr: expr, computed: computed}, nil
}

func markDirect(e hclsyntax.Expression, direct map[*hclsyntax.ScopeTraversalExpr]bool, keys map[hclsyntax.Node]bool) {
	switch x := e.(type) {
	case *hclsyntax.ScopeTraversalExpr:
		if len(x.Traversal) == 1 {
			direct[x] = true
		}
	case *hclsyntax.ObjectConsExpr:
		for _, item := range x.Items {
			if key, ok := item.KeyExpr.(*hclsyntax.ObjectConsKeyExpr); ok && !key.ForceNonLiteral {
				if hcl.ExprAsKeyword(key.Wrapped) != "" {
					keys[key.Wrapped] = true
				}
			}
			markDirect(item.ValueExpr, direct, keys)
		}
	case *hclsyntax.TupleConsExpr:
		for _, el := range x.Exprs {
			markDirect(el, direct, keys)
		}
	}
}

// Names returns the context names the expression refers to.
func (x *Expression) Names() []string {
	seen := map[string]bool{}
	for _, t := range x.expr.Variables() {
		seen[t.RootName()] = true
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Eval evaluates the expression against ctx.
func (x *Expression) Eval(ctx *reactive.Context) (any, error) {
	vars := map[string]cty.Value{}
	for _, name := range x.Names() {
		v := lookupName(ctx, name)
		if x.computed[name] {
			vars[name] = toCty(v)
		} else {
			vars[name] = directCty(v)
		}
	}

	val, diags := x.expr.Value(&hcl.EvalContext{Variables: vars, Functions: exprFunctions})
	if diags.HasErrors() {
		return nil, fmt.Errorf("binding %q: %s", x.Source, diags.Error())
	}
	return fromCty(val), nil
}

func lookupName(ctx *reactive.Context, name string) any {
	switch name {
	case "module":
		v, _ := ctx.Lookup(engine.ModuleVar)
		return v
	case "data":
		return ctx.Data
	case "parent":
		return ctx.ParentData()
	case "root":
		return ctx.Root().Data
	}
	v, _ := module.LookupProperty(reactive.Unwrap(ctx.Data), name)
	return v
}

func directCty(v any) cty.Value {
	if reactive.IsReadable(v) {
		return capsule(v)
	}
	return toCty(v)
}

func capsule(v any) cty.Value {
	boxed := v
	return cty.CapsuleVal(goValueType, &boxed)
}

// toCty converts a Go value, unwrapping observables with dependency tracking.
func toCty(v any) cty.Value {
	v = reactive.Unwrap(v)
	if t, ok := v.(module.Templated); ok {
		v = t.TemplateData()
	}
	switch val := v.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType)
	case string:
		return cty.StringVal(val)
	case bool:
		return cty.BoolVal(val)
	case int:
		return cty.NumberIntVal(int64(val))
	case int64:
		return cty.NumberIntVal(val)
	case float64:
		return cty.NumberFloatVal(val)
	case []any:
		if len(val) == 0 {
			return cty.EmptyTupleVal
		}
		elems := make([]cty.Value, len(val))
		for i, e := range val {
			elems[i] = toCty(e)
		}
		return cty.TupleVal(elems)
	case map[string]any:
		if len(val) == 0 {
			return cty.EmptyObjectVal
		}
		attrs := make(map[string]cty.Value, len(val))
		for k, e := range val {
			attrs[k] = toCty(e)
		}
		return cty.ObjectVal(attrs)
	}
	return capsule(v)
}

// fromCty converts an evaluated value back to Go. Numbers become float64.
func fromCty(v cty.Value) any {
	if !v.IsKnown() || v.IsNull() {
		return nil
	}
	ty := v.Type()
	switch {
	case ty.Equals(goValueType):
		return *(v.EncapsulatedValue().(*any))
	case ty == cty.String:
		return v.AsString()
	case ty == cty.Number:
		f, _ := v.AsBigFloat().Float64()
		return f
	case ty == cty.Bool:
		return v.True()
	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		out := make([]any, 0, v.LengthInt())
		it := v.ElementIterator()
		for it.Next() {
			_, e := it.Element()
			out = append(out, fromCty(e))
		}
		return out
	case ty.IsMapType() || ty.IsObjectType():
		out := make(map[string]any, v.LengthInt())
		it := v.ElementIterator()
		for it.Next() {
			k, e := it.Element()
			out[k.AsString()] = fromCty(e)
		}
		return out
	}
	return nil
}
