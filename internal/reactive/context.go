package reactive

// Context is a binding context: the data a region of the document is bound to,
// its parent context, and named values such as $module.
type Context struct {
	Data   any
	Parent *Context
	values map[string]any
}

// NewContext creates a root binding context.
func NewContext(data any) *Context {
	return &Context{Data: data, values: map[string]any{}}
}

// CreateChild creates a context for nested data. Named values are inherited.
func (c *Context) CreateChild(data any) *Context {
	child := &Context{Data: data, Parent: c, values: map[string]any{}}
	for k, v := range c.values {
		child.values[k] = v
	}
	return child
}

// Extend creates a context with the same data and parent plus extra named values.
func (c *Context) Extend(values map[string]any) *Context {
	ext := &Context{Data: c.Data, Parent: c.Parent, values: make(map[string]any, len(c.values)+len(values))}
	for k, v := range c.values {
		ext.values[k] = v
	}
	for k, v := range values {
		ext.values[k] = v
	}
	return ext
}

// Lookup returns a named value.
func (c *Context) Lookup(name string) (any, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c.values[name]
	return v, ok
}

// Set stores a named value on this context only.
func (c *Context) Set(name string, value any) {
	c.values[name] = value
}

// Root returns the outermost context.
func (c *Context) Root() *Context {
	for c.Parent != nil {
		c = c.Parent
	}
	return c
}

// ParentData returns the parent's data, or nil at the root.
func (c *Context) ParentData() any {
	if c.Parent == nil {
		return nil
	}
	return c.Parent.Data
}
