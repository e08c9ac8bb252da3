package dom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAndFind(t *testing.T) {
	doc, err := ParseString(`<html><body>
<script type="text/html" id="greeting"><span data-text="name"></span></script>
<div id="target">  Hello
   world </div>
</body></html>`)
	require.NoError(t, err)

	script := GetElementByID(doc, "greeting")
	require.NotNil(t, script)
	assert.Equal(t, "script", script.Tag)
	assert.Equal(t, `<span data-text="name"></span>`, InnerHTML(script))

	target := GetElementByID(doc, "target")
	require.NotNil(t, target)
	assert.Equal(t, "Hello world", InnerText(target))
	assert.Nil(t, GetElementByID(doc, "missing"))
	assert.Equal(t, "body", Body(doc).Tag)
}

func TestParseFragmentRoundTrip(t *testing.T) {
	markup := `<p class="x">a &amp; b "quoted"</p><!--note--><br>`
	nodes, err := ParseFragment(markup)
	require.NoError(t, err)
	require.Len(t, nodes, 3)

	div := NewElement("div")
	for _, n := range nodes {
		div.AppendChild(n)
	}
	assert.Equal(t, markup, InnerHTML(div))
}

func TestCleanNodeRunsCallbacksOnce(t *testing.T) {
	parent := NewElement("div")
	child := NewElement("span")
	parent.AppendChild(child)

	var order []string
	parent.AddDisposeCallback(func() { order = append(order, "parent") })
	child.AddDisposeCallback(func() { order = append(order, "child") })

	CleanNode(parent)
	CleanNode(parent)
	assert.Equal(t, []string{"child", "parent"}, order)
}

func TestRemoveNode(t *testing.T) {
	parent := NewElement("div")
	child := NewElement("span")
	parent.AppendChild(child)
	cleaned := false
	child.AddDisposeCallback(func() { cleaned = true })

	RemoveNode(child)
	assert.True(t, cleaned)
	assert.Empty(t, parent.Children)
	assert.Nil(t, child.Parent)
}

func TestSetChildrenCleansOld(t *testing.T) {
	parent := NewElement("div")
	old := NewText("old")
	parent.AppendChild(old)
	cleaned := false
	old.AddDisposeCallback(func() { cleaned = true })

	SetChildren(parent, []*Node{NewText("new")})
	assert.True(t, cleaned)
	assert.Equal(t, "new", InnerText(parent))
	assert.Same(t, parent, parent.Children[0].Parent)
}

func TestTakeChildrenDoesNotClean(t *testing.T) {
	parent := NewElement("div")
	child := NewElement("b")
	parent.AppendChild(child)
	cleaned := false
	child.AddDisposeCallback(func() { cleaned = true })

	taken := TakeChildren(parent)
	require.Len(t, taken, 1)
	assert.False(t, cleaned)
	assert.Empty(t, parent.Children)
}

func TestIsAnonymous(t *testing.T) {
	textOnly := NewElement("div")
	textOnly.AppendChild(NewText("  "))
	assert.False(t, IsAnonymous(textOnly))

	withElement := NewElement("div")
	withElement.AppendChild(NewElement("span"))
	assert.True(t, IsAnonymous(withElement))

	withComment := NewElement("div")
	withComment.AppendChild(NewComment("x"))
	assert.True(t, IsAnonymous(withComment))
}

func TestCloneIsDeep(t *testing.T) {
	n := NewElement("div", "id", "a")
	n.AppendChild(NewText("t"))
	cp := Clone(n)
	cp.SetAttr("id", "b")
	cp.Children[0].Data = "u"

	assert.Equal(t, "a", n.ID())
	assert.Equal(t, "t", n.Children[0].Data)
	assert.Nil(t, cp.Parent)
}

func TestAttrs(t *testing.T) {
	n := NewElement("DIV", "data-module", "'one'")
	assert.Equal(t, "div", n.Tag)
	v, ok := n.Attr("data-module")
	require.True(t, ok)
	assert.Equal(t, "'one'", v)

	n.RemoveAttr("data-module")
	_, ok = n.Attr("data-module")
	assert.False(t, ok)
	assert.Equal(t, `<div></div>`, OuterHTML(n))
}
