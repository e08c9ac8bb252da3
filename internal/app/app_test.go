package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zot/modbind/internal/config"
	"go.uber.org/zap"
)

func testSite() fstest.MapFS {
	return fstest.MapFS{
		"index.html": {Data: []byte(`<html><body>` +
			`<h1 data-text="title"></h1>` +
			`<div id="main" data-module="current"></div>` +
			`<div id="person" data-module='{name = "person", data = ["Stan", "Vance"]}'></div>` +
			`</body></html>`)},
		"modules/person.lua": {Data: []byte(`
			return function(first, last)
				return { first = first or "Bob", last = last or "Smith" }
			end`)},
		"modules/one.lua":  {Data: []byte(`return { label = "one" }`)},
		"modules/two.lua":  {Data: []byte(`return { label = "two" }`)},
		"templates/person.tmpl.html": {Data: []byte(`<p>{{.first}} {{.last}}</p>`)},
		"templates/one.tmpl.html":    {Data: []byte(`<b>{{.label}}</b>`)},
		"templates/two.tmpl.html":    {Data: []byte(`<i>{{.label}}</i>`)},
	}
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.SetLogger(zap.NewNop())
	cfg.Page.Values = map[string]any{"title": "Hello", "current": "one"}
	return cfg
}

func waitIdle(t *testing.T, a *App) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Wait(ctx))
}

func TestLuaPageRenders(t *testing.T) {
	a, err := New(testConfig(), testSite(), "", nil)
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, "lua", a.LoaderName)

	waitIdle(t, a)
	body, err := a.BodyHTML()
	require.NoError(t, err)
	assert.Contains(t, body, `<h1 data-text="title">Hello</h1>`)
	assert.Contains(t, body, `<b>one</b>`)
	assert.Contains(t, body, `<p>Stan Vance</p>`)

	require.NoError(t, a.Set("current", "two"))
	waitIdle(t, a)
	body, err = a.BodyHTML()
	require.NoError(t, err)
	assert.Contains(t, body, `<i>two</i>`)
	assert.NotContains(t, body, `<b>one</b>`)

	bindings, err := a.Bindings()
	require.NoError(t, err)
	require.Len(t, bindings, 2)
	assert.Equal(t, "person", bindings[0].Name)
	assert.Equal(t, "two", bindings[1].Name)
	assert.Equal(t, "bound", bindings[1].State)

	templates, err := a.Templates()
	require.NoError(t, err)
	keys := []string{}
	for _, tmpl := range templates {
		keys = append(keys, tmpl.Key)
		assert.True(t, tmpl.Retrieved, tmpl.Key)
	}
	assert.Equal(t, []string{"one", "person", "two"}, keys)

	values, err := a.Values()
	require.NoError(t, err)
	assert.Equal(t, "two", values["current"])
}

func TestNativeModules(t *testing.T) {
	cfg := testConfig()
	cfg.Lua.Enabled = false
	modules := map[string]any{
		"one":    map[string]any{"label": "native"},
		"person": func(first, last string) map[string]any { return map[string]any{"first": first, "last": last} },
	}
	a, err := New(cfg, testSite(), "", modules)
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, "native", a.LoaderName)
	assert.Equal(t, []string{"modules/one", "modules/person"}, a.Modules.Paths())

	waitIdle(t, a)
	body, err := a.BodyHTML()
	require.NoError(t, err)
	assert.Contains(t, body, `<b>native</b>`)
	assert.Contains(t, body, `<p>Stan Vance</p>`)
}

func TestMissingModuleLeavesBindingLoading(t *testing.T) {
	cfg := testConfig()
	cfg.Page.Values["current"] = "missing"
	a, err := New(cfg, testSite(), "", nil)
	require.NoError(t, err)
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, a.Wait(ctx), context.DeadlineExceeded)

	bindings, err := a.Bindings()
	require.NoError(t, err)
	for _, b := range bindings {
		if b.Name == "missing" {
			assert.Equal(t, "loading", b.State)
		}
	}
}

func TestSetUnknownValue(t *testing.T) {
	a, err := New(testConfig(), testSite(), "", nil)
	require.NoError(t, err)
	defer a.Close()
	assert.ErrorIs(t, a.Set("nope", 1), ErrUnknownValue)
}

func TestMissingPage(t *testing.T) {
	cfg := testConfig()
	cfg.Page.Index = "absent.html"
	_, err := New(cfg, testSite(), "", nil)
	assert.Error(t, err)
}

func TestOnChangeRunsAfterWork(t *testing.T) {
	a, err := New(testConfig(), testSite(), "", nil)
	require.NoError(t, err)
	defer a.Close()
	waitIdle(t, a)

	changed := make(chan struct{}, 10)
	a.OnChange(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	require.NoError(t, a.Set("title", "Bye"))
	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("OnChange was not called")
	}
}

func TestAppsRunConcurrently(t *testing.T) {
	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- runApp(i)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

func runApp(i int) error {
	a, err := New(testConfig(), testSite(), "", nil)
	if err != nil {
		return err
	}
	defer a.Close()

	title := fmt.Sprintf("App %d", i)
	for _, current := range []string{"two", "one", "two"} {
		if err := a.Set("current", current); err != nil {
			return err
		}
	}
	if err := a.Set("title", title); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Wait(ctx); err != nil {
		return err
	}

	body, err := a.BodyHTML()
	if err != nil {
		return err
	}
	for _, want := range []string{`<h1 data-text="title">` + title + `</h1>`, `<i>two</i>`, `<p>Stan Vance</p>`} {
		if !strings.Contains(body, want) {
			return fmt.Errorf("app %d: %q missing from %s", i, want, body)
		}
	}
	return nil
}
