// Package site holds the example site used when no site directory is given.
package site

import "embed"

// Files is the example site: index.html, modules, templates and config.
//
//go:embed index.html config modules templates
var Files embed.FS
