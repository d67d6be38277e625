// Package plugins wires the built-in source types into a registry.
package plugins

import (
	"scraperbot/internal/source"
	"scraperbot/plugins/hb"
	"scraperbot/plugins/ig"
	"scraperbot/plugins/rss"
	"scraperbot/plugins/vk"
)

// Builtin returns every built-in source plugin.
func Builtin() []source.Plugin {
	return []source.Plugin{
		hb.Plugin(),
		vk.Plugin(),
		ig.Plugin(),
		rss.Plugin(),
	}
}

// RegisterAll registers the built-in plugins on reg.
func RegisterAll(reg *source.Registry) {
	for _, p := range Builtin() {
		reg.Register(p)
	}
}
