// Package source defines what the bot watches: a Link names a remote source,
// a Post is one item fetched from it, and a Registry maps source types to the
// plugins that know how to fetch and parse them.
package source
