// Package script replays line-oriented op scripts against a partial builder
// and loads YAML documents that pair a WIT-style type with such a script.
//
// One statement per line; blank lines and '#' comments are skipped:
//
//	set <path> = <yaml>            write a literal at path
//	set <path> stage|restage|default
//	append = <yaml>                add to the list or set under the cursor
//	append stage|default
//	insert <yaml-key> = <yaml>     add or replace a map entry
//	insert <yaml-key> stage|restage|default
//	end                            pop the cursor
//	deferred begin|finish          open or close a deferred region
//
// A path is "." for the cursor itself, or dot-separated segments relative
// to the cursor. A leading "$" segment starts from the root. Numeric
// segments are indices; other segments name struct fields or enum cases.
//
// Literals are decoded with gopkg.in/yaml.v3 into the Go type of the target
// slot, so strings need quoting only when YAML would read them otherwise.
//
// # Example
//
//	stmts, _ := script.Parse(`
//	set name = "ada"
//	set origin.x = 1
//	set origin.y = 2
//	end
//	`)
//	p, _ := partial.New[Person](partial.Immediate)
//	err := script.Replay(p, stmts)
package script
