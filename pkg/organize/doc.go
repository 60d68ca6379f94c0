// Package organize is a filesystem [engine.Interpreter].
//
// For every enabled rule selected by the run's tags, it collects candidates
// from the rule's locations, keeps those passing the rule's filters, and
// applies the rule's actions to each in order.
//
// # Filters
//
//   - name: glob against the stem, or startswith / endswith / contains,
//     with case_sensitive (default true).
//   - extension: one or more extensions, case-insensitive, dot optional.
//   - regex: pattern matched against the full base name.
//   - size: comma-separated conditions such as "> 1 MB, <= 2GiB".
//   - lastmodified: days, hours, weeks, months or years, with mode
//     older (default) or newer.
//   - empty: zero-byte files and directories without entries.
//   - expr: a CEL expression, see [github.com/macropower/orgz/pkg/expr].
//
// Filters prefixed with "not " are negated, and a rule's filter_mode decides
// whether all, any or none of them must match.
//
// # Actions
//
// echo, copy, move, rename, delete and shell. Text parameters accept
// placeholders such as {path}, {path.name}, {path.stem}, {path.suffix},
// {path.parent}, {name}, {extension}, {relative_path}, {counter},
// {now}, {lastmodified} and {env.NAME}.
//
// In simulate mode, actions only report what they would do.
package organize
