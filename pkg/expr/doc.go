// Package expr provides CEL (Common Expression Language) functionality
// for evaluating filter expressions against files.
//
// It creates CEL environments with custom functions for:
//   - File path operations (pathBase, pathDir, pathExt, pathStem, glob)
//   - Sizes (bytes, humanBytes)
//   - Ages (age)
//   - YAML content extraction (yamlPath)
//
// Environments created with [NewFileEnvironment] have access to variables:
//   - `path` (string): Absolute path of the file
//   - `name` (string): Base name, including the extension
//   - `stem` (string): Base name without the extension
//   - `ext` (string): Lowercase extension without the leading dot
//   - `dir` (string): Parent directory
//   - `size` (int): Size in bytes
//   - `isDir` (bool): Whether the entry is a directory
//   - `modified` (timestamp): Last modification time
//   - `now` (timestamp): Evaluation time
package expr
