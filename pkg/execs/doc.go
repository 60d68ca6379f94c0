// Package execs runs external commands for shell actions.
//
// Commands are parsed from a single line with shell quoting rules but are
// not run through a shell. They see an [Environment] holding a few
// essential caller variables plus whatever [EnvVar] and [EnvFromSource]
// entries add.
package execs
