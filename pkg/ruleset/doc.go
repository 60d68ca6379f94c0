// Package ruleset defines the ruleset data model and its YAML text form.
//
// A ruleset is a mapping with a single top-level `rules` key holding an
// ordered list of rules. Each rule combines locations, filters and actions:
//
//	rules:
//	  - name: Sort PDFs
//	    locations:
//	      - ~/Downloads
//	    filters:
//	      - extension: pdf
//	    actions:
//	      - move: {dest: ~/Documents/PDFs/}
//
// Text is validated against an embedded JSON schema before it is decoded.
// The structured form re-serializes to a canonical text form that parses back
// to an equal value; comments and key order in hand-edited text are not kept.
package ruleset
