package adapters

import "strings"

// firstExecutableLine scans source top-to-bottom for the first line that
// looks like it actually executes something, skipping blank lines,
// comments, shebangs, and the handful of top-level declaration headers
// that precede real statements in Ruby and JavaScript/TypeScript. It
// returns a 1-indexed line number, falling back to line 1 if nothing
// matched. Used by the Ruby entry-breakpoint workaround: rdbg doesn't
// reliably honor stopOnEntry in socket mode, so the session sets a
// breakpoint on the line this picks instead. The Node.js child session
// does not call it; it uses a fixed line-1 breakpoint.
func firstExecutableLine(source string) int {
	lines := strings.Split(source, "\n")

	for i, raw := range lines {
		line := strings.TrimSpace(raw)

		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#!") {
			continue
		}
		if isCommentLine(line) {
			continue
		}
		if isTopLevelHeader(line) {
			continue
		}
		return i + 1
	}
	return 1
}

func isCommentLine(line string) bool {
	switch {
	case strings.HasPrefix(line, "#"):
		return true
	case strings.HasPrefix(line, "//"):
		return true
	case strings.HasPrefix(line, "/*"), strings.HasPrefix(line, "*"):
		return true
	case strings.HasPrefix(line, "=begin"), strings.HasPrefix(line, "=end"):
		return true
	}
	return false
}

// isTopLevelHeader recognizes lines that declare structure rather than
// execute: Ruby's require/load and class/module/def headers, and
// JavaScript/TypeScript's import/export declaration lines.
func isTopLevelHeader(line string) bool {
	prefixes := []string{
		"require ", "require(", "require_relative ", "load ",
		"class ", "module ", "def ",
		"import ", "export ", "'use strict'", "\"use strict\"",
	}
	for _, p := range prefixes {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return line == "end"
}
