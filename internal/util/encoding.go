package util

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// FoldCommand normalizes a menu command for case-insensitive matching.
func FoldCommand(s string) string {
	return folder.String(norm.NFKC.String(strings.TrimSpace(s)))
}
