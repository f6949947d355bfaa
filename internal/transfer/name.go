package transfer

import (
	"fmt"
	"path/filepath"
	"strings"
)

// NextFreeName derives an alternative for a taken destination name by
// numbering the stem: report.txt becomes report.1.txt, then
// report.2.txt, until a free name is found.
func NextFreeName(name string, exists func(string) bool) string {
	ext := filepath.Ext(name)
	if ext == name {
		// Dotfiles have no extension to number around.
		ext = ""
	}
	stem := strings.TrimSuffix(name, ext)
	for n := 1; ; n++ {
		cand := fmt.Sprintf("%s.%d%s", stem, n, ext)
		if !exists(cand) {
			return cand
		}
	}
}
