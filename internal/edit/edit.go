// Package edit applies SEARCH/REPLACE blocks to file content.
package edit

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/starford/vaultkeep/internal/apperr"
	"github.com/starford/vaultkeep/internal/checksum"
)

// Block markers.
const (
	markerSearch  = "<<<<<<< SEARCH"
	markerDivider = "======="
	markerReplace = ">>>>>>> REPLACE"
)

// Block replaces one occurrence of Search with Replace.
type Block struct {
	Search  string `json:"search"`
	Replace string `json:"replace"`
}

// Result reports an edit. DiffPreview is only set for dry runs.
type Result struct {
	Success       bool     `json:"success"`
	OldHash       string   `json:"old_hash"`
	NewHash       string   `json:"new_hash"`
	BlocksApplied int      `json:"blocks_applied"`
	TotalBlocks   int      `json:"total_blocks"`
	DiffPreview   string   `json:"diff_preview,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
}

// ParseBlocks reads blocks written as
//
//	<<<<<<< SEARCH
//	old text
//	=======
//	new text
//	>>>>>>> REPLACE
//
// Text outside blocks is ignored. Indentation inside blocks is preserved.
func ParseBlocks(input string) ([]Block, error) {
	const (
		outside = iota
		inSearch
		inReplace
	)
	var (
		blocks  []Block
		search  []string
		replace []string
		state   = outside
	)
	for _, line := range strings.Split(strings.ReplaceAll(input, "\r\n", "\n"), "\n") {
		marker := strings.TrimSpace(line)
		switch state {
		case outside:
			if marker == markerSearch {
				state = inSearch
			}
		case inSearch:
			if marker == markerDivider {
				state = inReplace
				continue
			}
			search = append(search, line)
		case inReplace:
			if marker == markerReplace {
				blocks = append(blocks, Block{Search: strings.Join(search, "\n"), Replace: strings.Join(replace, "\n")})
				search, replace = nil, nil
				state = outside
				continue
			}
			replace = append(replace, line)
		}
	}
	if state != outside {
		return nil, apperr.Errorf(apperr.KindValidation, "edit", "", "incomplete SEARCH/REPLACE block: expected %q", markerReplace)
	}
	if len(blocks) == 0 {
		return nil, apperr.Errorf(apperr.KindValidation, "edit", "", "no SEARCH/REPLACE blocks found")
	}
	return blocks, nil
}

// Apply runs blocks against content in order, each one seeing the output of
// the previous. A non-empty expectedHash must match the SHA-256 of content or
// a ConcurrencyError is returned. A search text that cannot be found, or that
// matches more than once, is a ValidationError and nothing is applied.
func Apply(p string, content []byte, blocks []Block, expectedHash string, dryRun bool) (*Result, []byte, error) {
	oldHash := checksum.Sum(content)
	if expectedHash != "" && !checksum.Matches(content, expectedHash) {
		return nil, nil, apperr.Errorf(apperr.KindConcurrency, "edit", p,
			"content hash is %s, expected %s", oldHash, expectedHash)
	}
	if len(blocks) == 0 {
		return nil, nil, apperr.Errorf(apperr.KindValidation, "edit", p, "no blocks to apply")
	}

	res := &Result{OldHash: oldHash, TotalBlocks: len(blocks)}
	text := string(content)
	for i, b := range blocks {
		if b.Search == "" {
			return nil, nil, apperr.Errorf(apperr.KindValidation, "edit", p, "block %d: search text is empty", i+1)
		}
		start, end, exact, err := locate(text, b.Search)
		if err != nil {
			return nil, nil, apperr.E(apperr.KindValidation, "edit", p, fmt.Errorf("block %d: %w", i+1, err))
		}
		if !exact {
			res.Warnings = append(res.Warnings, fmt.Sprintf("block %d matched ignoring indentation", i+1))
		}
		text = text[:start] + b.Replace + text[end:]
		res.BlocksApplied++
	}

	updated := []byte(text)
	res.NewHash = checksum.Sum(updated)
	res.Success = true
	if dryRun {
		res.DiffPreview = preview(p, string(content), text)
	}
	return res, updated, nil
}

// locate finds the single occurrence of search in text. It falls back to a
// line-wise comparison with leading and trailing whitespace trimmed.
func locate(text, search string) (start, end int, exact bool, err error) {
	switch n := strings.Count(text, search); {
	case n == 1:
		i := strings.Index(text, search)
		return i, i + len(search), true, nil
	case n > 1:
		return 0, 0, false, fmt.Errorf("search text appears %d times, must be unique", n)
	}

	want := strings.Split(search, "\n")
	lines := strings.SplitAfter(text, "\n")
	found := -1
	for i := 0; i+len(want) <= len(lines); i++ {
		if linesMatch(lines[i:i+len(want)], want) {
			if found >= 0 {
				return 0, 0, false, fmt.Errorf("search text matches more than one region")
			}
			found = i
		}
	}
	if found < 0 {
		return 0, 0, false, fmt.Errorf("search text not found: %q", truncate(search, 100))
	}
	for _, l := range lines[:found] {
		start += len(l)
	}
	end = start
	for _, l := range lines[found : found+len(want)] {
		end += len(l)
	}
	// The match ends before the final line break, like the search text.
	if strings.HasSuffix(text[start:end], "\n") && !strings.HasSuffix(search, "\n") {
		end--
	}
	return start, end, false, nil
}

func linesMatch(have, want []string) bool {
	for i := range want {
		if strings.TrimSpace(have[i]) != strings.TrimSpace(want[i]) {
			return false
		}
	}
	return true
}

func preview(p, before, after string) string {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: "a/" + p,
		ToFile:   "b/" + p,
		Context:  3,
	})
	if err != nil {
		return ""
	}
	return diff
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
