package parser

import "strings"

// MaskCode returns s with fenced code blocks and inline code spans replaced
// by spaces. Byte offsets and newlines are preserved, so matches found in the
// masked text map directly onto s.
func MaskCode(s string) string {
	b := []byte(s)
	inFence := false
	fence := ""
	lineStart := 0
	for lineStart < len(b) {
		lineEnd := strings.IndexByte(s[lineStart:], '\n')
		if lineEnd < 0 {
			lineEnd = len(b)
		} else {
			lineEnd += lineStart
		}
		line := s[lineStart:lineEnd]
		trimmed := strings.TrimLeft(line, " ")

		switch {
		case inFence:
			if strings.HasPrefix(trimmed, fence) {
				inFence = false
			}
			blank(b, lineStart, lineEnd)
		case strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~"):
			inFence = true
			fence = trimmed[:3]
			blank(b, lineStart, lineEnd)
		default:
			maskInline(b, lineStart, lineEnd)
		}
		lineStart = lineEnd + 1
	}
	return string(b)
}

// maskInline blanks `code` spans within b[start:end]. An unmatched backtick
// run is left as is.
func maskInline(b []byte, start, end int) {
	i := start
	for i < end {
		if b[i] != '`' {
			i++
			continue
		}
		run := 0
		for i+run < end && b[i+run] == '`' {
			run++
		}
		closeAt := -1
		for j := i + run; j < end; j++ {
			if b[j] != '`' {
				continue
			}
			k := 0
			for j+k < end && b[j+k] == '`' {
				k++
			}
			if k == run {
				closeAt = j
				break
			}
			j += k - 1
		}
		if closeAt < 0 {
			i += run
			continue
		}
		blank(b, i, closeAt+run)
		i = closeAt + run
	}
}

func blank(b []byte, start, end int) {
	for i := start; i < end; i++ {
		if b[i] != '\n' {
			b[i] = ' '
		}
	}
}
