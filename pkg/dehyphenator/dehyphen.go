/*
Package dehyphenator implements a simple algorithm for de-hyphenating OCR output.

	Tesseract reproduces the line breaks of the scanned text, including words
	split by a hyphen at the end of a line.
	This package aims to preserve hyphens when they are part of a compound
	(e.g. "OCR-\nEngine") and to remove them at the end of lines whenever
	they are not.
*/
package dehyphenator

import (
	"bufio"
	"io"
	"strings"
	"unicode"
)

// Dehyphenator joins words split at the end of lines
type Dehyphenator struct {
	// RemoveNewlines replaces all newlines with whitespace
	RemoveNewlines bool
}

// Dehyphenate removes hyphens at the end of lines and writes all
// remaining text to out. Hyphens are preserved if appropriate.
func (d Dehyphenator) Dehyphenate(in io.Reader, out io.Writer) error {
	w := bufio.NewWriter(out)
	// removed hyphen of the last line, 0 if there is none
	var pendingHyphen rune
	endLine := func() {
		if d.RemoveNewlines {
			w.WriteRune(' ')
		} else {
			w.WriteRune('\n')
		}
	}
	// restoreHyphen puts back a removed hyphen that no line continues
	restoreHyphen := func() {
		if pendingHyphen != 0 {
			w.WriteRune(pendingHyphen)
			endLine()
			pendingHyphen = 0
		}
	}
	s := bufio.NewScanner(in)
	for s.Scan() {
		currentLine := strings.ReplaceAll(s.Text(), "\uFFFE", "")
		trimmed := []rune(strings.TrimSpace(currentLine))
		if len(trimmed) == 0 || isHyphen(trimmed[0]) && len(trimmed) == 1 {
			// Skip empty and hyphen-only lines
			restoreHyphen()
			if !d.RemoveNewlines {
				w.WriteRune('\n')
			}
			continue
		}
		if pendingHyphen != 0 && unicode.IsUpper(trimmed[0]) {
			// The last line ended with a hyphen that we removed.
			// The current line starts with an uppercase letter,
			// so it was a compound.
			w.WriteRune(pendingHyphen)
		}
		pendingHyphen = 0
		switch {
		case !isHyphen(trimmed[len(trimmed)-1]):
			w.WriteString(string(trimmed))
			endLine()
		case unicode.IsUpper(trimmed[len(trimmed)-2]):
			// Line ends with uppercase rune before hyphen.
			// So keep it as it is.
			w.WriteString(string(trimmed))
		default:
			// remove the hyphen and memoize that,
			// so we can reattach it in the next iteration if necessary
			pendingHyphen = trimmed[len(trimmed)-1]
			w.WriteString(string(trimmed[:len(trimmed)-1]))
		}
	}
	if err := s.Err(); err != nil {
		return err
	}
	restoreHyphen()
	return w.Flush()
}

// DehyphenateString is Dehyphenate for strings.
// The trailing newline or whitespace is removed.
func (d Dehyphenator) DehyphenateString(in string) (string, error) {
	var sb strings.Builder
	if err := d.Dehyphenate(strings.NewReader(in), &sb); err != nil {
		return "", err
	}
	return strings.TrimRight(sb.String(), " \n"), nil
}

func isHyphen(char rune) bool {
	return unicode.Is(unicode.Hyphen, char)
}
