// Package shellquote renders commands so they can be pasted into a POSIX shell.
package shellquote

import (
	"strings"
)

// characters that never need quoting
const safeChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_@%+=:,./-"

// inside double quotes only \ " $ ` are special; control characters are spelled out.
var dqEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	`$`, `\$`,
	"`", "\\`",
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

// Quote returns s as is when it holds only safe characters,
// otherwise wrapped in escaped double quotes.
func Quote(s string) string {
	if s == "" {
		return `""`
	}

	unsafe := strings.ContainsFunc(s, func(r rune) bool {
		return !strings.ContainsRune(safeChars, r)
	})
	if !unsafe {
		return s
	}

	return `"` + dqEscaper.Replace(s) + `"`
}

// Join quotes bin and every arg and joins them with spaces.
func Join(bin string, args []string) string {
	quoted := make([]string, 0, len(args)+1)
	quoted = append(quoted, Quote(bin))

	for _, arg := range args {
		quoted = append(quoted, Quote(arg))
	}

	return strings.Join(quoted, " ")
}
