package condition

import (
	"regexp"
	"strings"
)

var (
	hyphenStartOrEndRe = regexp.MustCompile(`(^|[^ ])-([^ ]|$)`)
	hyphenMiddleRe     = regexp.MustCompile(`([^ ])-([^ ])`)
)

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

// FormatKey maps a collected value key to the identifier it is bound to in
// expressions: dots and hyphens become underscores.
func FormatKey(key string) string {
	key = strings.ReplaceAll(key, ".", "_")
	key = hyphenStartOrEndRe.ReplaceAllString(key, "${1}_${2}")
	key = hyphenMiddleRe.ReplaceAllString(key, "${1}_${2}")
	return key
}

// FormatExpression rewrites dotted and hyphenated names in e the same way
// FormatKey does, leaving string literals, optional chaining, lambda element
// access and numeric literals alone. Subtraction needs spaces around the minus.
func FormatExpression(e string) string {
	result := []rune(e)
	openParentheses := 0
	inDoubleQuote := false
	inBacktick := false
	escapeNext := false

	for i, r := range result {
		if escapeNext {
			escapeNext = false
			continue
		}

		if inDoubleQuote && r == '\\' {
			escapeNext = true
			continue
		}

		if r == '"' && !inBacktick {
			inDoubleQuote = !inDoubleQuote
			continue
		}
		if r == '`' && !inDoubleQuote {
			inBacktick = !inBacktick
			continue
		}

		// Don't modify anything inside string literals
		if inDoubleQuote || inBacktick {
			continue
		}

		switch r {
		case '(':
			openParentheses++
		case ')':
			openParentheses--
		case '.':
			// Don't replace dot if it's part of:
			// - ?. (optional chaining operator)
			// - #. (lambda element accessor in expr-lang, e.g., {#.Age > 18})
			if i > 0 && (result[i-1] == '?' || result[i-1] == '#') {
				continue
			}
			// Don't replace dot in numeric literals (e.g., 3.14, 0.5)
			if i > 0 && i < len(result)-1 && isDigit(result[i-1]) && isDigit(result[i+1]) {
				continue
			}
			result[i] = '_'
		case '-':
			if openParentheses == 0 {
				lo, hi := i-1, i+2
				if lo < 0 {
					lo = 0
				}
				if hi > len(result) {
					hi = len(result)
				}
				temp := string(result[lo:hi])

				if hyphenStartOrEndRe.MatchString(temp) || hyphenMiddleRe.MatchString(temp) {
					result[i] = '_'
				}

			}
		}
	}
	return string(result)
}
