// Package merge implements {{variable}} template substitution for
// personalizing message bodies and subjects per recipient.
package merge

import (
	"regexp"
	"strings"
)

// placeholderPattern matches a {{ key }} placeholder with optional
// whitespace around the key. The key itself may contain spaces but not
// braces.
var placeholderPattern = regexp.MustCompile(`\{\{\s*([^{}]*?)\s*\}\}`)

// attachmentPattern matches {{attachment:<expr>}} references. The expression
// may itself contain complete {{variable}} placeholders, which are resolved
// per recipient before the filename is looked up in the pool.
var attachmentPattern = regexp.MustCompile(`\{\{attachment:((?:[^{}]+|\{\{[^{}]*\}\})*)\}\}`)

// attachmentPrefix marks a placeholder as an attachment reference rather
// than a merge field.
const attachmentPrefix = "attachment:"

// Merge replaces every {{key}} placeholder in template with the matching
// value from fields. Replacement is literal: substituted values are never
// re-scanned, so a value containing "{{x}}" is inserted as-is. Placeholders
// whose key is not present in fields are left untouched. Attachment
// references ({{attachment:...}}) are directives for the resolver, not
// content, and are stripped from the output. Merge never fails; malformed
// placeholder syntax passes through unchanged.
func Merge(template string, fields map[string]string) string {
	if template == "" || !strings.Contains(template, "{{") {
		return template
	}

	out := attachmentPattern.ReplaceAllString(template, "")

	return placeholderPattern.ReplaceAllStringFunc(out, func(match string) string {
		sub := placeholderPattern.FindStringSubmatch(match)
		if sub == nil {
			return match
		}
		key := sub[1]
		if strings.HasPrefix(key, attachmentPrefix) {
			// Attachment reference that survived stripping (e.g. with
			// leading whitespace inside the braces); drop it too.
			return ""
		}
		value, ok := fields[key]
		if !ok {
			return match
		}
		return value
	})
}

// AttachmentExprs extracts the expression of every {{attachment:<expr>}}
// reference in template, in order of appearance. Expressions are returned
// unmerged; callers substitute recipient fields into them before matching
// against the attachment pool.
func AttachmentExprs(template string) []string {
	matches := attachmentPattern.FindAllStringSubmatch(template, -1)
	if len(matches) == 0 {
		return nil
	}

	exprs := make([]string, 0, len(matches))
	for _, m := range matches {
		expr := strings.TrimSpace(m[1])
		if expr != "" {
			exprs = append(exprs, expr)
		}
	}
	return exprs
}
