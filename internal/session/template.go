package session

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// TemplateFields builds the substitution fields for title and description
// templates.
func TemplateFields(meta Metadata, uploaderName string, start time.Time, firstFLV string) map[string]string {
	return map[string]string{
		"name":          meta.Name,
		"title":         meta.Title,
		"uploader_name": uploaderName,
		"y":             strconv.Itoa(start.Year()),
		"m":             strconv.Itoa(int(start.Month())),
		"d":             strconv.Itoa(start.Day()),
		"yy":            fmt.Sprintf("%04d", start.Year()),
		"mm":            fmt.Sprintf("%02d", int(start.Month())),
		"dd":            fmt.Sprintf("%02d", start.Day()),
		"flv_path":      firstFLV,
	}
}

// RenderTemplate substitutes $name and ${name} placeholders. "$$" is a
// literal dollar sign. Unknown names and malformed placeholders are errors.
func RenderTemplate(tmpl string, fields map[string]string) (string, error) {
	var out strings.Builder
	out.Grow(len(tmpl))
	for i := 0; i < len(tmpl); {
		c := tmpl[i]
		if c != '$' {
			out.WriteByte(c)
			i++
			continue
		}
		if i+1 >= len(tmpl) {
			return "", fmt.Errorf("template: dangling $ at offset %d", i)
		}
		next := tmpl[i+1]
		switch {
		case next == '$':
			out.WriteByte('$')
			i += 2
		case next == '{':
			end := strings.IndexByte(tmpl[i+2:], '}')
			if end < 0 {
				return "", fmt.Errorf("template: unterminated ${ at offset %d", i)
			}
			name := tmpl[i+2 : i+2+end]
			if !isIdentifier(name) {
				return "", fmt.Errorf("template: invalid placeholder ${%s} at offset %d", name, i)
			}
			value, ok := fields[name]
			if !ok {
				return "", fmt.Errorf("template: unknown placeholder %q", name)
			}
			out.WriteString(value)
			i += 2 + end + 1
		case isIdentStart(next):
			j := i + 2
			for j < len(tmpl) && isIdentPart(tmpl[j]) {
				j++
			}
			name := tmpl[i+1 : j]
			value, ok := fields[name]
			if !ok {
				return "", fmt.Errorf("template: unknown placeholder %q", name)
			}
			out.WriteString(value)
			i = j
		default:
			return "", fmt.Errorf("template: invalid placeholder at offset %d", i)
		}
	}
	return out.String(), nil
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func isIdentifier(name string) bool {
	if name == "" || !isIdentStart(name[0]) {
		return false
	}
	for i := 1; i < len(name); i++ {
		if !isIdentPart(name[i]) {
			return false
		}
	}
	return true
}

// ResolveTitle returns base, or base with the smallest numeric suffix from 2
// upward, such that the result collides with none of existing. Titles are
// compared in Unicode NFC form.
func ResolveTitle(base string, existing []string) string {
	base = norm.NFC.String(base)
	taken := make(map[string]struct{}, len(existing))
	for _, title := range existing {
		taken[norm.NFC.String(title)] = struct{}{}
	}
	if _, ok := taken[base]; !ok {
		return base
	}
	for i := 2; ; i++ {
		candidate := base + strconv.Itoa(i)
		if _, ok := taken[candidate]; !ok {
			return candidate
		}
	}
}
