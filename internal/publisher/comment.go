package publisher

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"archivist/internal/services"
)

// BuildComment joins the prefix, the highlight list, and the super-chat list
// into one comment body. Missing lists are skipped; an entirely empty body is
// a validation error.
func BuildComment(prefix, highlightPath, superChatPath string) (string, error) {
	var parts []string
	if p := strings.TrimSpace(prefix); p != "" {
		parts = append(parts, p)
	}
	for _, path := range []string{highlightPath, superChatPath} {
		body, err := readOptional(path)
		if err != nil {
			return "", services.Wrap(services.ErrTransient, "comment", "read list", path, err)
		}
		if body != "" {
			parts = append(parts, body)
		}
	}
	if len(parts) == 0 {
		return "", services.Wrap(services.ErrValidation, "comment", "build", "no comment content", nil)
	}
	return strings.Join(parts, "\n\n"), nil
}

func readOptional(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
