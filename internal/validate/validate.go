// Package validate normalizes and checks user input before it reaches the
// stores. Every function is pure apart from ResolvePath and DetectSource,
// which consult the process environment.
package validate

import (
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/threadlinking/internal/apperr"
)

// Input limits, in characters.
const (
	MaxTagLength     = 100
	MaxSummaryLength = 500
	MaxSnippetLength = 2000
	MaxPathLength    = 1000
	MaxQueryLength   = 100
)

// Sources reported by DetectSource.
const (
	SourceClaudeCode = "claude-code"
	SourceChatGPT    = "chatgpt"
	SourceManual     = "manual"
)

var tagRules = []validation.Rule{
	validation.Required.Error("tag cannot be empty"),
	validation.RuneLength(0, MaxTagLength).Error("tag too long (max 100 characters)"),
	validation.By(func(v any) error {
		s, _ := v.(string)
		if strings.ContainsAny(s, `<>"'&`) || strings.ContainsFunc(s, unicode.IsControl) {
			return errors.New("tag contains invalid characters")
		}
		return nil
	}),
}

// Tag checks a thread tag and returns its canonical form. Feeding the
// result back into Tag returns it unchanged.
func Tag(tag string) (string, error) {
	if err := validation.Validate(tag, tagRules...); err != nil {
		return "", apperr.Validation(apperr.CodeInvalidInput, "%s", err.Error())
	}
	clean := strings.TrimSpace(tag)
	if clean == "" {
		return "", apperr.Validation(apperr.CodeInvalidInput, "tag cannot be empty")
	}
	return clean, nil
}

// URL accepts empty input or an absolute http/https URL and returns its
// normalized form.
func URL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	err := validation.Validate(raw,
		validation.RuneLength(0, MaxPathLength).Error("URL too long"),
		validation.By(func(v any) error {
			u, err := url.Parse(v.(string))
			if err != nil || u.Host == "" {
				return errors.New("invalid URL format")
			}
			switch strings.ToLower(u.Scheme) {
			case "http", "https":
				return nil
			}
			return errors.New("URL scheme must be http or https")
		}),
	)
	if err != nil {
		return "", apperr.Validation(apperr.CodeInvalidInput, "%s", err.Error())
	}
	u, _ := url.Parse(raw)
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String(), nil
}

// Sanitize drops control characters other than tab, newline and carriage
// return, truncates to max runes when max > 0 and trims surrounding space.
func Sanitize(text string, max int) string {
	clean := strings.Map(func(r rune) rune {
		if r == '\t' || r == '\n' || r == '\r' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, text)
	if max > 0 && utf8.RuneCountInString(clean) > max {
		clean = string([]rune(clean)[:max])
	}
	return strings.TrimSpace(clean)
}

// ResolvePath expands a leading ~ and returns the absolute, cleaned path.
func ResolvePath(path string) (string, error) {
	err := validation.Validate(path,
		validation.Required.Error("file path cannot be empty"),
		validation.RuneLength(0, MaxPathLength).Error("file path too long (max 1000 characters)"),
	)
	if err != nil {
		return "", apperr.Validation(apperr.CodeInvalidInput, "%s", err.Error())
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, herr := os.UserHomeDir()
		if herr != nil {
			return "", apperr.Validation(apperr.CodeInvalidInput, "cannot expand ~: %v", herr)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", apperr.Validation(apperr.CodeInvalidInput, "resolve %q: %v", path, err)
	}
	return abs, nil
}

// Query trims a keyword query and enforces its length limit.
func Query(q string) (string, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return "", apperr.Validation(apperr.CodeEmptyQuery, "search query cannot be empty")
	}
	if err := validation.Validate(q, validation.RuneLength(0, MaxQueryLength)); err != nil {
		return "", apperr.Validation(apperr.CodeInvalidInput, "query too long (max %d characters)", MaxQueryLength)
	}
	return q, nil
}

// ParseTags splits a comma separated list into lowercase, de-duplicated
// snippet tags, preserving first occurrence order.
func ParseTags(s string) []string {
	return NormalizeTags(strings.Split(s, ","))
}

// NormalizeTags lowercases and trims tags, dropping empties and duplicates.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(Sanitize(t, MaxTagLength))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// DetectSource guesses which tool is invoking the process.
func DetectSource() string {
	switch {
	case os.Getenv("CLAUDE_CODE") != "" || os.Getenv("CLAUDECODE") != "" || os.Getenv("ANTHROPIC_API_KEY") != "":
		return SourceClaudeCode
	case os.Getenv("OPENAI_API_KEY") != "":
		return SourceChatGPT
	}
	return SourceManual
}

// Truncate shortens text to at most max runes, ending with "..." when cut.
func Truncate(text string, max int) string {
	if utf8.RuneCountInString(text) <= max {
		return text
	}
	if max <= 3 {
		return string([]rune(text)[:max])
	}
	return string([]rune(text)[:max-3]) + "..."
}
