package connectors

import (
	"path"
	"strings"

	"github.com/openindex-dev/openindex/internal/core/domain"
)

// MatchesFilters reports whether a listed document passes the filters.
// Folders always pass so listings can recurse into them.
func MatchesFilters(doc *domain.SourceDocument, filters *domain.ListFilters) bool {
	if filters == nil || doc.IsFolder {
		return true
	}
	if filters.MaxFileSize > 0 && doc.Size > filters.MaxFileSize {
		return false
	}
	if len(filters.FileTypes) > 0 && !matchesFileType(doc.Name, filters.FileTypes) {
		return false
	}
	if len(filters.IncludePatterns) > 0 && !matchesAny(doc.Path, filters.IncludePatterns) {
		return false
	}
	if matchesAny(doc.Path, filters.ExcludePatterns) {
		return false
	}
	return true
}

func matchesFileType(name string, types []string) bool {
	idx := strings.LastIndex(name, ".")
	if idx < 0 {
		return false
	}
	ext := strings.ToLower(name[idx+1:])
	for _, t := range types {
		if strings.ToLower(strings.TrimPrefix(t, ".")) == ext {
			return true
		}
	}
	return false
}

// matchesAny matches p against glob patterns. Patterns without a slash
// match against the base name, so "*.md" works on nested paths.
func matchesAny(p string, patterns []string) bool {
	for _, pattern := range patterns {
		target := p
		if !strings.Contains(pattern, "/") {
			target = path.Base(p)
		}
		if ok, err := path.Match(pattern, target); err == nil && ok {
			return true
		}
	}
	return false
}
