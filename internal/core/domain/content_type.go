package domain

import "strings"

// ContentType classifies document content for extraction and chunking.
type ContentType string

const (
	ContentTypeText     ContentType = "text"
	ContentTypeMarkdown ContentType = "markdown"
	ContentTypeHTML     ContentType = "html"
	ContentTypeJSON     ContentType = "json"
	ContentTypeXML      ContentType = "xml"
	ContentTypeCode     ContentType = "code"
	ContentTypePDF      ContentType = "pdf"
	ContentTypeImage    ContentType = "image"
	ContentTypeBinary   ContentType = "binary"
)

// IsTextBearing reports whether content of this type is chunked and
// indexed. Binary formats are stored as metadata only.
func (c ContentType) IsTextBearing() bool {
	switch c {
	case ContentTypeText, ContentTypeMarkdown, ContentTypeHTML, ContentTypeJSON, ContentTypeXML, ContentTypeCode:
		return true
	default:
		return false
	}
}

// codeExtensions maps file extensions to source languages for
// syntax-aware chunking.
var codeExtensions = map[string]string{
	".go":    "go",
	".rs":    "rust",
	".py":    "python",
	".js":    "javascript",
	".ts":    "typescript",
	".java":  "java",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".rb":    "ruby",
	".php":   "php",
	".sh":    "shell",
	".sql":   "sql",
	".swift": "swift",
	".kt":    "kotlin",
}

// ContentTypeFromName infers a content type from a file name. The second
// return value is the language tag for code files, empty otherwise.
func ContentTypeFromName(name string) (ContentType, string) {
	lower := strings.ToLower(name)
	idx := strings.LastIndex(lower, ".")
	if idx < 0 {
		return ContentTypeText, ""
	}
	ext := lower[idx:]

	if lang, ok := codeExtensions[ext]; ok {
		return ContentTypeCode, lang
	}
	switch ext {
	case ".md", ".markdown", ".mdx":
		return ContentTypeMarkdown, ""
	case ".html", ".htm":
		return ContentTypeHTML, ""
	case ".json":
		return ContentTypeJSON, ""
	case ".xml":
		return ContentTypeXML, ""
	case ".txt", ".text", ".csv", ".log", ".yaml", ".yml", ".toml":
		return ContentTypeText, ""
	case ".pdf":
		return ContentTypePDF, ""
	case ".png", ".jpg", ".jpeg", ".gif", ".webp", ".svg":
		return ContentTypeImage, ""
	default:
		return ContentTypeBinary, ""
	}
}

// ContentTypeFromMIME infers a content type from a MIME type.
func ContentTypeFromMIME(mime string) ContentType {
	mime = strings.ToLower(strings.TrimSpace(strings.SplitN(mime, ";", 2)[0]))
	switch {
	case mime == "text/markdown":
		return ContentTypeMarkdown
	case mime == "text/html", mime == "application/xhtml+xml":
		return ContentTypeHTML
	case mime == "application/json":
		return ContentTypeJSON
	case mime == "application/xml", mime == "text/xml":
		return ContentTypeXML
	case mime == "application/pdf":
		return ContentTypePDF
	case strings.HasPrefix(mime, "image/"):
		return ContentTypeImage
	case strings.HasPrefix(mime, "text/"):
		return ContentTypeText
	default:
		return ContentTypeBinary
	}
}
