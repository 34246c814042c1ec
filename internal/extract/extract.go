// Package extract converts document bytes into plain text for chunking
// and indexing. Extraction dispatches on content type: HTML and XML get
// tag stripping, Markdown is parsed and flattened, JSON yields its
// string values, plain text and code pass through unchanged. Output is
// deterministic for a given input.
package extract

import (
	"encoding/json"
	"html"
	"regexp"
	"sort"
	"strings"

	"github.com/openindex-dev/openindex/internal/core/domain"
)

// Text extracts plain text from data according to its content type.
// Non-text-bearing types return an empty string.
func Text(data []byte, contentType domain.ContentType) string {
	switch contentType {
	case domain.ContentTypeText, domain.ContentTypeCode:
		return string(data)
	case domain.ContentTypeMarkdown:
		return markdownText(data)
	case domain.ContentTypeHTML:
		return stripTags(string(data), true)
	case domain.ContentTypeXML:
		return stripTags(string(data), false)
	case domain.ContentTypeJSON:
		return jsonStrings(data)
	default:
		return ""
	}
}

// Title derives a document title from the content, falling back to the
// file name with its extension and separators cleaned up.
func Title(data []byte, contentType domain.ContentType, fileName string) string {
	switch contentType {
	case domain.ContentTypeMarkdown:
		if t := markdownTitle(data); t != "" {
			return t
		}
	case domain.ContentTypeHTML:
		if m := titleTag.FindStringSubmatch(string(data)); len(m) > 1 {
			if t := strings.TrimSpace(html.UnescapeString(m[1])); t != "" {
				return t
			}
		}
	}
	return cleanFileName(fileName)
}

// Pre-compiled regular expressions for HTML parsing performance.
var (
	titleTag          = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	scriptTag         = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleTag          = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	noscriptTag       = regexp.MustCompile(`(?is)<noscript[^>]*>.*?</noscript>`)
	headTag           = regexp.MustCompile(`(?is)<head[^>]*>.*?</head>`)
	svgTag            = regexp.MustCompile(`(?is)<svg[^>]*>.*?</svg>`)
	markupComments    = regexp.MustCompile(`(?s)<!--.*?-->`)
	blockElements     = regexp.MustCompile(`(?i)</(p|div|br|hr|h[1-6]|li|tr|blockquote|pre|table|section|article)>`)
	openBlockElements = regexp.MustCompile(`(?i)<(p|div|h[1-6]|li|tr|blockquote|pre|table|section|article)[^>]*>`)
	brTags            = regexp.MustCompile(`(?i)<br\s*/?>`)
	hrTags            = regexp.MustCompile(`(?i)<hr\s*/?>`)
	allTags           = regexp.MustCompile(`<[^>]+>`)
	multiSpaces       = regexp.MustCompile(`[ \t]+`)
	multiNewlines     = regexp.MustCompile(`\n{3,}`)
)

// stripTags removes markup and extracts readable text. The html flag
// additionally drops script, style, and head blocks and decodes
// entities.
func stripTags(content string, isHTML bool) string {
	if isHTML {
		content = scriptTag.ReplaceAllString(content, "")
		content = styleTag.ReplaceAllString(content, "")
		content = noscriptTag.ReplaceAllString(content, "")
		content = headTag.ReplaceAllString(content, "")
		content = svgTag.ReplaceAllString(content, "")
	}

	content = markupComments.ReplaceAllString(content, "")

	// Newlines around block elements keep paragraphs readable.
	content = openBlockElements.ReplaceAllString(content, "\n")
	content = blockElements.ReplaceAllString(content, "\n")
	content = brTags.ReplaceAllString(content, "\n")
	content = hrTags.ReplaceAllString(content, "\n")

	content = allTags.ReplaceAllString(content, "\n")
	content = html.UnescapeString(content)

	content = multiSpaces.ReplaceAllString(content, " ")
	content = multiNewlines.ReplaceAllString(content, "\n\n")

	lines := strings.Split(content, "\n")
	var result []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			result = append(result, line)
		}
	}
	return strings.Join(result, "\n")
}

// jsonStrings collects every string value in a JSON document. Object
// keys are visited in sorted order so output is deterministic.
func jsonStrings(data []byte) string {
	var root any
	if err := json.Unmarshal(data, &root); err != nil {
		return string(data)
	}
	var parts []string
	collectStrings(root, &parts)
	return strings.Join(parts, " ")
}

func collectStrings(v any, out *[]string) {
	switch t := v.(type) {
	case string:
		if t != "" {
			*out = append(*out, t)
		}
	case []any:
		for _, item := range t {
			collectStrings(item, out)
		}
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			collectStrings(t[k], out)
		}
	}
}

// cleanFileName turns a file name into a displayable title.
func cleanFileName(name string) string {
	if idx := strings.LastIndexAny(name, "/\\"); idx >= 0 {
		name = name[idx+1:]
	}
	if idx := strings.LastIndex(name, "."); idx > 0 {
		name = name[:idx]
	}
	name = strings.ReplaceAll(name, "_", " ")
	name = strings.ReplaceAll(name, "-", " ")
	return strings.TrimSpace(name)
}
