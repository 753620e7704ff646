// Package markdown 将督导笔记中的 markdown 渲染为安全的 HTML 片段。
package markdown

import (
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
)

var (
	extensions = parser.CommonExtensions | parser.NoEmptyLineBeforeBlock
	htmlFlags  = html.CommonFlags | html.HrefTargetBlank
	notePolicy = bluemonday.NewPolicy()
)

func init() {
	notePolicy.AllowElements("p", "br", "b", "strong", "i", "em", "del", "s", "code", "pre",
		"blockquote", "ul", "ol", "li", "h1", "h2", "h3", "h4")
	notePolicy.AllowAttrs("href").OnElements("a")
	notePolicy.AllowURLSchemes("http", "https", "mailto")
	notePolicy.RequireNoFollowOnLinks(true)
	notePolicy.AddTargetBlankToFullyQualifiedLinks(true)
}

// ToHTML 渲染并清洗 markdown，空输入返回空字符串。
func ToHTML(md string) string {
	if strings.TrimSpace(md) == "" {
		return ""
	}
	p := parser.NewWithExtensions(extensions)
	renderer := html.NewRenderer(html.RendererOptions{Flags: htmlFlags})
	unsafeHTML := markdown.Render(p.Parse([]byte(md)), renderer)
	return string(notePolicy.SanitizeBytes(unsafeHTML))
}
