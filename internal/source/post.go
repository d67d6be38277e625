package source

import (
	"html"
	"sort"
	"strings"
)

// Post is one content item. ID is unique and monotonically increasing within
// a link; it is what watermarks are compared against.
//
// Title and Text are already HTML-escaped by the parser (Text may carry
// Telegram HTML markup such as <code>); URL is raw.
type Post struct {
	Link      Link
	ID        int64
	URL       string
	Title     string
	Text      string
	ImageURLs []string
}

// HTML renders the message body sent to chats.
func (p Post) HTML() string {
	var b strings.Builder
	title := p.Title
	if title == "" {
		title = html.EscapeString(p.Link.String())
	}
	if p.URL != "" {
		b.WriteString(`<a href="`)
		b.WriteString(html.EscapeString(p.URL))
		b.WriteString(`">`)
		b.WriteString(title)
		b.WriteString("</a>")
	} else {
		b.WriteString("<b>")
		b.WriteString(title)
		b.WriteString("</b>")
	}
	if text := strings.TrimSpace(p.Text); text != "" {
		b.WriteString("\n")
		b.WriteString(text)
	}
	return b.String()
}

// SortPosts orders posts by ascending ID. Stable for equal ids.
func SortPosts(posts []Post) {
	sort.SliceStable(posts, func(i, j int) bool { return posts[i].ID < posts[j].ID })
}
