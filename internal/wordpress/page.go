package wordpress

import (
	"fmt"
	"regexp"
	"strings"
)

// InsertIntoSection adds a post link to the <ul> under the heading matching
// section in the listing page markup. If the link is already present the
// content is returned unchanged. If the section heading does not exist, a new
// heading and list block is appended at the end of the page.
func InsertIntoSection(content, postURL, postTitle, section string) string {
	item := fmt.Sprintf(`<li><a href="%s">%s</a></li>`, postURL, postTitle)
	if strings.Contains(content, item) {
		return content
	}

	pattern := regexp.MustCompile(`(?is)(<h2[^>]*>` + regexp.QuoteMeta(section) + `</h2>.*?<ul[^>]*>)(.*?)(</ul>)`)
	loc := pattern.FindStringSubmatchIndex(content)
	if loc == nil {
		block := fmt.Sprintf(
			"<!-- wp:heading -->\n<h2>%s</h2>\n<!-- /wp:heading -->\n\n<!-- wp:list -->\n<ul>\n%s\n</ul>\n<!-- /wp:list -->\n",
			section, item,
		)
		return content + "\n" + block
	}

	// Prepend the new item inside the list so newest posts come first.
	head := content[loc[2]:loc[3]]
	body := content[loc[4]:loc[5]]
	tail := content[loc[6]:loc[7]]
	return content[:loc[0]] + head + item + body + tail + content[loc[1]:]
}

// SectionContains reports whether the given section's list already links to
// postURL.
func SectionContains(content, postURL, section string) bool {
	pattern := regexp.MustCompile(`(?is)<h2[^>]*>` + regexp.QuoteMeta(section) + `</h2>.*?<ul[^>]*>(.*?)</ul>`)
	m := pattern.FindStringSubmatch(content)
	if m == nil {
		return false
	}
	return strings.Contains(m[1], postURL)
}
