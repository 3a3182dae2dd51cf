package jfrog

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/buildforge/wincore/internal/build"
)

// DefaultTemplate is the canonical archive URL shape. Components may carry
// their own template using the same placeholders.
const DefaultTemplate = "{base}/{projectShortKey}/{componentGuid}/{branch}/Build{date}.{buildNumber}/{componentName}.zip"

var placeholderRe = regexp.MustCompile(`\{([a-zA-Z]+)\}`)

// BuildURL renders the archive URL for one build of a (component, branch).
// Branch names containing slashes become nested path segments, each segment
// percent-encoded. Unknown placeholders in a component template are a config
// error for that tuple.
func (c *Client) BuildURL(comp build.Component, branch string, coord build.Coordinate) (string, error) {
	template := comp.URLTemplate
	if template == "" {
		template = DefaultTemplate
	}

	values := map[string]string{
		"base":            strings.TrimRight(c.baseURL, "/"),
		"projectShortKey": url.PathEscape(comp.ProjectKey),
		"componentGuid":   url.PathEscape(comp.GUID),
		"branch":          encodeBranch(branch),
		"date":            coord.Date,
		"buildDate":       coord.Date,
		"buildNumber":     strconv.Itoa(coord.Seq),
		"sequence":        strconv.Itoa(coord.Seq),
		"componentName":   url.PathEscape(comp.Name),
	}

	var unknown []string
	rendered := placeholderRe.ReplaceAllStringFunc(template, func(m string) string {
		name := m[1 : len(m)-1]
		val, ok := values[name]
		if !ok {
			unknown = append(unknown, name)
			return m
		}
		return val
	})
	if len(unknown) > 0 {
		return "", fmt.Errorf("component %s: unknown URL template placeholder(s): %s",
			comp.Name, strings.Join(unknown, ", "))
	}

	// Custom templates may be paths relative to the base URL.
	if !strings.Contains(rendered, "://") {
		rendered = strings.TrimRight(c.baseURL, "/") + "/" + strings.TrimLeft(rendered, "/")
	}
	return rendered, nil
}

// encodeBranch keeps slash-separated branch names as nested path segments,
// percent-encoding each segment individually.
func encodeBranch(branch string) string {
	segments := strings.Split(branch, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
