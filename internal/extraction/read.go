package extraction

import (
	"context"
	"strings"

	"github.com/editorialops/referee-monitor/internal/driver"
)

// text returns the text of the first match of selector on the page, "" when absent
func text(ctx context.Context, d driver.Driver, selector string) (string, error) {
	if selector == "" {
		return "", nil
	}
	nodes, err := d.Query(ctx, selector)
	if err != nil || len(nodes) == 0 {
		return "", err
	}
	return d.Text(ctx, nodes[0])
}

func textIn(ctx context.Context, d driver.Driver, parent driver.Node, selector string) (string, error) {
	if selector == "" {
		return "", nil
	}
	nodes, err := d.QueryIn(ctx, parent, selector)
	if err != nil || len(nodes) == 0 {
		return "", err
	}
	return d.Text(ctx, nodes[0])
}

// htmlIn keeps markup so multi-value cells can still be split on <br>
func htmlIn(ctx context.Context, d driver.Driver, parent driver.Node, selector string) (string, error) {
	if selector == "" {
		return "", nil
	}
	nodes, err := d.QueryIn(ctx, parent, selector)
	if err != nil || len(nodes) == 0 {
		return "", err
	}
	return d.HTML(ctx, nodes[0])
}

func attrIn(ctx context.Context, d driver.Driver, parent driver.Node, selector, name string) (string, error) {
	if selector == "" {
		return "", nil
	}
	nodes, err := d.QueryIn(ctx, parent, selector)
	if err != nil || len(nodes) == 0 {
		return "", err
	}
	v, _, err := d.Attribute(ctx, nodes[0], name)
	return strings.TrimPrefix(v, "mailto:"), err
}

func allHTML(ctx context.Context, d driver.Driver, selector string) ([]string, error) {
	if selector == "" {
		return nil, nil
	}
	nodes, err := d.Query(ctx, selector)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		h, err := d.HTML(ctx, n)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

// links returns the href of each match, falling back to its text
func links(ctx context.Context, d driver.Driver, selector string) ([]string, error) {
	if selector == "" {
		return nil, nil
	}
	nodes, err := d.Query(ctx, selector)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, n := range nodes {
		href, ok, err := d.Attribute(ctx, n, "href")
		if err != nil {
			return nil, err
		}
		if !ok || href == "" {
			if href, err = d.Text(ctx, n); err != nil {
				return nil, err
			}
		}
		if href = strings.TrimSpace(href); href != "" {
			out = append(out, href)
		}
	}
	return out, nil
}
