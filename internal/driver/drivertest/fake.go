// Package drivertest provides an in-memory driver.Driver for tests.
package drivertest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/editorialops/referee-monitor/internal/driver"
)

// Element is a fake DOM element
type Element struct {
	Text     string
	HTML     string
	Attrs    map[string]string
	Children map[string][]*Element
	// OnClick runs when the element is clicked; it may navigate the driver.
	OnClick func(d *Driver)
	// Value holds whatever was filled into the element.
	Value string
}

// Page is a fake document reachable at a URL
type Page struct {
	Elements map[string][]*Element
}

// Driver is a scripted in-memory driver
type Driver struct {
	mu      sync.Mutex
	Pages   map[string]*Page
	Current string

	nodes  map[int64]*Element
	nextID int64

	// ProbeErr, when set, is returned by Location.
	ProbeErr error
	// Fail injects errors per operation name ("navigate", "query", ...); each call pops one entry.
	Fail map[string][]error

	Closed     bool
	Navigated  []string
	ProbeCalls int
}

// Ensure Driver implements driver.Driver
var _ driver.Driver = (*Driver)(nil)

// New creates a fake driver serving pages
func New(pages map[string]*Page) *Driver {
	return &Driver{
		Pages: pages,
		nodes: make(map[int64]*Element),
		Fail:  make(map[string][]error),
	}
}

// FailNext queues err for the next call of op
func (d *Driver) FailNext(op string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Fail[op] = append(d.Fail[op], err)
}

func (d *Driver) injected(op string) error {
	queue := d.Fail[op]
	if len(queue) == 0 {
		return nil
	}
	err := queue[0]
	d.Fail[op] = queue[1:]
	return err
}

func (d *Driver) register(elems []*Element) []driver.Node {
	out := make([]driver.Node, 0, len(elems))
	for _, e := range elems {
		d.nextID++
		d.nodes[d.nextID] = e
		out = append(out, driver.Node{ID: d.nextID})
	}
	return out
}

func (d *Driver) element(n driver.Node) (*Element, error) {
	e, ok := d.nodes[n.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", driver.ErrUnknownNode, n.ID)
	}
	return e, nil
}

func (d *Driver) Navigate(ctx context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.injected("navigate"); err != nil {
		return err
	}
	if _, ok := d.Pages[url]; !ok {
		return fmt.Errorf("navigate to %s: page not found", url)
	}
	d.Current = url
	d.Navigated = append(d.Navigated, url)
	d.nodes = make(map[int64]*Element)
	return nil
}

func (d *Driver) Query(ctx context.Context, selector string) ([]driver.Node, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.injected("query"); err != nil {
		return nil, err
	}
	page, ok := d.Pages[d.Current]
	if !ok {
		return nil, nil
	}
	return d.register(page.Elements[selector]), nil
}

func (d *Driver) QueryIn(ctx context.Context, parent driver.Node, selector string) ([]driver.Node, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.injected("query"); err != nil {
		return nil, err
	}
	e, err := d.element(parent)
	if err != nil {
		return nil, err
	}
	return d.register(e.Children[selector]), nil
}

func (d *Driver) Text(ctx context.Context, node driver.Node) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.injected("text"); err != nil {
		return "", err
	}
	e, err := d.element(node)
	if err != nil {
		return "", err
	}
	return e.Text, nil
}

func (d *Driver) HTML(ctx context.Context, node driver.Node) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, err := d.element(node)
	if err != nil {
		return "", err
	}
	if e.HTML == "" {
		return e.Text, nil
	}
	return e.HTML, nil
}

func (d *Driver) Attribute(ctx context.Context, node driver.Node, name string) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, err := d.element(node)
	if err != nil {
		return "", false, err
	}
	v, ok := e.Attrs[name]
	return v, ok, nil
}

func (d *Driver) Click(ctx context.Context, node driver.Node) error {
	d.mu.Lock()
	if err := d.injected("click"); err != nil {
		d.mu.Unlock()
		return err
	}
	e, err := d.element(node)
	d.mu.Unlock()
	if err != nil {
		return err
	}
	if e.OnClick != nil {
		e.OnClick(d)
	}
	return nil
}

func (d *Driver) Fill(ctx context.Context, node driver.Node, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, err := d.element(node)
	if err != nil {
		return err
	}
	e.Value = value
	return nil
}

func (d *Driver) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.injected("wait"); err != nil {
		return err
	}
	page, ok := d.Pages[d.Current]
	if !ok || len(page.Elements[selector]) == 0 {
		return fmt.Errorf("wait for %q: %w", selector, context.DeadlineExceeded)
	}
	return nil
}

func (d *Driver) Location(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ProbeCalls++
	if d.ProbeErr != nil {
		return "", d.ProbeErr
	}
	if d.Closed {
		return "", errors.New("invalid session id: browser closed")
	}
	return d.Current, nil
}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Closed = true
	return nil
}

// SetCurrent moves the fake to url without recording a navigation; used from OnClick hooks.
func (d *Driver) SetCurrent(url string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Current = url
	d.nodes = make(map[int64]*Element)
}
