// Package driver provides page automation over a remote document.
// chromedp.go drives a headless Chrome through the DevTools protocol.
package driver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"
)

// ChromeOptions configures the headless browser
type ChromeOptions struct {
	Headless  bool
	UserAgent string
	// ExecPath overrides the Chrome binary lookup when set.
	ExecPath string
}

// ChromeDriver implements Driver on top of chromedp
type ChromeDriver struct {
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	mu    sync.Mutex
	nodes map[int64]*cdp.Node
}

// Ensure ChromeDriver implements Driver
var _ Driver = (*ChromeDriver)(nil)

// ErrUnknownNode is returned for handles that were not produced by this driver
var ErrUnknownNode = errors.New("unknown node handle")

// ErrBrowserGone wraps failures caused by the browser itself going away mid-action
var ErrBrowserGone = errors.New("browser closed")

// NewChromeFactory returns a Factory launching one browser per session
func NewChromeFactory(opts ChromeOptions) Factory {
	return func(ctx context.Context) (Driver, error) {
		return NewChromeDriver(ctx, opts)
	}
}

// NewChromeDriver launches a browser and opens a tab.
// The browser lives until Close, independent of ctx cancellation after startup.
func NewChromeDriver(ctx context.Context, opts ChromeOptions) (*ChromeDriver, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	d := &ChromeDriver{
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		nodes:         make(map[int64]*cdp.Node),
	}

	// An empty Run starts the browser
	if err := d.run(ctx); err != nil {
		d.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	logrus.Debug("Headless browser started")
	return d, nil
}

// run executes actions in the browser tab, bounded by the caller's ctx
func (d *ChromeDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(d.browserCtx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return classifyRunError(ctx, d.browserCtx, chromedp.Run(runCtx, actions...))
}

// classifyRunError tells a caller cancellation apart from the browser context dying under it
func classifyRunError(ctx, browserCtx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if browserCtx.Err() != nil {
		return fmt.Errorf("%w: %v", ErrBrowserGone, err)
	}
	return err
}

func (d *ChromeDriver) remember(nodes []*cdp.Node) []Node {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		id := int64(n.NodeID)
		d.nodes[id] = n
		out = append(out, Node{ID: id})
	}
	return out
}

func (d *ChromeDriver) lookup(node Node) (*cdp.Node, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	n, ok := d.nodes[node.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownNode, node.ID)
	}
	return n, nil
}

func byID(node Node) []cdp.NodeID {
	return []cdp.NodeID{cdp.NodeID(node.ID)}
}

// Navigate loads url and invalidates previously returned node handles
func (d *ChromeDriver) Navigate(ctx context.Context, url string) error {
	d.mu.Lock()
	d.nodes = make(map[int64]*cdp.Node)
	d.mu.Unlock()

	if err := d.run(ctx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

// Query returns every node matching selector, possibly none
func (d *ChromeDriver) Query(ctx context.Context, selector string) ([]Node, error) {
	var nodes []*cdp.Node
	if err := d.run(ctx, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0))); err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	return d.remember(nodes), nil
}

// QueryIn returns nodes matching selector below parent
func (d *ChromeDriver) QueryIn(ctx context.Context, parent Node, selector string) ([]Node, error) {
	p, err := d.lookup(parent)
	if err != nil {
		return nil, err
	}

	var nodes []*cdp.Node
	if err := d.run(ctx, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0), chromedp.FromNode(p))); err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	return d.remember(nodes), nil
}

// Text returns the visible text of node
func (d *ChromeDriver) Text(ctx context.Context, node Node) (string, error) {
	var text string
	if err := d.run(ctx, chromedp.Text(byID(node), &text, chromedp.ByNodeID)); err != nil {
		return "", fmt.Errorf("read text: %w", err)
	}
	return text, nil
}

// HTML returns the inner markup of node
func (d *ChromeDriver) HTML(ctx context.Context, node Node) (string, error) {
	var html string
	if err := d.run(ctx, chromedp.InnerHTML(byID(node), &html, chromedp.ByNodeID)); err != nil {
		return "", fmt.Errorf("read html: %w", err)
	}
	return html, nil
}

// Attribute returns the named attribute of node
func (d *ChromeDriver) Attribute(ctx context.Context, node Node, name string) (string, bool, error) {
	var value string
	var ok bool
	if err := d.run(ctx, chromedp.AttributeValue(byID(node), name, &value, &ok, chromedp.ByNodeID)); err != nil {
		return "", false, fmt.Errorf("read attribute %s: %w", name, err)
	}
	return value, ok, nil
}

// Click clicks node
func (d *ChromeDriver) Click(ctx context.Context, node Node) error {
	if err := d.run(ctx, chromedp.Click(byID(node), chromedp.ByNodeID)); err != nil {
		return fmt.Errorf("click: %w", err)
	}
	return nil
}

// Fill replaces the value of an input node
func (d *ChromeDriver) Fill(ctx context.Context, node Node, value string) error {
	err := d.run(ctx,
		chromedp.SetValue(byID(node), "", chromedp.ByNodeID),
		chromedp.SendKeys(byID(node), value, chromedp.ByNodeID),
	)
	if err != nil {
		return fmt.Errorf("fill input: %w", err)
	}
	return nil
}

// WaitFor blocks until selector is visible or timeout elapses
func (d *ChromeDriver) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := d.run(waitCtx, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait for %q: %w", selector, err)
	}
	return nil
}

// Location implements the liveness probe
func (d *ChromeDriver) Location(ctx context.Context) (string, error) {
	var url string
	if err := d.run(ctx, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

// Close shuts the tab and the browser process down
func (d *ChromeDriver) Close() error {
	if d.browserCancel != nil {
		d.browserCancel()
	}
	if d.allocCancel != nil {
		d.allocCancel()
	}
	return nil
}
