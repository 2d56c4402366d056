package driver

import (
	"context"
	"time"
)

// Node is an opaque handle to an element of the remote document
type Node struct {
	ID int64
}

// Driver defines the page automation primitives the extraction core relies on.
// A Driver is bound to one remote document and is not safe for concurrent callers.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	Query(ctx context.Context, selector string) ([]Node, error)
	QueryIn(ctx context.Context, parent Node, selector string) ([]Node, error)
	Text(ctx context.Context, node Node) (string, error)
	HTML(ctx context.Context, node Node) (string, error)
	Attribute(ctx context.Context, node Node, name string) (string, bool, error)
	Click(ctx context.Context, node Node) error
	Fill(ctx context.Context, node Node, value string) error
	WaitFor(ctx context.Context, selector string, timeout time.Duration) error
	// Location is the cheap liveness probe: it reads the current document URL.
	Location(ctx context.Context) (string, error)
	Close() error
}

// Factory opens a fresh driver, typically a new browser session
type Factory func(ctx context.Context) (Driver, error)
