// Package session owns the authenticated automation session of one platform.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/editorialops/referee-monitor/internal/credentials"
	"github.com/editorialops/referee-monitor/internal/driver"
	"github.com/editorialops/referee-monitor/internal/retry"
	"github.com/sirupsen/logrus"
)

// State of the automation session
type State int

const (
	Unauthenticated State = iota
	Authenticating
	Active
	Degraded
	Recovering
	Terminated
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticating:
		return "authenticating"
	case Active:
		return "active"
	case Degraded:
		return "degraded"
	case Recovering:
		return "recovering"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// LoginFlow describes how to authenticate against a platform
type LoginFlow struct {
	LoginURL         string
	UsernameSelector string
	PasswordSelector string
	SubmitSelector   string
	// SecondFactorSelector marks the page element that appears when a verification code is required.
	SecondFactorSelector       string
	SecondFactorInputSelector  string
	SecondFactorSubmitSelector string
	LoggedInSelector           string
	WaitTimeout                time.Duration
}

// Options configures a Manager
type Options struct {
	Platform string
	// CredentialService is the key passed to the credential provider; defaults to Platform.
	CredentialService string
	Login             LoginFlow
	Policy            retry.Policy
	// RecoveryAttempts bounds re-acquisition during Recover.
	RecoveryAttempts int
	ProbeTimeout     time.Duration
}

// Handle is the caller's reference to a live session
type Handle struct {
	Driver     driver.Driver
	entryPoint string
	generation int
}

// EntryPoint is the last page navigated through the handle
func (h *Handle) EntryPoint() string {
	return h.entryPoint
}

// Generation counts how many times the session behind the handle was re-established
func (h *Handle) Generation() int {
	return h.generation
}

// StepFunc is one extraction step against the remote document
type StepFunc func(ctx context.Context, d driver.Driver) error

// Manager drives login, liveness probing and recovery for one platform
type Manager struct {
	opts    Options
	factory driver.Factory
	creds   credentials.Provider
	log     *logrus.Entry

	mu         sync.Mutex
	state      State
	recoveries int
}

// NewManager creates a session manager in the Unauthenticated state
func NewManager(opts Options, factory driver.Factory, creds credentials.Provider) *Manager {
	if opts.CredentialService == "" {
		opts.CredentialService = opts.Platform
	}
	if opts.RecoveryAttempts < 1 {
		opts.RecoveryAttempts = 1
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 5 * time.Second
	}
	if opts.Login.WaitTimeout <= 0 {
		opts.Login.WaitTimeout = 30 * time.Second
	}
	return &Manager{
		opts:    opts,
		factory: factory,
		creds:   creds,
		log:     logrus.WithField("platform", opts.Platform),
		state:   Unauthenticated,
	}
}

// State returns the current session state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Recoveries returns how many recoveries were attempted
func (m *Manager) Recoveries() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recoveries
}

func (m *Manager) transition(to State) {
	m.mu.Lock()
	from := m.state
	m.state = to
	m.mu.Unlock()
	if from != to {
		m.log.WithFields(logrus.Fields{"from": from.String(), "to": to.String()}).Debug("Session state changed")
	}
}

// Acquire opens a driver and logs in
func (m *Manager) Acquire(ctx context.Context) (*Handle, error) {
	if m.State() == Terminated {
		return nil, &SessionDeadError{Platform: m.opts.Platform, Step: "acquire", Cause: ErrTerminated}
	}

	h, err := m.authenticate(ctx)
	if err != nil {
		m.transition(Unauthenticated)
		return nil, err
	}
	m.transition(Active)
	m.log.Info("Session established")
	return h, nil
}

func (m *Manager) authenticate(ctx context.Context) (*Handle, error) {
	m.transition(Authenticating)

	d, err := m.factory(ctx)
	if err != nil {
		return nil, m.authError("open-driver", "failed to open driver", err)
	}

	if err := m.login(ctx, d); err != nil {
		d.Close()
		return nil, err
	}
	return &Handle{Driver: d}, nil
}

func (m *Manager) authError(step, msg string, cause error) error {
	return &AuthenticationError{Platform: m.opts.Platform, Step: step, Message: msg, Cause: cause}
}

func (m *Manager) credential(field string) (string, error) {
	value, ok := m.creds.Get(m.opts.CredentialService, field)
	if !ok {
		return "", m.authError("credentials", fmt.Sprintf("missing credential %q", field), nil)
	}
	return value, nil
}

func (m *Manager) login(ctx context.Context, d driver.Driver) error {
	flow := m.opts.Login
	policy := m.opts.Policy

	if err := policy.Do(ctx, "login-navigate", func(ctx context.Context) error {
		return d.Navigate(ctx, flow.LoginURL)
	}); err != nil {
		return m.authError("login-navigate", "failed to load login page", err)
	}

	username, err := m.credential(credentials.FieldUsername)
	if err != nil {
		return err
	}
	password, err := m.credential(credentials.FieldPassword)
	if err != nil {
		return err
	}

	if err := fillFirst(ctx, d, flow.UsernameSelector, username); err != nil {
		return m.authError("login-form", "failed to fill username", err)
	}
	if err := fillFirst(ctx, d, flow.PasswordSelector, password); err != nil {
		return m.authError("login-form", "failed to fill password", err)
	}
	if err := clickFirst(ctx, d, flow.SubmitSelector); err != nil {
		return m.authError("login-submit", "failed to submit login form", err)
	}

	if flow.SecondFactorSelector != "" {
		nodes, err := d.Query(ctx, flow.SecondFactorSelector)
		if err != nil {
			return m.authError("second-factor", "failed to check for verification step", err)
		}
		if len(nodes) > 0 {
			m.log.Info("Platform requested a verification code")
			code, err := m.credential(credentials.FieldSecondFactor)
			if err != nil {
				return err
			}
			input := flow.SecondFactorInputSelector
			if input == "" {
				input = flow.SecondFactorSelector
			}
			if err := fillFirst(ctx, d, input, code); err != nil {
				return m.authError("second-factor", "failed to fill verification code", err)
			}
			if err := clickFirst(ctx, d, flow.SecondFactorSubmitSelector); err != nil {
				return m.authError("second-factor", "failed to submit verification code", err)
			}
		}
	}

	if flow.LoggedInSelector != "" {
		if err := d.WaitFor(ctx, flow.LoggedInSelector, flow.WaitTimeout); err != nil {
			return m.authError("login-confirm", "logged-in marker never appeared", err)
		}
	}
	return nil
}

func first(ctx context.Context, d driver.Driver, selector string) (driver.Node, error) {
	if selector == "" {
		return driver.Node{}, errors.New("selector not configured")
	}
	nodes, err := d.Query(ctx, selector)
	if err != nil {
		return driver.Node{}, err
	}
	if len(nodes) == 0 {
		return driver.Node{}, fmt.Errorf("no element matches %q", selector)
	}
	return nodes[0], nil
}

func fillFirst(ctx context.Context, d driver.Driver, selector, value string) error {
	node, err := first(ctx, d, selector)
	if err != nil {
		return err
	}
	return d.Fill(ctx, node, value)
}

func clickFirst(ctx context.Context, d driver.Driver, selector string) error {
	node, err := first(ctx, d, selector)
	if err != nil {
		return err
	}
	return d.Click(ctx, node)
}

// IsAlive probes the remote session. A dead-session failure degrades it at once; any other
// probe failure, such as a probe timeout, is probed again before the session is degraded.
func (m *Manager) IsAlive(ctx context.Context, h *Handle) bool {
	if h == nil || h.Driver == nil {
		return false
	}
	switch m.State() {
	case Terminated, Unauthenticated:
		return false
	}

	err := m.probe(ctx, h)
	if err != nil && !IsDeadSession(err) && ctx.Err() == nil {
		m.log.Debugf("Session probe failed, probing again: %v", err)
		err = m.probe(ctx, h)
	}
	if err == nil {
		return true
	}
	if ctx.Err() != nil {
		return false
	}
	m.log.WithField("dead", IsDeadSession(err)).Warnf("Session probe failed: %v", err)
	m.transition(Degraded)
	return false
}

func (m *Manager) probe(ctx context.Context, h *Handle) error {
	probeCtx, cancel := context.WithTimeout(ctx, m.opts.ProbeTimeout)
	defer cancel()
	_, err := h.Driver.Location(probeCtx)
	return err
}

// Recover replaces a dead session with a fresh one and returns to the last entry point.
// On failure the manager is Terminated and the run must be aborted.
func (m *Manager) Recover(ctx context.Context, h *Handle) (*Handle, error) {
	m.mu.Lock()
	m.recoveries++
	m.mu.Unlock()

	m.transition(Recovering)
	m.log.Warn("Recovering session")

	if h != nil && h.Driver != nil {
		if err := h.Driver.Close(); err != nil {
			m.log.Debugf("Closing dead driver failed: %v", err)
		}
	}

	var fresh *Handle
	var lastErr error
	for attempt := 1; attempt <= m.opts.RecoveryAttempts; attempt++ {
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}
		fresh, lastErr = m.authenticate(ctx)
		if lastErr == nil {
			break
		}
		m.transition(Recovering)
		m.log.WithField("attempt", attempt).Warnf("Re-authentication failed: %v", lastErr)
	}
	if lastErr != nil {
		m.transition(Terminated)
		return nil, &SessionDeadError{Platform: m.opts.Platform, Step: "recover", Cause: lastErr}
	}

	if h == nil {
		h = &Handle{}
	}
	entry := h.entryPoint
	h.Driver = fresh.Driver
	h.generation++

	if entry != "" {
		err := m.opts.Policy.Do(ctx, "recover-navigate", func(ctx context.Context) error {
			return h.Driver.Navigate(ctx, entry)
		})
		if err != nil {
			m.transition(Terminated)
			return nil, &SessionDeadError{Platform: m.opts.Platform, Step: "recover-navigate", Cause: err}
		}
	}

	m.transition(Active)
	m.log.Info("Session recovered")
	return h, nil
}

// Navigate loads url through the handle and remembers it as the recovery entry point
func (m *Manager) Navigate(ctx context.Context, h *Handle, url string) error {
	return m.Step(ctx, h, "navigate", func(ctx context.Context, d driver.Driver) error {
		if err := d.Navigate(ctx, url); err != nil {
			return err
		}
		h.entryPoint = url
		return nil
	})
}

// Step runs fn against the session. Liveness is checked first; a dead session gets exactly
// one recovery per step. fn runs under the retry policy.
func (m *Manager) Step(ctx context.Context, h *Handle, name string, fn StepFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.State() == Terminated {
		return &SessionDeadError{Platform: m.opts.Platform, Step: name, Cause: ErrTerminated}
	}

	recovered := false
	if !m.IsAlive(ctx, h) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := m.Recover(ctx, h); err != nil {
			return err
		}
		recovered = true
	}

	run := func() error {
		return m.opts.Policy.Do(ctx, name, func(ctx context.Context) error {
			return fn(ctx, h.Driver)
		})
	}

	err := run()
	if err == nil || !IsDeadSession(err) {
		return err
	}
	if recovered {
		m.transition(Terminated)
		return &SessionDeadError{Platform: m.opts.Platform, Step: name, Cause: err}
	}

	m.transition(Degraded)
	m.log.WithField("step", name).Warnf("Session died during step: %v", err)
	if _, rerr := m.Recover(ctx, h); rerr != nil {
		return rerr
	}
	if err := run(); err != nil {
		if IsDeadSession(err) {
			m.transition(Terminated)
			return &SessionDeadError{Platform: m.opts.Platform, Step: name, Cause: err}
		}
		return err
	}
	return nil
}

// Close tears the session down
func (m *Manager) Close(h *Handle) {
	if h != nil && h.Driver != nil {
		if err := h.Driver.Close(); err != nil {
			m.log.Debugf("Closing driver failed: %v", err)
		}
	}
	m.transition(Unauthenticated)
}
