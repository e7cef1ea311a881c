package session

import (
	"context"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"time"

	"github.com/pfrederiksen/partyfinder/internal/clock"
	"github.com/pfrederiksen/partyfinder/internal/event"
	"github.com/pfrederiksen/partyfinder/internal/logger"
)

// State is a step of the acquisition state machine.
type State string

const (
	StateInit            State = "INIT"
	StateLoadingExisting State = "LOADING_EXISTING"
	StateValid           State = "VALID"
	StateExpired         State = "EXPIRED"
	StateAcquiring       State = "ACQUIRING"
	StateChallengeWait   State = "CHALLENGE_WAIT"
	StateResolved        State = "RESOLVED"
	StateTimeout         State = "TIMEOUT"
	StateExtracting      State = "EXTRACTING_CREDENTIAL"
	StateReady           State = "READY"
	StateFailed          State = "FAILED"
)

// interstitialKeywords appear in the title of the challenge page.
var interstitialKeywords = []string{
	"momento", "checking", "just", "hang", "wait", "sec", "cloudflare", "verifying", "loading",
}

// Config tunes acquisition.
type Config struct {
	TargetURL        string
	ClearanceCookie  string
	TTL              time.Duration
	Policy           BackoffPolicy
	PollInterval     time.Duration
	ChallengeTimeout time.Duration
	// MinContentBytes is the page size above which the challenge is
	// considered replaced by real content.
	MinContentBytes int
	// ProfileRoot holds one fresh profile directory per attempt.
	ProfileRoot string
	BasePort    int
	UserAgent   string
}

// DefaultConfig returns the tuning that works against the target today.
func DefaultConfig(targetURL string) Config {
	return Config{
		TargetURL:        targetURL,
		ClearanceCookie:  ClearanceCookie,
		TTL:              8 * time.Hour,
		Policy:           DefaultPolicy(),
		PollInterval:     time.Second,
		ChallengeTimeout: 90 * time.Second,
		MinContentBytes:  2000,
		BasePort:         9222,
	}
}

// Machine runs the acquisition state machine. It is not safe for
// concurrent use.
type Machine struct {
	cfg     Config
	store   *Store
	browser Browser
	clock   clock.Clock
	rnd     *rand.Rand

	state   State
	history []State
}

// NewMachine creates a machine in the INIT state.
func NewMachine(cfg Config, store *Store, browser Browser, clk clock.Clock) *Machine {
	if cfg.ClearanceCookie == "" {
		cfg.ClearanceCookie = ClearanceCookie
	}
	seed := uint64(clk.Now().UnixNano())
	return &Machine{
		cfg:     cfg,
		store:   store,
		browser: browser,
		clock:   clk,
		rnd:     rand.New(rand.NewPCG(seed, seed>>1)),
		state:   StateInit,
		history: []State{StateInit},
	}
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// History returns every state entered, in order.
func (m *Machine) History() []State {
	return append([]State(nil), m.history...)
}

func (m *Machine) enter(s State) {
	m.state = s
	m.history = append(m.history, s)
	logger.Debug("Session state", logger.Fields{"state": string(s)})
}

// Run returns a usable credential: the saved one if it is still valid,
// otherwise a freshly acquired one.
func (m *Machine) Run(ctx context.Context) (*Credential, error) {
	m.enter(StateLoadingExisting)

	cred, err := m.store.Load()
	if err == nil {
		err = cred.Validate(m.clock.Now(), m.cfg.ClearanceCookie)
	}
	if err == nil {
		m.enter(StateValid)
		m.enter(StateReady)
		logger.Info("Reusing saved session", logger.Fields{
			"remaining": cred.Remaining(m.clock.Now()).Round(time.Minute).String(),
		})
		return cred, nil
	}

	m.enter(StateExpired)
	logger.Info("Saved session unusable", logger.Fields{"reason": err.Error()})
	return m.Acquire(ctx)
}

// Acquire runs the challenge cycle under the backoff policy, ignoring any
// saved credential. The new credential is saved before it is returned.
func (m *Machine) Acquire(ctx context.Context) (*Credential, error) {
	if err := m.cfg.Policy.Validate(); err != nil {
		m.enter(StateFailed)
		return nil, fmt.Errorf("%w: %v", event.ErrSessionFailed, err)
	}

	var lastErr error
	for attempt := 0; attempt < m.cfg.Policy.Attempts; attempt++ {
		if attempt > 0 {
			delay := m.cfg.Policy.Delay(attempt)
			logger.Info("Retrying session acquisition", logger.Fields{
				"attempt": attempt + 1,
				"delay":   delay.String(),
			})
			if err := m.sleep(ctx, delay); err != nil {
				m.enter(StateFailed)
				return nil, err
			}
		}

		cred, err := m.attempt(ctx, attempt)
		if err == nil {
			if err := m.store.Save(cred); err != nil {
				m.enter(StateFailed)
				return nil, fmt.Errorf("%w: %w", event.ErrSessionFailed, err)
			}
			m.enter(StateReady)
			logger.Info("Session acquired", logger.Fields{
				"attempt":    attempt + 1,
				"expires_at": time.Unix(cred.ExpiresAt, 0).UTC().Format(time.RFC3339),
			})
			return cred, nil
		}
		if ctx.Err() != nil {
			m.enter(StateFailed)
			return nil, fmt.Errorf("%w: %w", event.ErrChallengeTimeout, ctx.Err())
		}

		lastErr = err
		logger.Warn("Session attempt failed", logger.Fields{
			"attempt": attempt + 1,
			"error":   err.Error(),
		})
	}

	m.enter(StateFailed)
	return nil, fmt.Errorf("%w after %d attempts: %w", event.ErrSessionFailed, m.cfg.Policy.Attempts, lastErr)
}

// attempt runs one ACQUIRING → CHALLENGE_WAIT → EXTRACTING cycle in a
// fresh profile.
func (m *Machine) attempt(ctx context.Context, n int) (*Credential, error) {
	m.enter(StateAcquiring)

	opts := LaunchOptions{
		ProfileDir: filepath.Join(m.cfg.ProfileRoot, fmt.Sprintf("profile-%d-%d", n, m.clock.Now().UnixNano())),
		DebugPort:  m.cfg.BasePort + n,
		UserAgent:  m.cfg.UserAgent,
	}
	tab, err := m.browser.Launch(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("launching browser: %w", err)
	}
	defer func() {
		if err := tab.Close(); err != nil {
			logger.Debug("Closing browser tab", logger.Fields{"error": err.Error()})
		}
	}()

	if err := tab.Navigate(ctx, m.cfg.TargetURL); err != nil {
		return nil, fmt.Errorf("navigating to %s: %w", m.cfg.TargetURL, err)
	}

	if err := m.waitForChallenge(ctx, tab); err != nil {
		return nil, err
	}

	m.enter(StateExtracting)
	cookies, err := tab.Cookies(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading cookies: %w", err)
	}
	if cookies[m.cfg.ClearanceCookie] == "" {
		return nil, fmt.Errorf("page looked resolved but %w", ErrMissingClearance)
	}
	ua, err := tab.UserAgent(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading user agent: %w", err)
	}

	kept := make(map[string]string, len(KnownCookies))
	for _, name := range KnownCookies {
		if v := cookies[name]; v != "" {
			kept[name] = v
		}
	}
	kept[m.cfg.ClearanceCookie] = cookies[m.cfg.ClearanceCookie]

	return NewCredential(kept, ua, m.cfg.TargetURL, m.clock.Now(), m.cfg.TTL), nil
}

// waitForChallenge polls until the interstitial is gone or the challenge
// timeout passes.
func (m *Machine) waitForChallenge(ctx context.Context, tab Tab) error {
	m.enter(StateChallengeWait)
	deadline := m.clock.Now().Add(m.cfg.ChallengeTimeout)

	for {
		title, err := tab.Title(ctx)
		if err != nil {
			return fmt.Errorf("reading title: %w", err)
		}
		content, err := tab.Content(ctx)
		if err != nil {
			return fmt.Errorf("reading content: %w", err)
		}
		if Resolved(title, len(content), m.cfg.MinContentBytes) {
			m.enter(StateResolved)
			return nil
		}

		if !m.clock.Now().Before(deadline) {
			m.enter(StateTimeout)
			return fmt.Errorf("%w after %s (title %q)", event.ErrChallengeTimeout, m.cfg.ChallengeTimeout, title)
		}

		if in, ok := tab.(Interactor); ok {
			if err := in.Interact(ctx, m.rnd); err != nil {
				logger.Debug("Interaction failed", logger.Fields{"error": err.Error()})
			}
		}
		if err := m.sleep(ctx, m.cfg.PollInterval); err != nil {
			m.enter(StateTimeout)
			return err
		}
	}
}

// sleep waits d on the machine's clock or until ctx is done.
func (m *Machine) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", event.ErrChallengeTimeout, err)
	}
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", event.ErrChallengeTimeout, ctx.Err())
	case <-m.clock.After(d):
		return nil
	}
}

// Resolved reports whether a page has moved past the challenge: its title
// carries no interstitial keyword and its content exceeds minBytes.
func Resolved(title string, contentBytes, minBytes int) bool {
	lower := strings.ToLower(title)
	for _, kw := range interstitialKeywords {
		if strings.Contains(lower, kw) {
			return false
		}
	}
	return contentBytes > minBytes
}
