package session

import (
	"context"
	"math/rand/v2"
)

// LaunchOptions isolate one acquisition attempt from the previous ones.
type LaunchOptions struct {
	ProfileDir string
	DebugPort  int
	UserAgent  string
}

// Browser starts automated browser sessions.
type Browser interface {
	Launch(ctx context.Context, opts LaunchOptions) (Tab, error)
}

// Tab is one page of a launched browser.
type Tab interface {
	Navigate(ctx context.Context, url string) error
	Title(ctx context.Context) (string, error)
	Content(ctx context.Context) (string, error)
	Cookies(ctx context.Context) (map[string]string, error)
	UserAgent(ctx context.Context) (string, error)
	Close() error
}

// Interactor is implemented by tabs that can imitate a person between
// polls: pointer movement, scrolling, pauses. It only improves the odds of
// passing the challenge.
type Interactor interface {
	Interact(ctx context.Context, rnd *rand.Rand) error
}
