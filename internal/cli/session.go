package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/pfrederiksen/partyfinder/internal/clock"
	"github.com/pfrederiksen/partyfinder/internal/session"
)

// SessionStatus describes the stored credential without revealing cookie values.
type SessionStatus struct {
	Path            string    `json:"path"`
	Present         bool      `json:"present"`
	Valid           bool      `json:"valid"`
	Reason          string    `json:"reason,omitempty"`
	Cookies         []string  `json:"cookies,omitempty"`
	UserAgent       string    `json:"user_agent,omitempty"`
	ChromiumVersion string    `json:"chromium_version,omitempty"`
	IssuedAt        time.Time `json:"issued_at,omitempty"`
	ExpiresAt       time.Time `json:"expires_at,omitempty"`
	Remaining       string    `json:"remaining,omitempty"`
}

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect or refresh the anti-bot session credential",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show whether the stored credential is usable",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat()
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := session.NewStore(cfg.Session.File, cfg.EncryptionKey())
			if err != nil {
				return err
			}
			status, err := Status(store, cfg.Session.ClearanceCookie, time.Now())
			if err != nil {
				return err
			}
			return writeStatus(cmd.OutOrStdout(), status, format)
		},
	})

	var force bool
	acquire := &cobra.Command{
		Use:   "acquire",
		Short: "Reuse the stored credential if valid, otherwise solve the challenge",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat()
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			clk := clock.NewSystem()
			machine, err := newMachine(cfg, clk)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if force {
				_, err = machine.Acquire(ctx)
			} else {
				_, err = machine.Run(ctx)
			}
			if err != nil {
				return fmt.Errorf("acquiring session: %w", err)
			}

			store, err := session.NewStore(cfg.Session.File, cfg.EncryptionKey())
			if err != nil {
				return err
			}
			status, err := Status(store, cfg.Session.ClearanceCookie, clk.Now())
			if err != nil {
				return err
			}
			return writeStatus(cmd.OutOrStdout(), status, format)
		},
	}
	acquire.Flags().BoolVar(&force, "force", false, "Ignore the stored credential and acquire a new one")
	cmd.AddCommand(acquire)

	return cmd
}

// Status loads the credential in store and validates it at now.
func Status(store *session.Store, clearance string, now time.Time) (*SessionStatus, error) {
	status := &SessionStatus{Path: store.Path()}
	cred, err := store.Load()
	if errors.Is(err, session.ErrNoCredential) {
		status.Reason = err.Error()
		return status, nil
	}
	if err != nil {
		return nil, err
	}

	status.Present = true
	status.UserAgent = cred.UserAgent
	status.ChromiumVersion = cred.ChromiumVersion
	status.IssuedAt = time.Unix(cred.IssuedAt, 0).UTC()
	status.ExpiresAt = time.Unix(cred.ExpiresAt, 0).UTC()
	for name := range cred.Cookies {
		status.Cookies = append(status.Cookies, name)
	}
	sort.Strings(status.Cookies)

	if err := cred.Validate(now, clearance); err != nil {
		status.Reason = err.Error()
		return status, nil
	}
	status.Valid = true
	status.Remaining = cred.Remaining(now).Round(time.Minute).String()
	return status, nil
}

func writeStatus(w io.Writer, s *SessionStatus, format OutputFormat) error {
	if format == FormatJSON {
		return writeJSON(w, s)
	}
	fmt.Fprintf(w, "Session file: %s\n", s.Path)
	if !s.Present {
		fmt.Fprintf(w, "No credential stored (%s)\n", s.Reason)
		return nil
	}
	if s.Valid {
		fmt.Fprintf(w, "Status: valid, %s remaining\n", s.Remaining)
	} else {
		fmt.Fprintf(w, "Status: unusable (%s)\n", s.Reason)
	}
	fmt.Fprintf(w, "Issued: %s\n", s.IssuedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Expires: %s\n", s.ExpiresAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Cookies: %v\n", s.Cookies)
	if s.ChromiumVersion != "" {
		fmt.Fprintf(w, "Chromium: %s\n", s.ChromiumVersion)
	}
	return nil
}
