package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mmcdole/hangar/internal/domain"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newLoginCmd(g *globals) *cobra.Command {
	var passwordStdin bool

	cmd := &cobra.Command{
		Use:   "login [handle]",
		Short: "Sign in with a handle and an app password",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := bufio.NewReader(cmd.InOrStdin())
			out := cmd.OutOrStdout()

			var handle string
			if len(args) == 1 {
				handle = args[0]
			} else {
				h, err := prompt(in, out, "Handle: ")
				if err != nil {
					return err
				}
				handle = h
			}
			handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
			if handle == "" {
				return errors.New("handle cannot be empty")
			}

			var password string
			var err error
			if passwordStdin {
				password, err = readLine(in)
			} else {
				password, err = readPassword(cmd.InOrStdin(), in, out, "App password: ")
			}
			if err != nil {
				return err
			}
			if password == "" {
				return errors.New("password cannot be empty")
			}

			rt := openRuntime(g.cfg, g.logger)
			defer rt.Close()

			change, err := rt.core.Login(cmd.Context(), handle, password)
			if err != nil {
				g.logger.Warn("login failed", "handle", handle, "error", err)
				return errors.New(domain.UserMessage(err))
			}
			if !change.Persisted {
				g.console.Warn("secret storage unavailable, the session will not be remembered")
			}
			return writePlain(out, "Logged in as @%s (%s)\n", change.Session.Handle, change.Session.DID)
		},
	}

	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the app password from stdin")
	return cmd
}

func newLogoutCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and clear cached data of the account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := openRuntime(g.cfg, g.logger)
			defer rt.Close()

			if _, err := rt.core.Resume(cmd.Context()); err != nil {
				if errors.Is(err, domain.ErrNotAuthenticated) {
					return writePlain(cmd.OutOrStdout(), "Not logged in\n")
				}
				return err
			}
			change, err := rt.core.Logout(cmd.Context())
			if err != nil {
				return err
			}
			return writePlain(cmd.OutOrStdout(), "Logged out @%s\n", change.Previous.Handle)
		},
	}
}

func newWhoamiCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := openRuntime(g.cfg, g.logger)
			defer rt.Close()

			change, err := rt.core.Resume(cmd.Context())
			if errors.Is(err, domain.ErrNotAuthenticated) {
				return writePlain(cmd.OutOrStdout(), "Not logged in\n")
			}
			if err != nil {
				return err
			}
			s := change.Session
			return writePlain(cmd.OutOrStdout(), "@%s\ndid: %s\nservice: %s\n", s.Handle, s.DID, s.Service)
		},
	}
}

func prompt(in *bufio.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)
	return readLine(in)
}

func readLine(in *bufio.Reader) (string, error) {
	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// readPassword reads without echo when stdin is a terminal, otherwise a
// plain line.
func readPassword(stdin io.Reader, in *bufio.Reader, out io.Writer, label string) (string, error) {
	f, ok := stdin.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return prompt(in, out, label)
	}
	fmt.Fprint(out, label)
	b, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}
