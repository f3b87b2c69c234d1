package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"cxcli/internal/auth"
	"cxcli/internal/credentials"

	"github.com/charmbracelet/x/term"
)

// configure prompts for credentials until a set is validated against the
// token endpoint and confirmed, then stores it in the keyring.
func (a *app) configure(ctx context.Context) error {
	p := newPrompter(a.in, a.out)
	c, err := credentials.Stored(a.secrets)
	if err != nil {
		return err
	}

	for {
		if c.CustomerID, err = p.ask("CustomerId", c.CustomerID); err != nil {
			return err
		}
		if c.ClientID, err = p.ask("ClientId", c.ClientID); err != nil {
			return err
		}
		if c.ClientSecret, err = p.secret("ClientSecret", c.ClientSecret); err != nil {
			return err
		}
		if !c.Complete() {
			fmt.Fprintln(a.out, errorStyle.Render("CustomerId, ClientId and ClientSecret are required."))
			continue
		}

		fmt.Fprint(a.out, "Validating credentials... ")
		if _, err := a.tokenSource(c).Fresh(ctx); err != nil {
			var authErr *auth.AuthenticationError
			if !errors.As(err, &authErr) {
				fmt.Fprintln(a.out)
				return err
			}
			a.logger.Debug("token exchange rejected", "err", err)
			fmt.Fprintln(a.out, errorStyle.Render("Error. Please check the credentials."))
			continue
		}
		fmt.Fprintln(a.out, successStyle.Render("Success."))

		ok, err := p.confirm("Please confirm to store this configuration in the OS keyring")
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := credentials.Save(a.secrets, c); err != nil {
			return err
		}
		fmt.Fprintln(a.out, successStyle.Render("Configuration stored successfully."))
		return nil
	}
}

// prompter reads answers line by line. Secrets are read without echo when
// the input is a terminal.
type prompter struct {
	r          *bufio.Reader
	out        io.Writer
	readSecret func() (string, error)
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	p := &prompter{r: bufio.NewReader(in), out: out}
	if f, ok := in.(*os.File); ok && term.IsTerminal(f.Fd()) {
		p.readSecret = func() (string, error) {
			b, err := term.ReadPassword(f.Fd())
			fmt.Fprintln(out)
			return string(b), err
		}
	}
	return p
}

func (p *prompter) line() (string, error) {
	s, err := p.r.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || s == "") {
		return "", fmt.Errorf("failed to read answer: %w", err)
	}
	return strings.TrimSpace(s), nil
}

func (p *prompter) ask(label, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(p.out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(p.out, "%s: ", label)
	}
	s, err := p.line()
	if err != nil {
		return "", err
	}
	if s == "" {
		return def, nil
	}
	return s, nil
}

// secret never shows the current value.
func (p *prompter) secret(label, def string) (string, error) {
	fmt.Fprintf(p.out, "%s: ", label)
	read := p.line
	if p.readSecret != nil {
		read = p.readSecret
	}
	s, err := read()
	if err != nil {
		return "", err
	}
	if s = strings.TrimSpace(s); s == "" {
		return def, nil
	}
	return s, nil
}

func (p *prompter) confirm(question string) (bool, error) {
	fmt.Fprintf(p.out, "%s [y/n]: ", question)
	s, err := p.line()
	if err != nil {
		return false, err
	}
	switch strings.ToLower(s) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
