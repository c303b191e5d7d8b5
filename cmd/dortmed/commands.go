package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jrsteele09/dortmed-client/authflow"
	"github.com/jrsteele09/dortmed-client/chat"
	apperrors "github.com/jrsteele09/dortmed-client/internal/errors"
	"github.com/jrsteele09/dortmed-client/internal/utils"
	"github.com/jrsteele09/dortmed-client/profile"
)

const (
	passwordEnv     = "DORTMED_PASSWORD"
	maxCodeAttempts = 3
)

var stdin = bufio.NewReader(os.Stdin)

func prompt(label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	line, err := stdin.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func password() (string, error) {
	if pw := os.Getenv(passwordEnv); pw != "" {
		return pw, nil
	}
	return prompt("Password: ")
}

func (a *app) login(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: dortmed login <email>")
	}
	pw, err := password()
	if err != nil {
		return err
	}

	state, err := a.flow.Submit(ctx, args[0], pw)
	for attempt := 0; state == authflow.StateAwaitingSecondFactor && attempt < maxCodeAttempts; attempt++ {
		if err != nil {
			fmt.Fprintln(os.Stderr, "That code was not accepted.")
		}
		code, promptErr := prompt("One-time code: ")
		if promptErr != nil {
			return promptErr
		}
		state, err = a.flow.SubmitCode(ctx, code)
	}
	if err != nil {
		return describeLoginError(err)
	}
	if state != authflow.StateAuthenticated {
		return fmt.Errorf("login did not complete (state %s)", state)
	}
	printProfile(a.flow.Profile())
	fmt.Printf("Continue at %s\n", a.flow.Home())
	return nil
}

func describeLoginError(err error) error {
	switch {
	case apperrors.Is(err, apperrors.ErrInvalidCredentials):
		return errors.New("incorrect email or password")
	case apperrors.Is(err, apperrors.ErrEmailNotVerified):
		return errors.New("email address not verified, follow the link we sent and try again")
	case apperrors.Is(err, apperrors.ErrInvalidSecondFactor):
		return errors.New("one-time code rejected too many times")
	case apperrors.Detail(err) != "":
		return errors.New(apperrors.Detail(err))
	default:
		return err
	}
}

// resume loads the stored session. It fails when there is none.
func (a *app) resume(ctx context.Context) error {
	state, err := a.flow.Resume(ctx)
	if err != nil {
		return err
	}
	if state != authflow.StateAuthenticated {
		return errors.New("not signed in, run: dortmed login <email>")
	}
	return nil
}

func (a *app) whoami(ctx context.Context) error {
	if err := a.resume(ctx); err != nil {
		return err
	}
	printProfile(a.flow.Profile())
	return nil
}

func (a *app) logout(ctx context.Context) error {
	if _, err := a.flow.Resume(ctx); err != nil {
		// A stale session is still cleared below.
		fmt.Fprintln(os.Stderr, err)
	}
	if err := a.flow.Logout(ctx); err != nil {
		return err
	}
	fmt.Println("Signed out.")
	return nil
}

func (a *app) register(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: dortmed register <email> <patient|physician>")
	}
	role, err := profile.ParseRole(args[1])
	if err != nil {
		return err
	}
	pw, err := password()
	if err != nil {
		return err
	}
	err = a.flow.Register(ctx, authflow.Registration{Email: args[0], Password: pw, Role: role})
	if err != nil {
		return err
	}
	fmt.Printf("Account created. Check %s for the verification link before signing in.\n", args[0])
	return nil
}

func (a *app) pushToken(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: dortmed push-token <token>")
	}
	if err := a.resume(ctx); err != nil {
		return err
	}
	msg, err := a.notifier.RegisterDevice(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Println(msg)
	return nil
}

func (a *app) chat(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: dortmed chat <conversation-id>")
	}
	if err := a.resume(ctx); err != nil {
		return err
	}
	conn, err := a.chatDialer.Dial(ctx, args[0])
	if err != nil {
		if chat.IsForbidden(err) {
			return errors.New("chat refused the session token, sign in again")
		}
		return err
	}
	defer conn.Close()

	go func() {
		for m := range conn.Messages() {
			fmt.Printf("[%s] %s: %s\n", m.Timestamp.Local().Format("15:04"), m.SenderID, m.Content)
		}
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-conn.Done():
			return conn.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if err := conn.Send(ctx, line); err != nil {
				return err
			}
		}
	}
}

func (a *app) health(ctx context.Context) error {
	hs, err := a.api.Health(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("platform: %s\ndatabase: %s\nai: %s\nocr: %s\n",
		hs.Status, hs.DatabaseConnection, hs.AIServiceStatus, hs.OCRServiceStatus)
	return nil
}

func printProfile(p *profile.Profile) {
	if p == nil {
		fmt.Println("No profile loaded.")
		return
	}
	fmt.Printf("%s (%s), plan %s\n", p.Email, p.Role, p.SubscriptionPlan)
	if phone := utils.Value(p.PhoneNumber); phone != "" {
		fmt.Printf("  phone: %s\n", phone)
	}
	for name, on := range p.FeatureFlags {
		if on {
			fmt.Printf("  feature: %s\n", name)
		}
	}
}
