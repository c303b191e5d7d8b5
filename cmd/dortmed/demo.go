package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/jrsteele09/dortmed-client/authflow"
	"github.com/jrsteele09/dortmed-client/internal/config"
	"github.com/jrsteele09/dortmed-client/internal/fakebackend"
	"github.com/jrsteele09/dortmed-client/profile"
	"github.com/jrsteele09/dortmed-client/session"
	"github.com/rs/zerolog/log"
)

const (
	demoEmail    = "demo.physician@dortmed.example"
	demoPassword = "demo-password"
	demoOTP      = "424242"
)

// demoConfig points the client at the in-process backend and keeps the session in memory.
type demoConfig struct {
	config.Config
	baseURL string
}

func (d demoConfig) GetAPIURL() string { return d.baseURL + fakebackend.APIPrefix }
func (d demoConfig) GetWSURL() string  { return config.DeriveWSURL(d.GetAPIURL()) }
func (d demoConfig) GetLogoutPath() string {
	return fakebackend.RouteLogout
}
func (d demoConfig) GetStoreType() config.StoreType { return config.StoreMemory }
func (d demoConfig) GetIdentityProvider() config.ProviderType {
	return config.ProviderFirebase
}
func (d demoConfig) GetFirebaseURL() string    { return d.baseURL + fakebackend.ToolkitPrefix }
func (d demoConfig) GetFirebaseAPIKey() string { return "demo-key" }

// runDemo starts a fake backend on a loopback port and walks the client through login
// with a second factor, a token refresh, a chat round trip and logout.
func runDemo(ctx context.Context, c config.Config) error {
	backend, err := fakebackend.New(fakebackend.WithLogger(log.Logger), fakebackend.WithAccessTTL(time.Minute))
	if err != nil {
		return err
	}
	backend.AddAccount(fakebackend.Account{
		Email:         demoEmail,
		Password:      demoPassword,
		EmailVerified: true,
		HasProfile:    true,
		Role:          profile.RolePhysician,
		Plan:          profile.PlanPremium,
		FeatureFlags:  map[string]bool{"ai_diagnosis": true, "telemedicine": true},
		OTP:           demoOTP,
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	server := &http.Server{Handler: backend.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Err(err).Msg("demo backend stopped")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	a, err := newApp(ctx, demoConfig{Config: c, baseURL: "http://" + ln.Addr().String()})
	if err != nil {
		return err
	}
	defer a.Close()

	unsubscribe := a.client.Session().Subscribe(func(e session.Event) {
		if ended, ok := e.(session.Ended); ok {
			fmt.Printf("session ended (%s), continue at %s\n", ended.Reason, ended.Redirect)
		}
	})
	defer unsubscribe()

	state, err := a.flow.Submit(ctx, demoEmail, demoPassword)
	if err != nil {
		return err
	}
	fmt.Printf("password accepted, state %s\n", state)
	if state, err = a.flow.SubmitCode(ctx, demoOTP); err != nil {
		return err
	}
	fmt.Printf("code accepted, state %s\n", state)
	printProfile(a.flow.Profile())

	backend.ExpireAccessTokens()
	if _, err := a.flow.RefreshProfile(ctx); err != nil {
		return err
	}
	fmt.Printf("access token expired and was refreshed (%d refresh call)\n", backend.Calls(fakebackend.CallRefresh))

	if _, err := a.notifier.RegisterDevice(ctx, "demo-device-token"); err != nil {
		return err
	}

	conn, err := a.chatDialer.Dial(ctx, "demo-conversation")
	if err != nil {
		return err
	}
	if err := conn.Send(ctx, "Hello from the demo"); err != nil {
		return err
	}
	select {
	case m := <-conn.Messages():
		fmt.Printf("chat echo: %s\n", m.Content)
	case <-time.After(5 * time.Second):
		return errors.New("no chat echo received")
	}

	if err := a.flow.Logout(ctx); err != nil {
		return err
	}
	<-conn.Done()
	if a.flow.State() != authflow.StateLoggedOut {
		return fmt.Errorf("unexpected final state %s", a.flow.State())
	}
	fmt.Println("signed out")
	return nil
}
