package identityfake

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jrsteele09/dortmed-client/identity"
	apperrors "github.com/jrsteele09/dortmed-client/internal/errors"
)

var _ identity.Provider = (*FakeProvider)(nil)

type fakeAccount struct {
	uid      string
	password string
	verified bool
}

// FakeProvider is an in-memory identity provider that records every call. Each sign-in
// mints a new token of the form "id-token-N".
type FakeProvider struct {
	accounts map[string]*fakeAccount
	current  *identity.Identity
	seq      int

	signIns           int
	signOuts          int
	created           int
	verificationsSent int
	issued            []string

	// Err, when set, is returned by every call.
	Err error

	lock sync.RWMutex
}

func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		accounts: make(map[string]*fakeAccount),
	}
}

// AddUser registers an account with the given password and verification status.
func (p *FakeProvider) AddUser(uid, email, password string, verified bool) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.accounts[strings.ToLower(email)] = &fakeAccount{uid: uid, password: password, verified: verified}
}

// SetVerified changes an account's email verification status.
func (p *FakeProvider) SetVerified(email string, verified bool) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if a, ok := p.accounts[strings.ToLower(email)]; ok {
		a.verified = verified
	}
}

func (p *FakeProvider) SignIn(_ context.Context, email, password string) (*identity.Identity, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	p.signIns++
	if p.Err != nil {
		return nil, p.Err
	}
	a, ok := p.accounts[strings.ToLower(email)]
	if !ok || a.password != password {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidCredentials, "INVALID_LOGIN_CREDENTIALS")
	}
	p.current = p.mint(a, email)
	cp := *p.current
	return &cp, nil
}

func (p *FakeProvider) SignOut(_ context.Context) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.signOuts++
	p.current = nil
	return nil
}

func (p *FakeProvider) CreateUser(_ context.Context, email, password string) (*identity.Identity, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.Err != nil {
		return nil, p.Err
	}
	key := strings.ToLower(email)
	if _, exists := p.accounts[key]; exists {
		return nil, apperrors.Wrapf(apperrors.ErrEmailInUse, "EMAIL_EXISTS")
	}
	p.created++
	a := &fakeAccount{uid: fmt.Sprintf("uid-%d", len(p.accounts)+1), password: password}
	p.accounts[key] = a
	p.current = p.mint(a, email)
	cp := *p.current
	return &cp, nil
}

func (p *FakeProvider) SendEmailVerification(_ context.Context, id *identity.Identity) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if id == nil {
		return apperrors.ErrNoSession
	}
	p.verificationsSent++
	return nil
}

// mint issues a fresh identity. Callers hold p.lock.
func (p *FakeProvider) mint(a *fakeAccount, email string) *identity.Identity {
	p.seq++
	token := fmt.Sprintf("id-token-%d", p.seq)
	p.issued = append(p.issued, token)
	return &identity.Identity{
		UID:           a.uid,
		Email:         email,
		EmailVerified: a.verified,
		IDToken:       token,
	}
}

// SignedIn reports whether an identity is currently signed in.
func (p *FakeProvider) SignedIn() bool {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.current != nil
}

func (p *FakeProvider) SignIns() int {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.signIns
}

func (p *FakeProvider) SignOuts() int {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.signOuts
}

func (p *FakeProvider) Created() int {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.created
}

func (p *FakeProvider) VerificationsSent() int {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.verificationsSent
}

// Issued returns every identity token minted so far, oldest first.
func (p *FakeProvider) Issued() []string {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return append([]string(nil), p.issued...)
}
