package credentialsrepofake

import (
	"context"
	"sync"

	"github.com/jrsteele09/dortmed-client/credentials"
	apperrors "github.com/jrsteele09/dortmed-client/internal/errors"
)

var _ credentials.Repo = (*FakeCredentialsRepo)(nil)

type FakeCredentialsRepo struct {
	values map[string]string
	clears int
	lock   sync.RWMutex
}

func NewFakeCredentialsRepo() *FakeCredentialsRepo {
	return &FakeCredentialsRepo{
		values: make(map[string]string),
	}
}

func (r *FakeCredentialsRepo) Upsert(_ context.Context, values map[string]string) error {
	if err := credentials.ValidateKeys(values); err != nil {
		return err
	}
	r.lock.Lock()
	defer r.lock.Unlock()

	for k, v := range values {
		r.values[k] = v
	}
	return nil
}

func (r *FakeCredentialsRepo) Get(_ context.Context, key string) (string, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	v, ok := r.values[key]
	if !ok {
		return "", apperrors.ErrNotFound
	}
	return v, nil
}

func (r *FakeCredentialsRepo) Clear(_ context.Context) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.values = make(map[string]string)
	r.clears++
	return nil
}

// Len returns the number of stored keys.
func (r *FakeCredentialsRepo) Len() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return len(r.values)
}

// Clears returns how many times Clear was called.
func (r *FakeCredentialsRepo) Clears() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.clears
}
