// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/meridian-cloud/meridian/pkg/cperrors"
	"github.com/meridian-cloud/meridian/pkg/id"
	"github.com/meridian-cloud/meridian/pkg/model"
	"github.com/meridian-cloud/meridian/pkg/store"
)

const (
	verificationTTL      = time.Hour
	verificationCapacity = 200
)

// RootServiceAccountName is the bootstrap service account created at
// startup when a root key is configured.
const RootServiceAccountName = "root"

// Binder resolves bearer tokens to principals. Service account keys are
// matched first; everything else goes through OIDC verification. Verified
// tokens are cached so concurrent calls with the same token do not each
// pay for signature validation.
type Binder struct {
	store    *store.Store
	verifier TokenVerifier
	users    model.UserRepository
	accounts model.ServiceAccountRepository
	log      logr.Logger

	mu    sync.RWMutex
	cache map[string]cachedVerification
}

type cachedVerification struct {
	email     string
	expiresAt time.Time
}

// NewBinder returns a binder over the given store and verifier.
func NewBinder(st *store.Store, verifier TokenVerifier, log logr.Logger) *Binder {
	return &Binder{
		store:    st,
		verifier: verifier,
		log:      log.WithName("identity"),
		cache:    make(map[string]cachedVerification),
	}
}

// EnsureRootServiceAccount creates the root service account with the given
// key if it does not exist yet. Returns the account either way.
func (b *Binder) EnsureRootServiceAccount(ctx context.Context, key string) (*model.ServiceAccount, error) {
	existing, err := b.accounts.FindByName(ctx, b.store.DB(), RootServiceAccountName)
	if err == nil {
		return existing, nil
	}
	if !store.IsNoRows(err) {
		return nil, err
	}
	created, err := b.accounts.Create(ctx, b.store.DB(), &model.ServiceAccount{
		ID:   id.NewServiceAccountID(),
		Name: RootServiceAccountName,
		Key:  key,
	})
	if err != nil {
		return nil, err
	}
	b.log.Info("created root service account")
	return created, nil
}

// PrincipalFromToken resolves a raw bearer token. An empty token yields the
// anonymous principal; a verified token whose email matches no registered
// user yields UserNotRegisteredError.
func (b *Binder) PrincipalFromToken(ctx context.Context, rawToken string) (Principal, error) {
	if rawToken == "" {
		return Anonymous, nil
	}

	account, err := b.accounts.FindByKey(ctx, b.store.DB(), rawToken)
	if err == nil {
		return Principal{Kind: KindServiceAccount, ServiceAccount: account}, nil
	}
	if !store.IsNoRows(err) {
		return Anonymous, err
	}

	email, err := b.verifiedEmail(ctx, rawToken)
	if err != nil {
		return Anonymous, err
	}
	user, err := b.users.FindByEmail(ctx, b.store.DB(), email)
	if err != nil {
		if store.IsNoRows(err) {
			return Anonymous, &cperrors.UserNotRegisteredError{Email: email}
		}
		return Anonymous, err
	}
	return Principal{Kind: KindUser, User: user}, nil
}

func (b *Binder) verifiedEmail(ctx context.Context, rawToken string) (string, error) {
	b.mu.RLock()
	cached, ok := b.cache[rawToken]
	b.mu.RUnlock()
	if ok && time.Now().Before(cached.expiresAt) {
		return cached.email, nil
	}

	claims, err := b.verifier.Verify(ctx, rawToken)
	if err != nil {
		return "", err
	}

	// A cached verdict must not outlive the token itself.
	expiry := time.Now().Add(verificationTTL)
	if !claims.Expiry.IsZero() && claims.Expiry.Before(expiry) {
		expiry = claims.Expiry
	}

	b.mu.Lock()
	if len(b.cache) >= verificationCapacity {
		b.evictExpiredLocked()
	}
	if len(b.cache) < verificationCapacity {
		b.cache[rawToken] = cachedVerification{email: claims.Email, expiresAt: expiry}
	}
	b.mu.Unlock()
	return claims.Email, nil
}

// evictExpiredLocked drops stale entries; when nothing is stale the cache
// simply stops growing until entries expire.
func (b *Binder) evictExpiredLocked() {
	now := time.Now()
	for token, entry := range b.cache {
		if now.After(entry.expiresAt) {
			delete(b.cache, token)
		}
	}
}
