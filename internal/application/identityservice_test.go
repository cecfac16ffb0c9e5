package application_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/rollouthub/internal/apperror"
	"github.com/ericfisherdev/rollouthub/internal/application"
	"github.com/ericfisherdev/rollouthub/internal/domain/model"
)

func TestIdentityService_ExchangeCredential(t *testing.T) {
	t.Run("verified identity is returned with orgs", func(t *testing.T) {
		provider := &fakeIdentityProvider{identity: &model.Identity{
			ID:     42,
			Handle: "alice",
			Orgs:   []string{"acme"},
		}}
		svc := application.NewIdentityService(provider, nil, time.Second, slog.Default())

		identity, err := svc.ExchangeCredential(context.Background(), "ghp_sometoken")
		require.NoError(t, err)
		assert.Equal(t, "alice", identity.Handle)
		assert.Equal(t, []string{"acme"}, identity.Orgs)
		assert.False(t, identity.IsAdmin)
		assert.Equal(t, "ghp_sometoken", provider.gotCredential)
	})

	t.Run("empty credential is rejected without a provider call", func(t *testing.T) {
		provider := &fakeIdentityProvider{}
		svc := application.NewIdentityService(provider, nil, time.Second, slog.Default())

		_, err := svc.ExchangeCredential(context.Background(), "   ")
		require.Error(t, err)
		assert.True(t, apperror.Is(err, apperror.CodeCredentialInvalid))
		assert.Zero(t, provider.calls)
	})

	t.Run("provider rejection maps to credential_invalid", func(t *testing.T) {
		provider := &fakeIdentityProvider{err: errors.New("401 bad credentials")}
		svc := application.NewIdentityService(provider, nil, time.Second, slog.Default())

		_, err := svc.ExchangeCredential(context.Background(), "ghp_expired")
		require.Error(t, err)
		assert.True(t, apperror.Is(err, apperror.CodeCredentialInvalid))
	})

	t.Run("admin allow-list matches case-insensitively", func(t *testing.T) {
		provider := &fakeIdentityProvider{identity: &model.Identity{Handle: "Alice"}}
		svc := application.NewIdentityService(provider, []string{"alice"}, time.Second, slog.Default())

		identity, err := svc.ExchangeCredential(context.Background(), "ghp_sometoken")
		require.NoError(t, err)
		assert.True(t, identity.IsAdmin)
	})

	t.Run("nil orgs are normalized to an empty slice", func(t *testing.T) {
		provider := &fakeIdentityProvider{identity: &model.Identity{Handle: "alice"}}
		svc := application.NewIdentityService(provider, nil, time.Second, slog.Default())

		identity, err := svc.ExchangeCredential(context.Background(), "ghp_sometoken")
		require.NoError(t, err)
		assert.NotNil(t, identity.Orgs)
		assert.Empty(t, identity.Orgs)
	})
}
