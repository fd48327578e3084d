package provider

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/collectivehq/ledger-core/internal/domain"
)

func activeCollective(currency domain.Currency, hostID *uuid.UUID) *domain.Collective {
	return &domain.Collective{
		ID:       uuid.New(),
		Slug:     "c-" + uuid.NewString()[:8],
		Type:     domain.CollectiveTypeCollective,
		Currency: currency,
		HostID:   hostID,
		IsActive: true,
	}
}

func activeHost(currency domain.Currency) *domain.Collective {
	return &domain.Collective{
		ID:       uuid.New(),
		Slug:     "host-" + uuid.NewString()[:8],
		Type:     domain.CollectiveTypeHost,
		Currency: currency,
		IsActive: true,
	}
}

func TestCollectiveProviderValidate(t *testing.T) {
	host := activeHost(domain.CurrencyUSD)
	otherHost := activeHost(domain.CurrencyUSD)
	p := &CollectiveProvider{}

	tests := []struct {
		name    string
		order   *domain.Order
		mutate  func(a *orderAccounts)
		wantErr error
	}{
		{
			name:  "valid same-host transfer",
			order: &domain.Order{Currency: domain.CurrencyUSD},
		},
		{
			name:  "payer inactive",
			order: &domain.Order{Currency: domain.CurrencyUSD},
			mutate: func(a *orderAccounts) {
				a.from.IsActive = false
			},
			wantErr: domain.ErrCollectiveInactive,
		},
		{
			name:  "payee inactive",
			order: &domain.Order{Currency: domain.CurrencyUSD},
			mutate: func(a *orderAccounts) {
				a.to.IsActive = false
			},
			wantErr: domain.ErrCollectiveInactive,
		},
		{
			name:    "order currency differs from payer",
			order:   &domain.Order{Currency: domain.CurrencyEUR},
			wantErr: domain.ErrCurrencyMismatch,
		},
		{
			name:  "payer under a different host",
			order: &domain.Order{Currency: domain.CurrencyUSD},
			mutate: func(a *orderAccounts) {
				a.from.HostID = &otherHost.ID
			},
			wantErr: domain.ErrDifferentHost,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			accounts := &orderAccounts{
				from: activeCollective(domain.CurrencyUSD, &host.ID),
				to:   activeCollective(domain.CurrencyUSD, &host.ID),
				host: host,
			}
			if tc.mutate != nil {
				tc.mutate(accounts)
			}

			err := p.validate(tc.order, accounts)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestVerifyOrderPending(t *testing.T) {
	require.NoError(t, verifyOrderPending(&domain.Order{Status: domain.OrderStatusPending}))

	for _, status := range []domain.OrderStatus{
		domain.OrderStatusPaid,
		domain.OrderStatusRefunded,
		domain.OrderStatusExpired,
		domain.OrderStatusError,
	} {
		err := verifyOrderPending(&domain.Order{Status: status})
		require.ErrorIs(t, err, domain.ErrOrderNotPending, "status %s", status)
	}
}

type fakeCollectives struct {
	byID map[uuid.UUID]*domain.Collective
}

func (f *fakeCollectives) GetByID(_ context.Context, id uuid.UUID) (*domain.Collective, error) {
	c, ok := f.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return c, nil
}

func (f *fakeCollectives) GetForUpdate(_ context.Context, _ *sql.Tx, id uuid.UUID) (*domain.Collective, error) {
	return f.GetByID(context.Background(), id)
}

type fakePaymentMethods struct {
	byID map[uuid.UUID]*domain.PaymentMethod
}

func (f *fakePaymentMethods) GetByID(_ context.Context, id uuid.UUID) (*domain.PaymentMethod, error) {
	pm, ok := f.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return pm, nil
}

func TestResolveHost(t *testing.T) {
	host := activeHost(domain.CurrencyUSD)
	hosted := activeCollective(domain.CurrencyUSD, &host.ID)
	unhosted := activeCollective(domain.CurrencyUSD, nil)

	reader := &fakeCollectives{byID: map[uuid.UUID]*domain.Collective{
		host.ID:   host,
		hosted.ID: hosted,
	}}

	t.Run("host resolves to itself", func(t *testing.T) {
		got, err := resolveHost(context.Background(), reader, host)
		require.NoError(t, err)
		require.Equal(t, host.ID, got.ID)
	})

	t.Run("hosted collective resolves its host", func(t *testing.T) {
		got, err := resolveHost(context.Background(), reader, hosted)
		require.NoError(t, err)
		require.Equal(t, host.ID, got.ID)
	})

	t.Run("unhosted collective has no host", func(t *testing.T) {
		_, err := resolveHost(context.Background(), reader, unhosted)
		require.ErrorIs(t, err, domain.ErrNoHost)
	})
}

func TestTestProviderProductionGuard(t *testing.T) {
	p := NewTestProvider(Deps{}, "production")
	ctx := context.Background()

	_, err := p.ProcessOrder(ctx, &domain.Order{Status: domain.OrderStatusPending})
	require.ErrorIs(t, err, domain.ErrProviderNotAllowed)

	_, err = p.Balance(ctx, &domain.PaymentMethod{})
	require.ErrorIs(t, err, domain.ErrProviderNotAllowed)

	_, err = p.RefundTransaction(ctx, &domain.Transaction{}, uuid.New(), "test")
	require.ErrorIs(t, err, domain.ErrProviderNotAllowed)
}

func TestPrepaidVerifyPaymentMethod(t *testing.T) {
	owner := uuid.New()
	future := time.Now().Add(24 * time.Hour)
	past := time.Now().Add(-24 * time.Hour)

	newCard := func(mutate func(pm *domain.PaymentMethod)) *domain.PaymentMethod {
		pm := &domain.PaymentMethod{
			ID:           uuid.New(),
			CollectiveID: owner,
			Service:      domain.ServiceOpenCollective,
			Type:         domain.TypePrepaid,
			Currency:     domain.CurrencyUSD,
			ExpiryDate:   &future,
		}
		if mutate != nil {
			mutate(pm)
		}
		return pm
	}

	tests := []struct {
		name    string
		pm      *domain.PaymentMethod
		noPM    bool
		wantErr error
	}{
		{name: "valid card", pm: newCard(nil)},
		{name: "no payment method on order", noPM: true, wantErr: domain.ErrNoPaymentMethod},
		{
			name:    "wrong type",
			pm:      newCard(func(pm *domain.PaymentMethod) { pm.Type = domain.TypeCollective }),
			wantErr: domain.ErrWrongPaymentMethod,
		},
		{
			name:    "not owned by payer",
			pm:      newCard(func(pm *domain.PaymentMethod) { pm.CollectiveID = uuid.New() }),
			wantErr: domain.ErrWrongPaymentMethod,
		},
		{
			name:    "expired",
			pm:      newCard(func(pm *domain.PaymentMethod) { pm.ExpiryDate = &past }),
			wantErr: domain.ErrPaymentMethodExpired,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			methods := &fakePaymentMethods{byID: map[uuid.UUID]*domain.PaymentMethod{}}
			order := &domain.Order{FromCollectiveID: owner}
			if !tc.noPM {
				methods.byID[tc.pm.ID] = tc.pm
				order.PaymentMethodID = &tc.pm.ID
			}

			p := &PrepaidProvider{deps: Deps{PaymentMethods: methods}}
			_, err := p.verifyPaymentMethod(context.Background(), order)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}
