package adapter

import (
	"context"
	"fmt"
	"sort"

	"paygate/pkg/resilience"
	"paygate/pkg/threeds"
	"paygate/pkg/transaction"
)

// UnavailableClient satisfies every biller transport and fails each call
// with ErrUnavailable. It stands in for billers whose network client is not
// configured, so their calls degrade to aborted responses.
type UnavailableClient struct{}

func (UnavailableClient) ChargeNewCard(context.Context, *transaction.ChargeTransaction) (string, error) {
	return "", ErrUnavailable
}

func (UnavailableClient) ChargeExistingCard(context.Context, *transaction.ChargeTransaction) (string, error) {
	return "", ErrUnavailable
}

func (UnavailableClient) UpdateRebill(context.Context, *transaction.RebillUpdateTransaction) (string, error) {
	return "", ErrUnavailable
}

func (UnavailableClient) SuspendRebill(context.Context, *transaction.RebillUpdateTransaction) (string, error) {
	return "", ErrUnavailable
}

func (UnavailableClient) CancelRebill(context.Context, *transaction.RebillUpdateTransaction) (string, error) {
	return "", ErrUnavailable
}

func (UnavailableClient) Lookup3DS2(context.Context, *transaction.ChargeTransaction, threeds.LookupRequest) (string, error) {
	return "", ErrUnavailable
}

func (UnavailableClient) Complete3DS(context.Context, *transaction.ChargeTransaction, CompleteRequest) (string, error) {
	return "", ErrUnavailable
}

func (UnavailableClient) SimplifiedComplete3DS(context.Context, *transaction.ChargeTransaction, CompleteRequest) (string, error) {
	return "", ErrUnavailable
}

func (UnavailableClient) UploadCard(context.Context, *transaction.ChargeTransaction) (string, error) {
	return "", ErrUnavailable
}

var _ RocketgateClient = UnavailableClient{}

// Clients groups the transports of all billers. Nil entries fall back to
// UnavailableClient.
type Clients struct {
	Rocketgate RocketgateClient
	Netbilling NetbillingClient
	Epoch      EpochClient
	Qysso      QyssoClient
	Pumapay    PumapayClient
	Legacy     LegacyClient
}

// Set holds one adapter per biller.
type Set struct {
	adapters map[string]Adapter
}

// NewSet builds the adapters of every biller on one registry.
func NewSet(registry *resilience.Registry, clients Clients) *Set {
	var none UnavailableClient
	if clients.Rocketgate == nil {
		clients.Rocketgate = none
	}
	if clients.Netbilling == nil {
		clients.Netbilling = none
	}
	if clients.Epoch == nil {
		clients.Epoch = none
	}
	if clients.Qysso == nil {
		clients.Qysso = none
	}
	if clients.Pumapay == nil {
		clients.Pumapay = none
	}
	if clients.Legacy == nil {
		clients.Legacy = none
	}

	s := &Set{adapters: make(map[string]Adapter)}
	for _, a := range []Adapter{
		NewRocketgate(clients.Rocketgate, registry),
		NewNetbilling(clients.Netbilling, registry),
		NewEpoch(clients.Epoch, registry),
		NewQysso(clients.Qysso, registry),
		NewPumapay(clients.Pumapay, registry),
		NewLegacy(clients.Legacy, registry),
	} {
		s.adapters[a.Biller()] = a
	}
	return s
}

// Get returns the adapter of a biller.
func (s *Set) Get(billerName string) (Adapter, error) {
	a, ok := s.adapters[billerName]
	if !ok {
		return nil, fmt.Errorf("adapter: unknown biller %q", billerName)
	}
	return a, nil
}

// Looker returns the 3DS2 lookup of a biller, when it has one.
func (s *Set) Looker(billerName string) (threeds.Looker, bool) {
	l, ok := s.adapters[billerName].(threeds.Looker)
	return l, ok
}

// Billers lists the configured billers, sorted.
func (s *Set) Billers() []string {
	names := make([]string, 0, len(s.adapters))
	for name := range s.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
