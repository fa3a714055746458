package integration

import (
	IntStripe "pipet/integration/stripe"
	IntZendesk "pipet/integration/zendesk"
	"pipet/model/model"
	"pipet/sync"
)

// ProviderByName returns the provider definition for an account's
// provider name, nil when unknown.
func ProviderByName(name string) *sync.Provider {
	switch name {
	case model.ProviderZendesk:
		return IntZendesk.GetProvider()
	case model.ProviderStripe:
		return IntStripe.GetProvider()
	}
	return nil
}
