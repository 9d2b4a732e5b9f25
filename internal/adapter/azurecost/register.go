package azurecost

import "github.com/spendsight/spendsight/internal/port/costprovider"

func init() {
	costprovider.Register(providerName, func(creds map[string]string) (costprovider.Provider, error) {
		return NewProvider(creds)
	})
}
