package awscost

import (
	"context"

	"github.com/spendsight/spendsight/internal/port/costprovider"
)

func init() {
	costprovider.Register(providerName, func(creds map[string]string) (costprovider.Provider, error) {
		return NewProvider(context.Background(), creds)
	})
}
