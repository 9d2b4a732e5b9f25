// Package secrets keeps runtime secrets in memory behind an atomically
// swappable snapshot, so reads never block and a reload never tears.
package secrets

import (
	"fmt"
	"os"
	"sync/atomic"
)

// Loader fetches a fresh snapshot of secrets from some source.
type Loader func() (map[string]string, error)

// EnvLoader builds a Loader over the named environment variables. Unset or
// empty variables are left out of the snapshot, so Require can tell a
// missing secret apart from a configured one.
func EnvLoader(names ...string) Loader {
	return func() (map[string]string, error) {
		snap := make(map[string]string, len(names))
		for _, name := range names {
			if val, ok := os.LookupEnv(name); ok && val != "" {
				snap[name] = val
			}
		}
		return snap, nil
	}
}

// Vault serves point-in-time snapshots of secret values.
type Vault struct {
	snapshot atomic.Pointer[map[string]string]
	loader   Loader
}

// NewVault runs the loader once so a misconfigured source fails at startup
// rather than on first use.
func NewVault(loader Loader) (*Vault, error) {
	snap, err := loader()
	if err != nil {
		return nil, fmt.Errorf("initial secret load: %w", err)
	}
	v := &Vault{loader: loader}
	v.snapshot.Store(&snap)
	return v, nil
}

// Get returns the secret for key, or "" when it is absent.
func (v *Vault) Get(key string) string {
	return (*v.snapshot.Load())[key]
}

// Require returns the secret for key or an error when it is absent. Startup
// uses this for secrets the service cannot run without, such as the
// credential encryption master key.
func (v *Vault) Require(key string) (string, error) {
	val, ok := (*v.snapshot.Load())[key]
	if !ok || val == "" {
		return "", fmt.Errorf("required secret %s is not set", key)
	}
	return val, nil
}

// Reload fetches a new snapshot and swaps it in. On loader error the
// current snapshot stays in place.
func (v *Vault) Reload() error {
	snap, err := v.loader()
	if err != nil {
		return fmt.Errorf("reload secrets: %w", err)
	}
	v.snapshot.Store(&snap)
	return nil
}
