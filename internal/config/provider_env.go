package config

import (
	"context"
	"os"
)

// EnvVarProvider implements SecretProvider by resolving secret values from OS
// environment variables. It is the provider wired for local development, where
// the DropPay API key and webhook secret come from the environment or a .env
// file rather than AWS SSM Parameter Store.
type EnvVarProvider struct{}

// NewEnvVarProvider creates a new EnvVarProvider.
func NewEnvVarProvider() *EnvVarProvider {
	return &EnvVarProvider{}
}

// GetParametersBatch resolves each key through os.LookupEnv. Keys not present
// in the environment are omitted from the result; the loader reports them as
// unresolved so a misconfigured environment fails at startup.
//
// The context is accepted for interface compatibility only; environment
// lookups are synchronous.
func (p *EnvVarProvider) GetParametersBatch(_ context.Context, keys []string) (map[string]string, error) {
	result := make(map[string]string, len(keys))
	for _, key := range keys {
		if val, ok := os.LookupEnv(key); ok {
			result[key] = val
		}
	}
	return result, nil
}
