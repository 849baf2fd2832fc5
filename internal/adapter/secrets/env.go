// Package secrets provides credential lookup for the backend client.
package secrets

import (
	"os"
	"strings"
	"sync"
)

// EnvProvider resolves secrets from process environment variables. It
// implements domain.SecretProvider.
type EnvProvider struct{}

// NewEnvProvider creates an environment-backed provider.
func NewEnvProvider() *EnvProvider { return &EnvProvider{} }

// GetSecret returns the named secret and whether it is present. Empty values
// count as absent.
func (p *EnvProvider) GetSecret(name string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(name))
	return v, v != ""
}

// StaticProvider serves secrets from a fixed map; used in tests and by the
// load driver.
type StaticProvider struct {
	mu sync.RWMutex
	m  map[string]string
}

// NewStaticProvider creates a provider over a copy of m.
func NewStaticProvider(m map[string]string) *StaticProvider {
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return &StaticProvider{m: cp}
}

// GetSecret returns the named secret and whether it is present.
func (p *StaticProvider) GetSecret(name string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.m[name]
	return v, ok && v != ""
}

// Set installs or replaces a secret.
func (p *StaticProvider) Set(name, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.m[name] = value
}

// Delete removes a secret.
func (p *StaticProvider) Delete(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.m, name)
}
