// Package discovery implements capability discovery: providers announce
// what they serve to a registry, and consumers resolve "ontology.TYPE" keys
// to provider addresses through a caching resolver.
package discovery

import (
	"sort"
	"strings"
	"sync"

	"github.com/voyagent/voyagent/acl"
)

// Key builds the registry key for a payload type within an ontology.
func Key(ontology, payloadType string) string {
	if ontology == "" {
		ontology = acl.DefaultOntology
	}
	return ontology + "." + payloadType
}

// Registry is the provider index held by the registry agent:
// "ontology.TYPE" -> set of provider addresses. Entries accumulate;
// re-announcing is idempotent.
type Registry struct {
	mu    sync.RWMutex
	index map[string]map[string]struct{}
}

// NewRegistry returns an empty index.
func NewRegistry() *Registry {
	return &Registry{index: make(map[string]map[string]struct{})}
}

// ApplyCapability ingests one CAPABILITY announcement from provider and
// returns the keys that were registered. Blank types are skipped; a blank
// ontology falls back to the default.
func (r *Registry) ApplyCapability(p acl.CapabilityPayload, provider string) []string {
	provider = bareAddress(provider)
	var added []string
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entry := range p.Provides {
		ontology := strings.TrimSpace(entry.Ontology)
		for _, typ := range entry.Types {
			typ = strings.TrimSpace(typ)
			if typ == "" {
				continue
			}
			key := Key(ontology, typ)
			if r.index[key] == nil {
				r.index[key] = make(map[string]struct{})
			}
			r.index[key][provider] = struct{}{}
			added = append(added, key)
		}
	}
	sort.Strings(added)
	return added
}

// Providers returns the sorted providers of one key, empty when unknown.
func (r *Registry) Providers(key string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedSet(r.index[key])
}

// Lookup resolves several keys at once; unknown keys map to empty lists so
// the caller can distinguish "asked" from "omitted".
func (r *Registry) Lookup(keys []string) map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string][]string, len(keys))
	for _, key := range keys {
		out[key] = sortedSet(r.index[key])
	}
	return out
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for member := range set {
		out = append(out, member)
	}
	sort.Strings(out)
	return out
}

// bareAddress strips a carrier resource suffix ("agent@host/res" ->
// "agent@host").
func bareAddress(addr string) string {
	if i := strings.IndexByte(addr, '/'); i >= 0 {
		return addr[:i]
	}
	return addr
}
