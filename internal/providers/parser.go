package providers

import "strings"

// ProviderRef names one provider entry, optionally with a key alias:
// "openai", "openai:backup", "ollama:nomic".
type ProviderRef struct {
	Raw      string
	Name     string
	KeyAlias string
}

// ParseProviderList parses a "|" separated failover list.
func ParseProviderList(raw string) []ProviderRef {
	parts := strings.Split(raw, "|")
	out := make([]ProviderRef, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, ParseProviderRef(p))
	}
	if len(out) == 0 {
		out = append(out, ProviderRef{Raw: "mock", Name: "mock"})
	}
	return out
}

func ParseProviderRef(p string) ProviderRef {
	p = strings.TrimSpace(p)
	ref := ProviderRef{Raw: p, Name: strings.ToLower(p)}
	if name, alias, ok := strings.Cut(p, ":"); ok {
		ref.Name = strings.ToLower(strings.TrimSpace(name))
		ref.KeyAlias = strings.TrimSpace(alias)
	}
	return ref
}
