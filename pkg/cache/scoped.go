package cache

// ScopedKeyer wraps a Keyer with a prefix. Deployments that share one Redis
// between environments use it to keep their keys apart.
//
// Example usage:
//
//	keyer := NewScopedKeyer(NewDefaultKeyer(), "staging:")
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// The prefix is prepended to all generated keys.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{
		inner:  inner,
		prefix: prefix,
	}
}

// RenderKey generates a prefixed key for rendered responses.
func (k *ScopedKeyer) RenderKey(textHash, paramsHash, format string) string {
	return k.prefix + k.inner.RenderKey(textHash, paramsHash, format)
}
