package cache

// ScopedKeyer wraps a Keyer with a prefix so separate pipelines sharing a
// cache directory stay isolated.
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer whose prefix is prepended to every
// generated key.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{
		inner:  inner,
		prefix: prefix,
	}
}

// SourceKey generates a prefixed key for a raw download.
func (k *ScopedKeyer) SourceKey(source string, opts SourceKeyOpts) string {
	return k.prefix + k.inner.SourceKey(source, opts)
}

// DatasetKey generates a prefixed key for a decoded dataset payload.
func (k *ScopedKeyer) DatasetKey(sourceHash string, opts DatasetKeyOpts) string {
	return k.prefix + k.inner.DatasetKey(sourceHash, opts)
}
