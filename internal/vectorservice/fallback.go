package vectorservice

// FallbackSearcher tries a remote Client first and falls back to an
// in-process Matrix when the client reports the service absent, so
// callers can depend on a single VectorSearcher unconditionally instead
// of special-casing "service unreachable" themselves.
type FallbackSearcher struct {
	remote *Client
	local  *InProcessSearcher
}

// NewFallbackSearcher builds a FallbackSearcher. remote may be nil to
// always use local; local may be nil to always use remote.
func NewFallbackSearcher(remote *Client, local *InProcessSearcher) *FallbackSearcher {
	return &FallbackSearcher{remote: remote, local: local}
}

// Search tries remote first, falling back to local on any error.
func (f *FallbackSearcher) Search(vector []float32, k int) ([]Result, error) {
	if f.remote != nil {
		results, err := f.remote.Search(vector, k)
		if err == nil {
			return results, nil
		}
		if f.local == nil {
			return nil, err
		}
	}
	if f.local != nil {
		return f.local.Search(vector, k)
	}
	return nil, nil
}
