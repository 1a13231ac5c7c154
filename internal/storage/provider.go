package storage

import "docconv/internal/ports"

// Provider is the blob store contract used by the fetcher, the uploader and
// the health check. It is an alias to ports.StorageProvider to keep
// call-sites simple.
type Provider = ports.StorageProvider
