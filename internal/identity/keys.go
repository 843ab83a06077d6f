package identity

import (
	"context"
	"crypto"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4"

	"github.com/cypher-asi/aura-swarm/internal/logger"
)

// minKeyRefreshInterval is the maximum age the adapter will tolerate
// before proactively refreshing signing keys, independent of cache
// misses: the data model requires a refresh no less often than every
// 300 seconds.
const minKeyRefreshInterval = 300 * time.Second

// KeySet is a cache of signing-key material indexed by key-id. Readers
// are common (every request); writers are rare (cache miss or the
// periodic refresh), so it is guarded by a RWMutex per the concurrency
// model's "readers common, writers rare" guidance for this cache.
type KeySet struct {
	mu         sync.RWMutex
	keys       map[string]crypto.PublicKey
	jwksURL    string
	httpClient *http.Client
	fetchedAt  time.Time

	stop chan struct{}
}

// NewKeySet constructs a KeySet that fetches from jwksURL and starts its
// background refresh loop. Callers must call Close to stop the loop.
func NewKeySet(jwksURL string, httpClient *http.Client) (*KeySet, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	ks := &KeySet{
		keys:       make(map[string]crypto.PublicKey),
		jwksURL:    jwksURL,
		httpClient: httpClient,
		stop:       make(chan struct{}),
	}
	if err := ks.refresh(context.Background()); err != nil {
		return nil, err
	}
	go ks.refreshLoop()
	return ks, nil
}

// Close stops the background refresh loop.
func (ks *KeySet) Close() {
	close(ks.stop)
}

func (ks *KeySet) refreshLoop() {
	ticker := time.NewTicker(minKeyRefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ks.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := ks.refresh(ctx); err != nil {
				logger.Identity().Warn().Err(err).Msg("periodic signing key refresh failed")
			}
			cancel()
		}
	}
}

// Get returns the public key for kid, refreshing once on a cache miss.
// During the refresh, the previous key set remains readable, so requests
// signed with an old-but-still-valid key continue to succeed.
func (ks *KeySet) Get(ctx context.Context, kid string) (crypto.PublicKey, error) {
	ks.mu.RLock()
	key, ok := ks.keys[kid]
	ks.mu.RUnlock()
	if ok {
		return key, nil
	}

	if err := ks.refresh(ctx); err != nil {
		return nil, fail(UpstreamFailure, "refreshing signing keys", err)
	}

	ks.mu.RLock()
	key, ok = ks.keys[kid]
	ks.mu.RUnlock()
	if !ok {
		return nil, fail(KeyNotFound, kid, nil)
	}
	return key, nil
}

func (ks *KeySet) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ks.jwksURL, nil)
	if err != nil {
		return fmt.Errorf("identity: building jwks request: %w", err)
	}
	resp, err := ks.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("identity: fetching jwks: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("identity: reading jwks response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("identity: jwks endpoint returned %d", resp.StatusCode)
	}

	var jwks jose.JSONWebKeySet
	if err := json.Unmarshal(body, &jwks); err != nil {
		return fmt.Errorf("identity: parsing jwks: %w", err)
	}

	fresh := make(map[string]crypto.PublicKey, len(jwks.Keys))
	for _, k := range jwks.Keys {
		if k.KeyID == "" || k.Use == "enc" {
			continue
		}
		fresh[k.KeyID] = k.Key
	}

	ks.mu.Lock()
	ks.keys = fresh
	ks.fetchedAt = time.Now()
	ks.mu.Unlock()
	return nil
}
