// Package device holds identity that belongs to the device rather than to a
// signed-in account.
package device

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/diagnosis/ukrbe-market/pkg/kv"
)

const anonymousIDKey = "device:anonymous_id"

const suffixAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// Identity mints the anonymous owner id once per device and keeps returning
// it afterwards.
type Identity struct {
	store kv.Store
	now   func() time.Time

	mu sync.Mutex
	id string
}

func NewIdentity(store kv.Store) *Identity {
	return &Identity{store: store, now: time.Now}
}

// AnonymousID returns local-<base36 unix ms><random suffix>.
func (i *Identity) AnonymousID(ctx context.Context) (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.id != "" {
		return i.id, nil
	}

	var id string
	found, err := i.store.Load(ctx, anonymousIDKey, &id)
	if err != nil {
		return "", fmt.Errorf("load anonymous id: %w", err)
	}
	if found && strings.HasPrefix(id, "local-") {
		i.id = id
		return id, nil
	}

	suffix, err := randomSuffix(6)
	if err != nil {
		return "", err
	}
	id = "local-" + strconv.FormatInt(i.now().UnixMilli(), 36) + suffix
	if err := i.store.Save(ctx, anonymousIDKey, id); err != nil {
		return "", fmt.Errorf("save anonymous id: %w", err)
	}
	i.id = id
	return id, nil
}

func randomSuffix(n int) (string, error) {
	var b strings.Builder
	max := big.NewInt(int64(len(suffixAlphabet)))
	for j := 0; j < n; j++ {
		k, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate anonymous id: %w", err)
		}
		b.WriteByte(suffixAlphabet[k.Int64()])
	}
	return b.String(), nil
}
