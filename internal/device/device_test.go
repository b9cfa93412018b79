package device

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/diagnosis/ukrbe-market/pkg/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnonymousID_FormatAndStability(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()

	ident := NewIdentity(store)
	ident.now = func() time.Time { return time.UnixMilli(1700000000000) }

	id, err := ident.AnonymousID(ctx)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^local-loyw3v28[0-9a-z]{6}$`), id)

	again, err := ident.AnonymousID(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, again)

	// A fresh process on the same device reads the stored id.
	reopened, err := NewIdentity(store).AnonymousID(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, reopened)
}
