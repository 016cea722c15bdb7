package keys

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arcrtc/internal/core/domain"
)

func TestPutGetRotate(t *testing.T) {
	p := NewMemoryProvider()
	id := domain.KeyID("srtp:master_key:s-1")

	_, err := p.Get(id)
	assert.ErrorIs(t, err, domain.ErrKeyNotFound)

	require.NoError(t, p.Put(id, []byte{1, 2, 3}))
	got, err := p.Get(id)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got)
	assert.Equal(t, 1, p.Version(id))

	assert.ErrorIs(t, p.Put(id, []byte{9}), domain.ErrKeyConflict)

	require.NoError(t, p.Rotate(id, []byte{4, 5}))
	got, err = p.Get(id)
	require.NoError(t, err)
	assert.Equal(t, []byte{4, 5}, got)
	assert.Equal(t, 2, p.Version(id))

	assert.ErrorIs(t, p.Rotate("missing", []byte{1}), domain.ErrKeyNotFound)
}

func TestGetReturnsCopy(t *testing.T) {
	p := NewMemoryProvider()
	id := domain.KeyID("k")
	require.NoError(t, p.Put(id, []byte{1, 2, 3}))

	got, _ := p.Get(id)
	got[0] = 0xFF
	again, _ := p.Get(id)
	assert.Equal(t, []byte{1, 2, 3}, again)
}

func TestGenerateSessionKeys(t *testing.T) {
	p := NewMemoryProvider()
	keyID, saltID, err := GenerateSessionKeys(p, "sess-1", 16)
	require.NoError(t, err)

	key, err := p.Get(keyID)
	require.NoError(t, err)
	assert.Len(t, key, 16)

	salt, err := p.Get(saltID)
	require.NoError(t, err)
	assert.Len(t, salt, 14)

	// A second provisioning for the same session conflicts.
	_, _, err = GenerateSessionKeys(p, "sess-1", 16)
	assert.ErrorIs(t, err, domain.ErrKeyConflict)
}
