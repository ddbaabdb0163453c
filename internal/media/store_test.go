package media

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadPlainBase64(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDiskStore(dir, "")
	require.NoError(t, err)

	payload := base64.StdEncoding.EncodeToString([]byte("fake-image-bytes"))
	url, err := store.Upload(context.Background(), payload)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "/uploads/"))
	assert.True(t, strings.HasSuffix(url, ".png"))

	data, err := os.ReadFile(filepath.Join(dir, strings.TrimPrefix(url, "/uploads/")))
	require.NoError(t, err)
	assert.Equal(t, []byte("fake-image-bytes"), data)
}

func TestUploadDataURL(t *testing.T) {
	store, err := NewDiskStore(t.TempDir(), "http://localhost:8083")
	require.NoError(t, err)

	raw := base64.StdEncoding.EncodeToString([]byte{0xff, 0xd8, 0xff})
	url, err := store.Upload(context.Background(), "data:image/jpeg;base64,"+raw)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "http://localhost:8083/uploads/"))
	assert.True(t, strings.HasSuffix(url, ".jpg"))
}

func TestUploadRejectsGarbage(t *testing.T) {
	store, err := NewDiskStore(t.TempDir(), "")
	require.NoError(t, err)

	_, err = store.Upload(context.Background(), "not base64 at all!!!")
	assert.ErrorIs(t, err, ErrInvalidImage)
}

func TestUploadRejectsEmpty(t *testing.T) {
	store, err := NewDiskStore(t.TempDir(), "")
	require.NoError(t, err)

	_, err = store.Upload(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidImage)
}
