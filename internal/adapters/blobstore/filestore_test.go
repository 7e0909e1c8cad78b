package blobstore

import (
	"context"
	"testing"

	"github.com/expensio/expensio_backend/internal/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_PutThenGet(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	location, err := store.Put(context.Background(), "receipts/exp-1/receipt.jpg", "image/jpeg", []byte("jpegbytes"))
	require.NoError(t, err)
	assert.Equal(t, "receipts/exp-1/receipt.jpg", location)

	data, err := store.Get(context.Background(), location)
	require.NoError(t, err)
	assert.Equal(t, []byte("jpegbytes"), data)
}

func TestFileStore_GetMissingBlob(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "receipts/nope.jpg")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestFileStore_RejectsEscapingKeys(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Put(context.Background(), "../../etc/passwd", "text/plain", []byte("x"))
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = store.Get(context.Background(), "")
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestFileStore_OverwriteReplacesContent(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	_, err = store.Put(ctx, "receipts/r.jpg", "image/jpeg", []byte("old"))
	require.NoError(t, err)
	_, err = store.Put(ctx, "receipts/r.jpg", "image/jpeg", []byte("new"))
	require.NoError(t, err)

	data, err := store.Get(ctx, "receipts/r.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), data)
}
