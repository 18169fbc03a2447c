package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GispoCoding/CFSI/internal/cfsierrors"
)

func TestFakeAddThenAddSameURIIsDocumentMismatch(t *testing.T) {
	f := NewFake()
	ctx := context.Background()

	doc := NewDoc("s3://bucket/a/metadata.xml", ProductS2Level1C)
	require.NoError(t, f.Add(ctx, doc))
	assert.Equal(t, 1, f.AddCalls)

	err := f.Add(ctx, doc)
	require.Error(t, err)
	assert.ErrorIs(t, err, cfsierrors.ErrDocumentMismatch)
}

func TestFakeAddThenUpdateSucceeds(t *testing.T) {
	f := NewFake()
	ctx := context.Background()

	doc := NewDoc("s3://bucket/a/metadata.xml", ProductS2Level1C)
	require.NoError(t, f.Add(ctx, doc))

	doc.Properties["cloud_cover"] = 5.0
	require.NoError(t, f.Update(ctx, doc))
	assert.Equal(t, 1, f.UpdateCalls)

	got, err := f.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 5.0, got.Properties["cloud_cover"])
}

func TestFakeGetMissingReturnsNotFound(t *testing.T) {
	f := NewFake()
	_, err := f.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, cfsierrors.ErrCatalogNotFound)
}

func TestFakeExists(t *testing.T) {
	f := NewFake()
	ctx := context.Background()
	doc := NewDoc("s3://bucket/a/metadata.xml", ProductS2Level1C)

	ok, err := f.Exists(ctx, doc.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, f.Add(ctx, doc))
	ok, err = f.Exists(ctx, doc.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFakeSearchFiltersByProductAndLimit(t *testing.T) {
	f := NewFake()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		doc := NewDoc("s3://bucket/l1c/"+string(rune('a'+i)), ProductS2Level1C)
		require.NoError(t, f.Add(ctx, doc))
	}
	other := NewDoc("s3://bucket/l2a/x", ProductS2Sen2Cor)
	require.NoError(t, f.Add(ctx, other))

	results, err := f.Search(ctx, SearchQuery{Product: ProductS2Level1C})
	require.NoError(t, err)
	assert.Len(t, results, 3)

	limited, err := f.Search(ctx, SearchQuery{Product: ProductS2Level1C, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestIDFromURIIsStable(t *testing.T) {
	a := IDFromURI("s3://bucket/key")
	b := IDFromURI("s3://bucket/key")
	c := IDFromURI("s3://bucket/other")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
