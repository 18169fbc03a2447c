package catalog

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCachingCatalog(t *testing.T) (*CachingCatalog, *Fake, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	fake := NewFake()
	return NewCachingCatalog(fake, client), fake, mr
}

func TestCachingCatalogExistsFallsThroughOnMiss(t *testing.T) {
	cc, fake, _ := newTestCachingCatalog(t)
	ctx := context.Background()

	doc := NewDoc("s3://bucket/a", ProductS2Level1C)
	require.NoError(t, fake.Add(ctx, doc))

	ok, err := cc.Exists(ctx, doc.ID)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCachingCatalogExistsPopulatesCacheOnFallthrough(t *testing.T) {
	cc, fake, mr := newTestCachingCatalog(t)
	ctx := context.Background()

	doc := NewDoc("s3://bucket/a", ProductS2Level1C)
	require.NoError(t, fake.Add(ctx, doc))

	_, err := cc.Exists(ctx, doc.ID)
	require.NoError(t, err)

	require.True(t, mr.Exists(existsKey(doc.ID)))
}

func TestCachingCatalogAddPopulatesCache(t *testing.T) {
	cc, _, mr := newTestCachingCatalog(t)
	ctx := context.Background()

	doc := NewDoc("s3://bucket/b", ProductS2Level1C)
	require.NoError(t, cc.Add(ctx, doc))

	require.True(t, mr.Exists(existsKey(doc.ID)))

	ok, err := cc.Exists(ctx, doc.ID)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCachingCatalogExistsFalseWhenNeitherCacheNorCatalogHasIt(t *testing.T) {
	cc, _, _ := newTestCachingCatalog(t)
	ok, err := cc.Exists(context.Background(), "missing-id")
	require.NoError(t, err)
	require.False(t, ok)
}
