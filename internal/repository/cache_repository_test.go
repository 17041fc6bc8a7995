package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/girishdigge/graduate-voter-lokmangal-sub002/pkg/errors"
)

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	ctx := context.Background()

	var dest []string
	err := repo.Get(ctx, "references:voter:1", &dest)
	assert.ErrorIs(t, err, appErrors.ErrCacheMiss)
	require.NoError(t, repo.Set(ctx, "references:voter:1", []string{"a"}, time.Minute))
	require.NoError(t, repo.Delete(ctx, "references:voter:1"))
	require.NoError(t, repo.Close())
}
