//go:build integration

package mongo_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"kindergarten/internal/docstore"
	"kindergarten/internal/docstore/mongo"
	"kindergarten/internal/docstore/storetest"
	"kindergarten/pkg/testutil/containers"
)

const database = "kindergarten_test"

func TestMongoStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	mc := containers.GetManager().GetMongo(t)

	suite.Run(t, &storetest.Suite{
		NewStore: func(t *testing.T) docstore.Store {
			ctx := context.Background()
			require.NoError(t, mc.DropDatabase(ctx, database))
			store := mongo.New(mc.Client.Database(database))
			require.NoError(t, store.EnsureIndexes(ctx))
			return store
		},
	})
}
