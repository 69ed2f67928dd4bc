package ports

import (
	"context"
	"testing"

	"github.com/aretw0/mpcgate/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunCommitmentArchiveContract runs a suite of tests to verify that a CommitmentArchive
// implementation adheres to the defined interface contract.
func RunCommitmentArchiveContract(t *testing.T, archive CommitmentArchive) {
	ctx := context.Background()

	t.Run("Save and Get", func(t *testing.T) {
		// 1. Save a record
		rec := CommitmentRecord{
			SecretIndex:      7,
			DataCommitment:   "0xabc",
			NotaryCommitment: "0xabc",
			ClientID:         3,
		}
		require.NoError(t, archive.Save(ctx, rec), "Save should not return error")

		// 2. Load it back
		loaded, err := archive.Get(ctx, 7)
		require.NoError(t, err, "Get should not return error")
		assert.Equal(t, rec, loaded)
	})

	t.Run("Get Non-Existent", func(t *testing.T) {
		_, err := archive.Get(ctx, 9999)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("Overwrite", func(t *testing.T) {
		require.NoError(t, archive.Save(ctx, CommitmentRecord{SecretIndex: 8, DataCommitment: "old"}))
		require.NoError(t, archive.Save(ctx, CommitmentRecord{SecretIndex: 8, DataCommitment: "new"}))

		loaded, err := archive.Get(ctx, 8)
		require.NoError(t, err)
		assert.Equal(t, "new", loaded.DataCommitment)
	})
}
