package loam

import (
	"context"
	"fmt"

	"github.com/aretw0/loam"
	"github.com/aretw0/loam/pkg/core"
	"github.com/aretw0/mpcgate/pkg/domain"
	"github.com/aretw0/mpcgate/pkg/ports"
	"github.com/mitchellh/mapstructure"
)

// Archive implements ports.CommitmentArchive on top of a Loam repository.
// Every commitment becomes a markdown document whose frontmatter holds the record
// and whose body is the data commitment, so operators can audit a party with plain tools.
type Archive struct {
	Repo core.Repository
}

// New creates an archive over an existing repository.
func New(repo core.Repository) *Archive {
	return &Archive{Repo: repo}
}

// Open initializes a Loam repository at path without versioning.
func Open(path string) (*Archive, error) {
	repo, err := loam.Init(path,
		loam.WithVersioning(false),
		loam.WithForceTemp(false),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize loam: %w", err)
	}
	return New(repo), nil
}

func docID(secretIndex int) string {
	return fmt.Sprintf("commitment-%d", secretIndex)
}

// Save writes the record.
func (a *Archive) Save(ctx context.Context, rec ports.CommitmentRecord) error {
	meta := map[string]any{
		"secret_index":      rec.SecretIndex,
		"data_commitment":   rec.DataCommitment,
		"notary_commitment": rec.NotaryCommitment,
		"client_id":         rec.ClientID,
	}
	err := a.Repo.Save(ctx, core.Document{
		ID:       docID(rec.SecretIndex) + ".md",
		Content:  rec.DataCommitment,
		Metadata: meta,
	})
	if err != nil {
		return fmt.Errorf("loam save failed for secret %d: %w", rec.SecretIndex, err)
	}
	return nil
}

// Get reads the record for secretIndex.
func (a *Archive) Get(ctx context.Context, secretIndex int) (ports.CommitmentRecord, error) {
	doc, err := a.Repo.Get(ctx, docID(secretIndex))
	if err != nil {
		// Loam does not distinguish a missing document from a read failure.
		return ports.CommitmentRecord{}, fmt.Errorf("%w: secret %d: %w", domain.ErrNotFound, secretIndex, err)
	}

	var rec ports.CommitmentRecord
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		TagName:          "json",
		Result:           &rec,
	})
	if err != nil {
		return ports.CommitmentRecord{}, err
	}
	if err := decoder.Decode(doc.Metadata); err != nil {
		return ports.CommitmentRecord{}, fmt.Errorf("failed to decode commitment %d: %w", secretIndex, err)
	}
	return rec, nil
}
