package ports

import "context"

// CommitmentRecord is what a party keeps for every input it received.
type CommitmentRecord struct {
	SecretIndex    int    `json:"secret_index"`
	DataCommitment string `json:"data_commitment"`
	// NotaryCommitment is the commitment read from the notarized proof.
	NotaryCommitment string `json:"notary_commitment,omitempty"`
	ClientID         int    `json:"client_id"`
}

// CommitmentArchive persists commitments by secret index.
type CommitmentArchive interface {
	Save(ctx context.Context, rec CommitmentRecord) error

	// Get returns domain.ErrNotFound when nothing was archived for the index.
	Get(ctx context.Context, secretIndex int) (CommitmentRecord, error)
}
