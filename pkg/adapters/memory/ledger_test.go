package memory_test

import (
	"testing"

	"github.com/aretw0/mpcgate/pkg/adapters/memory"
	"github.com/aretw0/mpcgate/pkg/ports"
	contract "github.com/aretw0/mpcgate/pkg/ports/tests"
)

func TestMemoryLedger_Contract(t *testing.T) {
	contract.LedgerContractTest(t, memory.NewLedger())
}

func TestMemoryArchive_Contract(t *testing.T) {
	ports.RunCommitmentArchiveContract(t, memory.NewArchive())
}
