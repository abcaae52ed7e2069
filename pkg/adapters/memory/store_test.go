package memory_test

import (
	"testing"

	"github.com/aretw0/stagecraft/pkg/adapters/memory"
	"github.com/aretw0/stagecraft/pkg/ports"
)

func TestTaskStore_Contract(t *testing.T) {
	ports.RunTaskStoreContract(t, memory.NewTaskStore())
}
