package warikan_test

import (
	"testing"

	"github.com/susu3304/warikanbot/internal/warikan"
	"github.com/susu3304/warikanbot/internal/warikan/storetest"
)

func TestMemoryStore(t *testing.T) {
	storetest.Run(t, func(*testing.T) warikan.Store { return warikan.NewMemoryStore() })
}
