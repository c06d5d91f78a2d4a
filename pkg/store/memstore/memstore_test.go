package memstore

import (
	"testing"

	"github.com/wilhg/daybook/pkg/store"
	"github.com/wilhg/daybook/pkg/store/storetest"
)

func TestMemstore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return New() })
}
