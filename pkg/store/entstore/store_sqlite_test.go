package entstore

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/wilhg/daybook/pkg/store"
	"github.com/wilhg/daybook/pkg/store/storetest"
)

func openSQLite(t *testing.T) store.Store {
	t.Helper()
	ctx := context.Background()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("sqlite:file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)&_fk=1", name)
	st, err := Open(ctx, dsn)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })
	if err := st.Migrate(ctx); err != nil {
		t.Fatal(err)
	}
	return st
}

func TestSQLiteStore(t *testing.T) {
	storetest.Run(t, openSQLite)
}

func TestMigrateIsIdempotent(t *testing.T) {
	st := openSQLite(t).(*Store)
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestOpen_RejectsUnknownDSN(t *testing.T) {
	if _, err := Open(context.Background(), "mysql://localhost/db"); err == nil {
		t.Fatal("expected unsupported scheme error")
	}
	if _, err := Open(context.Background(), ""); err == nil {
		t.Fatal("expected empty dsn error")
	}
}
