package runtimecfg

import (
	"context"
	"testing"

	"gorm.io/datatypes"

	"github.com/igasovic/PKM-sub000/internal/data/repos/testutil"
	"github.com/igasovic/PKM-sub000/internal/pkg/dbctx"
)

func TestParseBool(t *testing.T) {
	cases := []struct {
		raw     string
		want    bool
		wantErr bool
	}{
		{"true", true, false},
		{"false", false, false},
		{`"true"`, true, false},
		{`"no"`, false, false},
		{"null", false, false},
		{"42", false, true},
		{"{", false, true},
	}
	for _, tc := range cases {
		got, err := parseBool(datatypes.JSON(tc.raw))
		if (err != nil) != tc.wantErr || got != tc.want {
			t.Fatalf("parseBool(%s) = %v, %v", tc.raw, got, err)
		}
	}
}

func TestRuntimeConfigRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo, err := NewRuntimeConfigRepo(db, testutil.ProdSchema, testutil.Logger(t))
	if err != nil {
		t.Fatalf("NewRuntimeConfigRepo: %v", err)
	}

	if err := repo.SetTestMode(dbc, true); err != nil {
		t.Fatalf("SetTestMode: %v", err)
	}
	if v, err := repo.GetTestMode(dbc); err != nil || !v {
		t.Fatalf("GetTestMode after set true: %v, %v", v, err)
	}
	if err := repo.SetTestMode(dbc, false); err != nil {
		t.Fatalf("SetTestMode: %v", err)
	}
	if v, err := repo.GetTestMode(dbc); err != nil || v {
		t.Fatalf("GetTestMode after set false: %v, %v", v, err)
	}

	if _, err := NewRuntimeConfigRepo(db, "bad-schema", testutil.Logger(t)); err == nil {
		t.Fatalf("expected identifier error")
	}
}
