package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func sampleTables() []TableSchema {
	return []TableSchema{
		{
			Name:        "users",
			Columns:     []string{`"id" serial`, `"email" character varying(255) NOT NULL`},
			Comments:    []string{`COMMENT ON COLUMN "app"."users"."email" IS 'login';`},
			PrimaryKey:  []string{`ALTER TABLE "app"."users" ADD CONSTRAINT "users_pkey" PRIMARY KEY ("id")`},
			Constraints: []string{`ALTER TABLE "app"."users" ADD CONSTRAINT "users_ux_email" UNIQUE ("email")`},
			PostSQL:     []string{`SELECT 1`},
		},
		{
			Name:        "orders",
			Columns:     []string{`"id" bigint NOT NULL`, `"user_id" integer`},
			PrimaryKey:  []string{`ALTER TABLE "app"."orders" ADD CONSTRAINT "orders_pkey" PRIMARY KEY ("id")`},
			Indexes:     []string{`CREATE INDEX "orders_ix_user" ON "app"."orders" ("user_id")`},
			ForeignKeys: []string{`ALTER TABLE "app"."orders" ADD CONSTRAINT "fk_user" FOREIGN KEY ("user_id") REFERENCES "app"."users" ("id") ON UPDATE NO ACTION ON DELETE NO ACTION`},
		},
	}
}

func TestRenderSchemaCreate(t *testing.T) {
	got := renderSchemaCreate("app", "owner")
	want := "DROP SCHEMA IF EXISTS \"app\" CASCADE;\nCREATE SCHEMA \"app\" AUTHORIZATION \"owner\";\n"
	if got != want {
		t.Errorf("renderSchemaCreate() = %q, want %q", got, want)
	}
	if got := renderSchemaCreate("app", ""); !strings.HasSuffix(got, "CREATE SCHEMA \"app\";\n") {
		t.Errorf("renderSchemaCreate() without owner = %q", got)
	}
}

func TestRenderTableCreate(t *testing.T) {
	got := renderTableCreate("app", sampleTables()[:1])
	want := "DROP TABLE IF EXISTS \"app\".\"users\" CASCADE;\n" +
		"CREATE TABLE \"app\".\"users\" (\n" +
		"\t\"id\" serial,\n" +
		"\t\"email\" character varying(255) NOT NULL\n" +
		");\n" +
		"COMMENT ON COLUMN \"app\".\"users\".\"email\" IS 'login';\n"
	if got != want {
		t.Errorf("renderTableCreate() =\n%s\nwant\n%s", got, want)
	}
}

func TestRenderConstraintsIndexes_ForeignKeysLast(t *testing.T) {
	got := renderConstraintsIndexes(sampleTables())
	lines := strings.Split(strings.TrimSuffix(got, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 statements, got %d:\n%s", len(lines), got)
	}
	if !strings.Contains(lines[0], "UNIQUE") || !strings.HasPrefix(lines[1], "CREATE INDEX") || !strings.Contains(lines[2], "FOREIGN KEY") {
		t.Errorf("unexpected order:\n%s", got)
	}
	for _, l := range lines {
		if !strings.HasSuffix(l, ";") {
			t.Errorf("statement not terminated: %q", l)
		}
	}
}

func TestRenderArtifacts(t *testing.T) {
	a := renderArtifacts("app", "", sampleTables())
	ordered := a.Ordered()
	if len(ordered) != 5 {
		t.Fatalf("expected 5 artifacts, got %d", len(ordered))
	}
	wantKinds := []ArtifactKind{ArtifactSchemaCreate, ArtifactTableCreate, ArtifactPrimaryKeys, ArtifactConstraintsIndexes, ArtifactPostSQL}
	for i, k := range wantKinds {
		if ordered[i].Kind != k {
			t.Errorf("artifact %d = %s, want %s", i, ordered[i].Kind, k)
		}
	}
	if got := a.Get(ArtifactPostSQL).SQL; got != "SELECT 1;\n" {
		t.Errorf("post-sql = %q", got)
	}
	if got := a.Get(ArtifactPrimaryKeys).SQL; strings.Count(got, ";\n") != 2 {
		t.Errorf("pk-apply = %q", got)
	}
}

func TestWriteArtifacts(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	a := renderArtifacts("app", "", sampleTables())
	if err := writeArtifacts(dir, a); err != nil {
		t.Fatalf("writeArtifacts() error: %v", err)
	}
	art := a.Get(ArtifactTableCreate)
	if filepath.Base(art.Path) != "02-table-create.sql" {
		t.Errorf("Path = %q", art.Path)
	}
	data, err := os.ReadFile(art.Path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != art.SQL {
		t.Error("written file does not match rendered SQL")
	}
}
