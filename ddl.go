package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ArtifactKind names one of the SQL files produced from a translation.
type ArtifactKind string

const (
	ArtifactSchemaCreate       ArtifactKind = "schema-create"
	ArtifactTableCreate        ArtifactKind = "table-create"
	ArtifactPrimaryKeys        ArtifactKind = "pk-apply"
	ArtifactConstraintsIndexes ArtifactKind = "constraints-indexes"
	ArtifactPostSQL            ArtifactKind = "post-sql"
)

// Artifact is one rendered SQL script.
type Artifact struct {
	Kind ArtifactKind
	SQL  string
	// Path is set once the artifact has been written to disk.
	Path string
}

// FileName is the on-disk name; the numeric prefix is the apply order.
func (a Artifact) FileName() string {
	for i, k := range artifactOrder {
		if k == a.Kind {
			return fmt.Sprintf("%02d-%s.sql", i+1, a.Kind)
		}
	}
	return string(a.Kind) + ".sql"
}

var artifactOrder = []ArtifactKind{
	ArtifactSchemaCreate,
	ArtifactTableCreate,
	ArtifactPrimaryKeys,
	ArtifactConstraintsIndexes,
	ArtifactPostSQL,
}

// Artifacts holds the five scripts rendered from a translation.
type Artifacts struct {
	byKind map[ArtifactKind]*Artifact
}

// Get returns the artifact of the given kind.
func (a *Artifacts) Get(kind ArtifactKind) *Artifact {
	return a.byKind[kind]
}

// Ordered returns the artifacts in apply order.
func (a *Artifacts) Ordered() []*Artifact {
	out := make([]*Artifact, 0, len(artifactOrder))
	for _, k := range artifactOrder {
		out = append(out, a.byKind[k])
	}
	return out
}

// renderArtifacts renders every artifact for the given tables.
func renderArtifacts(schema, owner string, tables []TableSchema) *Artifacts {
	sqlByKind := map[ArtifactKind]string{
		ArtifactSchemaCreate:       renderSchemaCreate(schema, owner),
		ArtifactTableCreate:        renderTableCreate(schema, tables),
		ArtifactPrimaryKeys:        renderStatements(tables, func(t TableSchema) []string { return t.PrimaryKey }),
		ArtifactConstraintsIndexes: renderConstraintsIndexes(tables),
		ArtifactPostSQL:            renderStatements(tables, func(t TableSchema) []string { return t.PostSQL }),
	}
	a := &Artifacts{byKind: make(map[ArtifactKind]*Artifact, len(sqlByKind))}
	for kind, sql := range sqlByKind {
		a.byKind[kind] = &Artifact{Kind: kind, SQL: sql}
	}
	return a
}

func renderSchemaCreate(schema, owner string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "DROP SCHEMA IF EXISTS %s CASCADE;\n", pgIdent(schema))
	if owner != "" {
		fmt.Fprintf(&b, "CREATE SCHEMA %s AUTHORIZATION %s;\n", pgIdent(schema), pgIdent(owner))
	} else {
		fmt.Fprintf(&b, "CREATE SCHEMA %s;\n", pgIdent(schema))
	}
	return b.String()
}

// renderTableCreate drops and recreates every table, followed by its comments.
func renderTableCreate(schema string, tables []TableSchema) string {
	var b strings.Builder
	for i, t := range tables {
		if i > 0 {
			b.WriteByte('\n')
		}
		name := pgQualified(schema, t.Name)
		fmt.Fprintf(&b, "DROP TABLE IF EXISTS %s CASCADE;\n", name)
		fmt.Fprintf(&b, "CREATE TABLE %s (\n", name)
		for j, col := range t.Columns {
			b.WriteString("\t" + col)
			if j < len(t.Columns)-1 {
				b.WriteByte(',')
			}
			b.WriteByte('\n')
		}
		b.WriteString(");\n")
		for _, c := range t.Comments {
			b.WriteString(c + "\n")
		}
	}
	return b.String()
}

// renderConstraintsIndexes emits unique/check constraints and indexes before
// any foreign key, so a foreign key may reference a unique constraint of a
// table that appears later in the dump.
func renderConstraintsIndexes(tables []TableSchema) string {
	var b strings.Builder
	b.WriteString(renderStatements(tables, func(t TableSchema) []string { return t.Constraints }))
	b.WriteString(renderStatements(tables, func(t TableSchema) []string { return t.Indexes }))
	b.WriteString(renderStatements(tables, func(t TableSchema) []string { return t.ForeignKeys }))
	return b.String()
}

func renderStatements(tables []TableSchema, pick func(TableSchema) []string) string {
	var b strings.Builder
	for _, t := range tables {
		for _, stmt := range pick(t) {
			b.WriteString(stmt + ";\n")
		}
	}
	return b.String()
}

// writeArtifacts writes every artifact into dir and records its path.
func writeArtifacts(dir string, a *Artifacts) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	for _, art := range a.Ordered() {
		path := filepath.Join(dir, art.FileName())
		if err := os.WriteFile(path, []byte(art.SQL), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", art.Kind, err)
		}
		art.Path = path
	}
	return nil
}
