package main

import (
	"strings"
	"testing"
)

func TestCollationReport_Empty(t *testing.T) {
	if w := (collationReport{}).warnings(); len(w) != 0 {
		t.Errorf("expected no warnings, got %v", w)
	}
}

func TestCollationReport_CIWarnings(t *testing.T) {
	r := collationReport{}
	r.add("utf8mb4_general_ci", "UTF8MB4_GENERAL_CI")
	r.add("utf8mb4_bin")

	warnings := r.warnings()
	if len(warnings) != 2 {
		t.Fatalf("expected 2 warnings, got %d: %v", len(warnings), warnings)
	}
	if warnings[0] != "source collations stripped: utf8mb4_bin, utf8mb4_general_ci" {
		t.Errorf("summary = %q", warnings[0])
	}
	if !strings.Contains(warnings[1], "2 column(s) use utf8mb4_general_ci") {
		t.Errorf("ci warning = %q", warnings[1])
	}
}

func TestStripCharsetCollation(t *testing.T) {
	res, err := translateColumn("app", "users",
		"`name` varchar(64) CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci NOT NULL DEFAULT ''", false)
	if err != nil {
		t.Fatalf("translateColumn() error: %v", err)
	}
	if res.Definition != `"name" character varying(64) NOT NULL DEFAULT ''` {
		t.Errorf("Definition = %q", res.Definition)
	}
	if len(res.Collations) != 1 || res.Collations[0] != "utf8mb4_unicode_ci" {
		t.Errorf("Collations = %v", res.Collations)
	}
}

func TestSortedKeys(t *testing.T) {
	got := sortedKeys(map[string]bool{"b": true, "a": true, "c": false})
	if strings.Join(got, ",") != "a,b,c" {
		t.Errorf("sortedKeys() = %v", got)
	}
}
