package migrations

import (
	"strings"
	"testing"
)

func TestEmbeddedFilesOrdered(t *testing.T) {
	for _, dir := range []string{"postgres", "clickhouse"} {
		fsys := PostgresFS
		if dir == "clickhouse" {
			fsys = ClickhouseFS
		}
		files, err := sqlFiles(fsys, dir)
		if err != nil {
			t.Fatalf("%s: %v", dir, err)
		}
		if len(files) == 0 {
			t.Fatalf("%s: no migrations embedded", dir)
		}
		for i := 1; i < len(files); i++ {
			if files[i-1].name >= files[i].name {
				t.Errorf("%s: %s not before %s", dir, files[i-1].name, files[i].name)
			}
		}
	}
}

func TestClickhouseStatements(t *testing.T) {
	body := `-- header comment
CREATE TABLE a (x UInt8) ENGINE = Memory;

-- second
CREATE TABLE b (s String DEFAULT 'it''s') ENGINE = Memory;
`
	stmts, err := ClickhouseStatements(body)
	if err != nil {
		t.Fatalf("ClickhouseStatements: %v", err)
	}
	if len(stmts) != 2 {
		t.Fatalf("expected 2 statements, got %d: %q", len(stmts), stmts)
	}
	if !strings.HasPrefix(stmts[1], "CREATE TABLE b") {
		t.Errorf("unexpected second statement: %q", stmts[1])
	}
	for _, s := range stmts {
		if strings.Contains(s, "--") {
			t.Errorf("comment leaked into statement: %q", s)
		}
	}
}

func TestClickhouseStatements_RejectsQuotedSemicolon(t *testing.T) {
	if _, err := ClickhouseStatements(`SELECT 'a;b';`); err == nil {
		t.Error("expected error for semicolon inside string literal")
	}
}

func TestEmbeddedClickhouseMigrationsSplit(t *testing.T) {
	files, err := sqlFiles(ClickhouseFS, "clickhouse")
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range files {
		stmts, err := ClickhouseStatements(f.body)
		if err != nil {
			t.Errorf("%s: %v", f.name, err)
		}
		if len(stmts) == 0 {
			t.Errorf("%s: no statements", f.name)
		}
	}
}

func TestDatabaseFromDSN(t *testing.T) {
	tests := []struct {
		dsn     string
		want    string
		wantErr bool
	}{
		{"clickhouse://default:@localhost:9000/analytics", "analytics", false},
		{"clickhouse://localhost:9000", "", true},
		{"clickhouse://localhost:9000/", "", true},
	}
	for _, tt := range tests {
		got, err := databaseFromDSN(tt.dsn)
		if (err != nil) != tt.wantErr {
			t.Errorf("databaseFromDSN(%q) err = %v, wantErr %v", tt.dsn, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("databaseFromDSN(%q) = %q, want %q", tt.dsn, got, tt.want)
		}
	}
}
