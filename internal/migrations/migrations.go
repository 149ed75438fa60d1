// Package migrations embeds the database schema applied by cmd/migrate.
package migrations

import (
	"embed"
	"io/fs"
	"sort"
)

//go:embed sql/*.sql
var files embed.FS

// Migration is one ordered schema file.
type Migration struct {
	Name string
	SQL  string
}

// All returns the embedded migrations sorted by file name.
func All() ([]Migration, error) {
	entries, err := fs.ReadDir(files, "sql")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	out := make([]Migration, 0, len(names))
	for _, name := range names {
		raw, err := fs.ReadFile(files, "sql/"+name)
		if err != nil {
			return nil, err
		}
		out = append(out, Migration{Name: name, SQL: string(raw)})
	}
	return out, nil
}
