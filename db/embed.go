// Package db embeds the schema migrations and the default product seed.
package db

import (
	"embed"
	"io/fs"
	"sort"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Products is the default catalog used by seed-db when no file is given.
//
//go:embed seed/products.json
var Products []byte

// Migration is one schema file.
type Migration struct {
	Name string
	SQL  string
}

// Migrations returns the embedded migrations ordered by file name.
func Migrations() ([]Migration, error) {
	names, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	out := make([]Migration, 0, len(names))
	for _, name := range names {
		data, err := migrations.ReadFile(name)
		if err != nil {
			return nil, err
		}
		out = append(out, Migration{Name: name, SQL: string(data)})
	}
	return out, nil
}
