// Package all wires every built-in executor backend into the storage
// registry. It exists purely for side effects: a blank import of this package
// runs the init functions of each backend, registering the "postgres",
// "mysql", "mssql", and "sqlite" kinds.
//
// Binaries that only need a subset can import the individual backend
// packages instead.
package all

import (
	_ "ddlforge/internal/storage/mssql"
	_ "ddlforge/internal/storage/mysql"
	_ "ddlforge/internal/storage/postgres"
	_ "ddlforge/internal/storage/sqlite"
)
