// Package all registers every built-in storage backend with the storage
// factory. Import it for side effects:
//
//	import _ "userflow/internal/storage/all"
//
// Kinds made available: "postgres", "sqlite", "mssql", "mysql".
package all

import (
	_ "userflow/internal/storage/mssql"
	_ "userflow/internal/storage/mysql"
	_ "userflow/internal/storage/postgres"
	_ "userflow/internal/storage/sqlite"
)
