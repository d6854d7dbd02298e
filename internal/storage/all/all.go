// Package all links every storage backend into a binary.
//
// Import for side effects only:
//
//	import _ "recruitingetl/internal/storage/all"
package all

import (
	_ "recruitingetl/internal/storage/mssql"
	_ "recruitingetl/internal/storage/postgres"
	_ "recruitingetl/internal/storage/sqlite"
)
