//go:build sqlite_vec && cgo

package forensic

import (
	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

func init() {
	// Register the sqlite-vec extension with the mattn/go-sqlite3
	// driver so archived embedding vectors can be queried with the
	// vec_* SQL functions. vec.Auto() registers it as an
	// auto-loadable extension.
	vec.Auto()
}
