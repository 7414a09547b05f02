package config

import (
	"fmt"
	"os"
)

// WriteTemplate drops a starter config at path. It refuses to clobber an
// existing file unless overwrite is set.
func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(serverTemplate), 0o600)
}

const serverTemplate = `name = "parleyd"
chat_addr = ":9400"
admin_addr = ":9401"
cors_origins = ["http://localhost:3000"]

# Empty db_path keeps accounts and topics in memory.
db_path = "parley.db"

# Empty admin_token leaves the admin surface open.
admin_token = ""

handshake_timeout_ms = 1000
sweep_interval_ms = 5000
write_timeout_ms = 10000
store_timeout_ms = 5000
`
