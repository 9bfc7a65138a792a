package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "target":
		return targetTemplate, nil
	case "service":
		return serviceTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const targetTemplate = `name = "stub"
thread_id = 1
register_bytes = 128
features = ["PacketSize=4000", "swbreak+", "hwbreak+", "multiprocess-"]
`

const serviceTemplate = `listen = "127.0.0.1:2331"
admin_addr = "127.0.0.1:9331"
cors_origins = ["http://localhost:3000"]
admin_token = ""
max_packet_size = 16384
read_buffer_size = 4096
target = "target.toml"
log_level = "info"
`
