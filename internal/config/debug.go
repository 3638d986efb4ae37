package config

import "os"

func IsDebug() bool {
	return os.Getenv("CHORUS_DEBUG") == "1"
}
