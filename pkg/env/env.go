package env

import "os"

// Get returns the value of the given environment variable or a fallback.
func Get(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// InstanceID names the running process for logs and cron lock ownership.
// DYNO is set by the platform; local runs report "local".
func InstanceID() string {
	return Get("DYNO", "local")
}
