package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDSN(t *testing.T) {
	dsn := DSN(Config{
		Host:        "ch",
		Port:        9000,
		Database:    "modelhub",
		User:        "default",
		Password:    "p@ss",
		DialTimeout: 5 * time.Second,
		MaxExecTime: 90 * time.Second,
	})
	assert.Equal(t, "clickhouse://default:p%40ss@ch:9000/modelhub?dial_timeout=5s&max_execution_time=90", dsn)
}

func TestDefaultsFollowProtocol(t *testing.T) {
	native := Config{Host: "ch"}.withDefaults()
	assert.Equal(t, 9000, native.Port)
	assert.Equal(t, "default", native.Database)

	overHTTP := Config{Host: "ch", UseHTTP: true}.withDefaults()
	assert.Equal(t, 8123, overHTTP.Port)
	assert.Contains(t, DSN(overHTTP), "http://")
	assert.Contains(t, DSN(overHTTP), "ch:8123/default")
}

func TestOpenRequiresHost(t *testing.T) {
	_, err := Open(context.Background(), Config{})
	assert.Error(t, err)
}
