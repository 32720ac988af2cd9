package enums

import "fmt"

// StoreDriver names the medium backing the snapshot KeyValueStore.
type StoreDriver string

const (
	StoreDriverMemory   StoreDriver = "memory"
	StoreDriverRedis    StoreDriver = "redis"
	StoreDriverSQLite   StoreDriver = "sqlite"
	StoreDriverPostgres StoreDriver = "postgres"
)

var validStoreDrivers = []StoreDriver{
	StoreDriverMemory,
	StoreDriverRedis,
	StoreDriverSQLite,
	StoreDriverPostgres,
}

// String implements fmt.Stringer.
func (d StoreDriver) String() string {
	return string(d)
}

// IsValid reports whether the value is a known StoreDriver.
func (d StoreDriver) IsValid() bool {
	for _, candidate := range validStoreDrivers {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseStoreDriver converts raw input into a StoreDriver.
func ParseStoreDriver(value string) (StoreDriver, error) {
	for _, candidate := range validStoreDrivers {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid store driver %q", value)
}
