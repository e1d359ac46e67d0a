package logging

import (
	"time"
)

// Common field constructors
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

func Uint64(key string, value uint64) Field {
	return Field{Key: key, Value: value}
}

func Float64(key string, value float64) Field {
	return Field{Key: key, Value: value}
}

func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Field helpers for names used throughout the collector
func Component(name string) Field {
	return String("component", name)
}

func Instance(label string) Field {
	return String("instance", label)
}

func Host(host string) Field {
	return String("host", host)
}

func Port(port uint16) Field {
	return Field{Key: "port", Value: port}
}

func Role(role string) Field {
	return String("role", role)
}

func Operation(op string) Field {
	return String("operation", op)
}
