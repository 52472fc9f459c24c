// Package emit delivers block events to the configured sink: stdout,
// RabbitMQ, Kafka or an XLSX file.
package emit

import (
	"context"
	"fmt"

	"github.com/queuebridge/sqlblocks/pkg/events"
)

// Emitter delivers events to one sink.
type Emitter interface {
	// Connect establishes the sink connection. Idempotent for stdout/xlsx.
	Connect(ctx context.Context) error

	// Emit delivers one event. Delivery order follows call order.
	Emit(ctx context.Context, ev *events.Event) error

	// Ping checks sink availability.
	Ping(ctx context.Context) error

	// Close flushes and releases the sink.
	Close() error

	// Type returns the sink type (stdout, rabbitmq, kafka, xlsx).
	Type() string
}

// Config holds sink connection parameters.
type Config struct {
	Type string `yaml:"type"` // stdout, rabbitmq, kafka, xlsx

	// RabbitMQ
	Host       string `yaml:"host,omitempty"`
	Port       int    `yaml:"port,omitempty"`
	User       string `yaml:"user,omitempty"`
	Password   string `yaml:"password,omitempty"`
	Queue      string `yaml:"queue,omitempty"`
	VHost      string `yaml:"vhost,omitempty"`
	UseTLS     bool   `yaml:"use_tls,omitempty"`
	Durable    bool   `yaml:"durable,omitempty"`
	AutoDelete bool   `yaml:"auto_delete,omitempty"`

	// Kafka
	Brokers []string `yaml:"brokers,omitempty"`
	Topic   string   `yaml:"topic,omitempty"`

	// XLSX
	Path string `yaml:"path,omitempty"`
}

// New builds an emitter from config.
func New(cfg Config) (Emitter, error) {
	switch cfg.Type {
	case "", "stdout":
		return NewStdout(), nil
	case "rabbitmq":
		return NewRabbitMQ(cfg)
	case "kafka":
		return NewKafka(cfg)
	case "xlsx":
		return NewXLSX(cfg)
	default:
		return nil, fmt.Errorf("unsupported emitter type: %s (supported: stdout, rabbitmq, kafka, xlsx)", cfg.Type)
	}
}
