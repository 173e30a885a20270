package sea

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// MinGracePeriod is the floor of the shutdown grace period in seconds.
// Values configured below it (or left unset) are raised to this floor.
const MinGracePeriod = 5

// workerDrainMargin is how many seconds earlier a worker finishes its own
// graceful stop compared to the master's force-kill deadline.
const workerDrainMargin = 3

// Config is the runtime configuration of the multi-process server.
// Parsing it from files or the environment is up to the application.
type Config struct {
	// AppName is the instance identifier used for logging
	// and the service socket name.
	AppName string `json:"app_name" yaml:"app_name"`
	// Workers is the number of worker processes to spawn.
	Workers int `json:"workers" yaml:"workers"`
	// Threads bounds the number of stream workers of each
	// worker's gRPC server; 0 leaves the server default.
	Threads int `json:"threads" yaml:"threads"`
	// Host and Port form the shared bind address. Port 0 asks
	// the OS for an ephemeral port at reservation time.
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
	// GracePeriod is the shutdown grace period in seconds,
	// floor-clamped to MinGracePeriod.
	GracePeriod int `json:"grace_period" yaml:"grace_period"`
	// PrometheusScrape enables the metrics endpoint on the master.
	PrometheusScrape bool `json:"prometheus_scrape" yaml:"prometheus_scrape"`
	PrometheusPort   int  `json:"prometheus_port" yaml:"prometheus_port"`
	// ServiceSocket enables the unix control socket on the master.
	ServiceSocket bool `json:"service_socket" yaml:"service_socket"`
}

// Validate - Validate config required fields
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Workers, validation.Required, validation.Min(1)),
		validation.Field(&c.Threads, validation.Min(0)),
		validation.Field(&c.Port, validation.Min(0), validation.Max(65535)),
		validation.Field(&c.GracePeriod, validation.Min(0)),
		validation.Field(&c.PrometheusPort, validation.Min(0), validation.Max(65535)),
	)
}

// Grace returns the effective grace period: the configured value,
// never less than MinGracePeriod.
func (c Config) Grace() time.Duration {
	grace := MinGracePeriod
	if c.GracePeriod > MinGracePeriod {
		grace = c.GracePeriod
	}
	return time.Duration(grace) * time.Second
}

// Drain returns the deadline of a worker's own graceful stop. It is
// workerDrainMargin seconds shorter than Grace so that a worker has a
// chance to finish before the master escalates to a kill.
func (c Config) Drain() time.Duration {
	return c.Grace() - workerDrainMargin*time.Second
}

// BindAddr returns the shared tcp address of the worker processes.
func (c Config) BindAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SocketName returns the name of the master's service socket.
func (c Config) SocketName() string {
	return "/tmp/_sea_" + c.AppName + ".socket"
}
