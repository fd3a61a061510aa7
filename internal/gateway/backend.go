package gateway

import "fmt"

// Backend selects which implementation serves the Gateway contract.
type Backend string

const (
	BackendMock Backend = "mock"
	BackendLive Backend = "live"
)

type Config struct {
	Backend Backend
	Live    ClientConfig
	Mock    MockConfig
}

// New constructs the configured backend once; call sites only ever see the
// Gateway interface.
func New(cfg Config) (Gateway, error) {
	switch cfg.Backend {
	case BackendMock, "":
		return NewMock(cfg.Mock)
	case BackendLive:
		return NewClient(cfg.Live)
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}
