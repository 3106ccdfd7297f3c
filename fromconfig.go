package burrow

import (
	"fmt"

	"github.com/epalmerini/burrow/config"
	"github.com/epalmerini/burrow/dispatch"
	"github.com/epalmerini/burrow/journal"
	"github.com/epalmerini/burrow/transport"
	"github.com/epalmerini/burrow/transport/rabbitmq"
)

// FromConfig builds a Broker from a resolved configuration: transport
// selection (in-memory or a real AMQP connection), default RPC timeout and
// optional journaling. Extra options are applied after the config-derived
// ones and win on conflict.
func FromConfig(cfg config.Config, opts ...Option) (*Broker, error) {
	base := []Option{WithTimeout(cfg.Timeout)}

	switch cfg.Transport {
	case "", config.TransportMemory:
		// Default in-memory transport.
	case config.TransportAMQP:
		url, exchange := cfg.URL, cfg.Exchange
		base = append(base, WithTransport(func(router *dispatch.Router) (transport.Transport, error) {
			return rabbitmq.Dial(rabbitmq.Config{URL: url, Exchange: exchange}, router)
		}))
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}

	if cfg.JournalPath != "" {
		store, err := journal.NewStore(cfg.JournalPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open journal: %w", err)
		}
		base = append(base, withOwnedJournal(store))
	}

	return New(append(base, opts...)...)
}
