package listener

import (
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/fabric/types"
)

// Deps carries what the built-in listeners may need.
type Deps struct {
	// JetStream is required by "template" and "consumer".
	JetStream jetstream.JetStream

	// WorkerID is the container id, required by "consumer".
	WorkerID string

	Template TemplateConfig
	Consumer ConsumerConfig

	// Handler processes messages for "consumer" (optional).
	Handler MessageHandler

	Logger types.Logger
}

// Types lists the built-in listener type tags.
func Types() []string {
	return []string{TypeConsumer, TypeLog, TypeTemplate}
}

// New constructs a built-in listener by type tag.
//
// Returns:
//   - error: types.ErrUnknownListener for an unknown type, types.ErrInvalidConfig
//     when deps lack what the listener requires
func New(typ string, deps Deps) (types.PartitionListener, error) {
	switch typ {
	case TypeLog:
		return NewLog(deps.Logger), nil
	case TypeTemplate:
		l, err := NewTemplate(deps.JetStream, deps.Template, deps.Logger)
		if err != nil {
			return nil, err
		}

		return l, nil
	case TypeConsumer:
		l, err := NewConsumer(deps.JetStream, deps.WorkerID, deps.Consumer, deps.Handler, deps.Logger)
		if err != nil {
			return nil, err
		}

		return l, nil
	default:
		return nil, fmt.Errorf("%w: %q (known: %v)", types.ErrUnknownListener, typ, Types())
	}
}
