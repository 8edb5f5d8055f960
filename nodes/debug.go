package nodes

import (
	"github.com/timeflux-go/timeflux/internal/logging"
	"github.com/timeflux-go/timeflux/internal/node"
)

func init() {
	node.Default().Register("debug", "Display", newDisplay)
}

// Display logs its input's shape every cycle and leaves it untouched on
// its own "i" port, so a test can inspect what reached the end of a chain.
type Display struct {
	node.Base
	log *logging.Logger
}

func newDisplay(params map[string]interface{}) (node.Instance, error) {
	return &Display{log: logging.New(logging.DefaultConfig())}, nil
}

func (d *Display) Update() error {
	in := d.Port("i")
	if !in.Ready() {
		return nil
	}
	d.log.WithNodeID(d.ID()).WithField("rows", in.Data.Len()).Debug("received frame")
	return nil
}
