package compose

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// resolveImmediateParts starts a goroutine for every Immediate part shared in the container
// boundary. The goroutines race any caller asking for the same part; the claim makes sure only one
// construction happens.
func (c *Container) resolveImmediateParts() {
	for _, p := range c.catalog.parts {
		if !p.immediate || !p.shared || p.boundary != ContainerBoundary {
			continue
		}
		c.immediate.Add(1)
		go func(p *PartDescriptor) {
			defer c.immediate.Done()
			defer func() {
				// The original call has returned, so the best we can do is log. The part stays
				// unactivated and the next request for it will try again.
				if r := recover(); r != nil {
					c.logger.Warn("panic activating immediate part",
						zap.String("part", string(p.id)),
						zap.String("panic", fmt.Sprint(r)))
				}
			}()
			if _, err := c.root.Activate(context.Background(), p); err != nil {
				c.logger.Warn("failed to activate immediate part",
					zap.String("part", string(p.id)),
					zap.Error(err))
			}
		}(p)
	}
}
