package provider

import (
	"context"
	"strings"
	"time"
)

// DefaultSimulatedChunkInterval paces chunks of a simulated stream.
const DefaultSimulatedChunkInterval = 50 * time.Millisecond

// SimulateDeltas turns a fully generated completion into a paced delta
// sequence for providers without native incremental delivery. The content is
// split on single spaces and each token is re-emitted with its trailing
// space, one delta per interval. Consumers cannot distinguish the result
// from a native stream except by latency.
func SimulateDeltas(ctx context.Context, content string, interval time.Duration) <-chan Delta {
	ch := make(chan Delta)

	go func() {
		defer close(ch)

		for i, token := range strings.Split(content, " ") {
			if i > 0 && interval > 0 {
				select {
				case <-time.After(interval):
				case <-ctx.Done():
					return
				}
			}

			select {
			case ch <- Delta{Text: token + " "}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch
}
