package conversation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vkultra/mitski/internal/queue"
)

// RegisterHandlers binds the "process-update" task — enqueued by
// internal/ingress for every webhook update — to the engine's message
// pipeline. It runs on the "ai" queue since every message may reach the
// LLM adapter.
func RegisterHandlers(runtime *queue.Runtime, engine *Engine) {
	runtime.Register("process-update", func(ctx context.Context, raw json.RawMessage) error {
		var msg IncomingMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return fmt.Errorf("conversation: decode process-update args: %w", err)
		}
		return engine.HandleMessage(ctx, msg)
	})
}
