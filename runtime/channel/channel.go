package channel

import (
	"context"
	"errors"

	"github.com/botui/chatflow/runtime"
)

// DefaultKey names the shared conversation configuration.
const DefaultKey = "chat-config"

var ErrClosed = errors.New("channel closed")

// Channel is the shared state between the evaluating side and the renderer.
// Every value is a full configuration snapshot, message list included.
type Channel interface {
	Key() string
	// Get returns the current snapshot; ok is false until one has been set.
	Get(ctx context.Context) (conf runtime.ChatConfig, ok bool, err error)
	Set(ctx context.Context, conf runtime.ChatConfig) error
	// Update replaces the snapshot with fn's result atomically and returns
	// the stored value. fn gets a zero config when nothing has been set.
	Update(ctx context.Context, fn func(runtime.ChatConfig) runtime.ChatConfig) (runtime.ChatConfig, error)
	// Subscribe delivers every snapshot set after the call. A slow subscriber
	// only loses intermediate snapshots, never the latest one. cancel closes
	// the returned channel.
	Subscribe() (updates <-chan runtime.ChatConfig, cancel func())
}

// Store persists snapshots so a conversation survives a restart.
type Store interface {
	Load(ctx context.Context, key string) (conf runtime.ChatConfig, ok bool, err error)
	Save(ctx context.Context, key string, conf runtime.ChatConfig) error
}
