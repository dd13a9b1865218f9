// Package backends assembles a storage.Factory with every built-in backend.
package backends

import (
	"github.com/danmuck/ndnrevoke/internal/storage"
	"github.com/danmuck/ndnrevoke/internal/storage/leveldbstore"
	"github.com/danmuck/ndnrevoke/internal/storage/memory"
)

func NewFactory() *storage.Factory {
	f := storage.NewFactory()
	_ = f.Register(memory.BackendName, memory.Open)
	_ = f.Register(leveldbstore.BackendName, leveldbstore.Open)
	return f
}
