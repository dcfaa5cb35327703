package output

import (
	"bytes"
	"reflect"
	"sync"
)

func reflectValue(v any) reflect.Value {
	return reflect.ValueOf(v)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}
