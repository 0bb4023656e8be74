// File: spi/keytable.go
// Author: momentics <momentics@gmail.com>
//
// Per-channel registration table: one key per selector.

package spi

// keyTable is a sparse, growable array of keys. Removed entries leave holes
// that later additions reuse. Guarded by SelectableChannel.keyLock.
type keyTable struct {
	keys  []*SelectionKey
	count int
}

func (t *keyTable) find(core *SelectorCore) *SelectionKey {
	for _, k := range t.keys {
		if k != nil && k.core == core {
			return k
		}
	}
	return nil
}

func (t *keyTable) add(k *SelectionKey) {
	for i, slot := range t.keys {
		if slot == nil {
			t.keys[i] = k
			t.count++
			return
		}
	}
	if t.keys == nil {
		t.keys = make([]*SelectionKey, 0, 3)
	} else if len(t.keys) == cap(t.keys) {
		grown := make([]*SelectionKey, len(t.keys), 2*cap(t.keys))
		copy(grown, t.keys)
		t.keys = grown
	}
	t.keys = append(t.keys, k)
	t.count++
}

func (t *keyTable) remove(k *SelectionKey) bool {
	for i, slot := range t.keys {
		if slot == k {
			t.keys[i] = nil
			t.count--
			return true
		}
	}
	return false
}

// snapshot copies the live entries in table order.
func (t *keyTable) snapshot() []*SelectionKey {
	out := make([]*SelectionKey, 0, t.count)
	for _, k := range t.keys {
		if k != nil {
			out = append(out, k)
		}
	}
	return out
}

func (t *keyTable) haveValid() bool {
	for _, k := range t.keys {
		if k != nil && k.IsValid() {
			return true
		}
	}
	return false
}

func (t *keyTable) len() int {
	return t.count
}
