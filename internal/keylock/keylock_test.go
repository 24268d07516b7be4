package keylock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLockSerializesSameKey(t *testing.T) {
	m := New()
	var (
		wg      sync.WaitGroup
		counter int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := m.Lock("bay-A")
			defer unlock()
			v := counter
			v++
			counter = v
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, m.Len(), "entries are dropped once released")
}

func TestLockAllOppositeOrdersDoNotDeadlock(t *testing.T) {
	m := New()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			m.LockAll("A", "B")()
		}()
		go func() {
			defer wg.Done()
			m.LockAll("B", "A", "B", "")()
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, m.Len())
}

func TestDifferentKeysIndependent(t *testing.T) {
	m := New()
	unlockA := m.Lock("A")
	done := make(chan struct{})
	go func() {
		m.Lock("B")()
		close(done)
	}()
	<-done
	unlockA()
}
