package bridge

import (
	"sync"
	"testing"
)

func TestKeyedMutex(t *testing.T) {
	var (
		km      keyedMutex
		wg      sync.WaitGroup
		counter int
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("g")
			counter++
			unlock()
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Errorf("counter = %d, want 50", counter)
	}
	if n := len(km.locks); n != 0 {
		t.Errorf("%d lock entries left after release, want 0", n)
	}
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	var km keyedMutex
	unlockA := km.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		km.Lock("b")()
		close(done)
	}()
	<-done
}
