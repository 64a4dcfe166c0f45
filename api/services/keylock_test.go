package services

import (
	"sync"
	"testing"
)

func TestKeyLockerSerializesSameKey(t *testing.T) {
	locker := NewKeyLocker()
	key := LearnerKey("u", "d")

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locker.Lock(key)
			defer unlock()
			v := counter
			v++
			counter = v
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Fatalf("counter = %d, want 50", counter)
	}
	if len(locker.locks) != 0 {
		t.Fatalf("%d locks left after release", len(locker.locks))
	}
}

func TestKeyLockerIndependentKeys(t *testing.T) {
	locker := NewKeyLocker()

	unlockA := locker.Lock(LearnerKey("u1", "d"))
	done := make(chan struct{})
	go func() {
		unlock := locker.Lock(LearnerKey("u2", "d"))
		unlock()
		close(done)
	}()
	<-done
	unlockA()
}

func TestLearnerKeyIsUnambiguous(t *testing.T) {
	if LearnerKey("ab", "c") == LearnerKey("a", "bc") {
		t.Fatal("keys collide")
	}
}
