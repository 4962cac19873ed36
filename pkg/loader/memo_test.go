package loader

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMemoLoadsOnce(t *testing.T) {
	m := NewMemo()
	var loads atomic.Int32
	load := func() ([]byte, error) {
		loads.Add(1)
		time.Sleep(20 * time.Millisecond)
		return []byte("content"), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := m.Do("k", load)
			if err != nil || string(got) != "content" {
				t.Errorf("Do() = %q, %v", got, err)
			}
		}()
	}
	wg.Wait()

	if _, err := m.Do("k", load); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if n := loads.Load(); n != 1 {
		t.Errorf("load ran %d times, want 1", n)
	}

	m.Forget("k")
	m.Do("k", load)
	if n := loads.Load(); n != 2 {
		t.Errorf("load ran %d times after Forget, want 2", n)
	}
}

func TestMemoDoesNotCacheErrors(t *testing.T) {
	m := NewMemo()
	calls := 0
	failing := func() ([]byte, error) {
		calls++
		return nil, errors.New("boom")
	}
	if _, err := m.Do("k", failing); err == nil {
		t.Fatal("Do() should fail")
	}
	got, err := m.Do("k", func() ([]byte, error) { return []byte("ok"), nil })
	if err != nil || string(got) != "ok" {
		t.Errorf("Do() = %q, %v, want ok", got, err)
	}
	if calls != 1 {
		t.Errorf("failing load ran %d times, want 1", calls)
	}
}
