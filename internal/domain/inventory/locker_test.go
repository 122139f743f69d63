package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/medledger/internal/platform/apperror"
)

func testKey(tier Tier) Key {
	return Key{InstituteID: uuid.New(), MedicineID: uuid.New(), Tier: tier}
}

func TestKeyLocker_TimeoutIsConcurrentModification(t *testing.T) {
	l := NewKeyLocker(30 * time.Millisecond)
	k := testKey(TierSub)

	release, err := l.Lock(context.Background(), k)
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	_, err = l.Lock(context.Background(), k)
	if !errors.Is(err, apperror.ErrConcurrentModification) {
		t.Fatalf("expected ErrConcurrentModification, got %v", err)
	}
}

func TestKeyLocker_UnrelatedKeysDoNotBlock(t *testing.T) {
	l := NewKeyLocker(50 * time.Millisecond)
	a, b := testKey(TierSub), testKey(TierSub)

	releaseA, err := l.Lock(context.Background(), a)
	if err != nil {
		t.Fatal(err)
	}
	defer releaseA()

	releaseB, err := l.Lock(context.Background(), b)
	if err != nil {
		t.Fatalf("unrelated key must not block: %v", err)
	}
	releaseB()
}

func TestKeyLocker_WaitsForRelease(t *testing.T) {
	l := NewKeyLocker(2 * time.Second)
	k := testKey(TierMain)

	release, err := l.Lock(context.Background(), k)
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		time.Sleep(20 * time.Millisecond)
		release()
	}()

	release2, err := l.Lock(context.Background(), k)
	if err != nil {
		t.Fatalf("expected to acquire after release: %v", err)
	}
	release2()
}

func TestKeyLocker_DuplicateKeysAndIdempotentRelease(t *testing.T) {
	l := NewKeyLocker(50 * time.Millisecond)
	k := testKey(TierSub)

	release, err := l.Lock(context.Background(), k, k, k)
	if err != nil {
		t.Fatalf("duplicate keys must not self-deadlock: %v", err)
	}
	release()
	release()

	if n := l.size(); n != 0 {
		t.Errorf("expected no tracked keys after release, got %d", n)
	}
}

func TestKeyLocker_PartialFailureReleasesHeldKeys(t *testing.T) {
	l := NewKeyLocker(30 * time.Millisecond)
	a, b := testKey(TierSub), testKey(TierSub)

	releaseB, err := l.Lock(context.Background(), b)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.Lock(context.Background(), a, b); err == nil {
		t.Fatal("expected timeout while b is held")
	}
	releaseB()

	release, err := l.Lock(context.Background(), a)
	if err != nil {
		t.Fatalf("a must be free after the failed batch: %v", err)
	}
	release()
	if n := l.size(); n != 0 {
		t.Errorf("expected no tracked keys, got %d", n)
	}
}

func TestKeyLocker_OppositeOrderNoDeadlock(t *testing.T) {
	l := NewKeyLocker(2 * time.Second)
	a, b := testKey(TierSub), testKey(TierMain)

	var wg sync.WaitGroup
	errs := make(chan error, 100)
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			release, err := l.Lock(context.Background(), a, b)
			if err != nil {
				errs <- err
				return
			}
			release()
		}()
		go func() {
			defer wg.Done()
			release, err := l.Lock(context.Background(), b, a)
			if err != nil {
				errs <- err
				return
			}
			release()
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("unexpected lock error: %v", err)
	}
}

func TestKeyLocker_CancelledContext(t *testing.T) {
	l := NewKeyLocker(time.Second)
	k := testKey(TierSub)
	release, _ := l.Lock(context.Background(), k)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := l.Lock(ctx, k)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
