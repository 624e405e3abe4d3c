package resources_test

import (
	"errors"
	"testing"

	"forge/internal/resources"
)

func TestReleaseRunsGuardsInReverseOrder(t *testing.T) {
	stack := resources.New(nil)
	var order []string
	for _, name := range []string{"first", "second", "third"} {
		name := name
		stack.Push(name, func() error {
			order = append(order, name)
			return nil
		})
	}

	stack.Release()

	want := []string{"third", "second", "first"}
	if len(order) != len(want) {
		t.Fatalf("expected %d cleanups, got %v", len(want), order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("unexpected unwind order: %v", order)
		}
	}
	if stack.Len() != 0 {
		t.Fatalf("expected empty stack after release, got %d", stack.Len())
	}
}

func TestReleaseRunsOnceAndToleratesFailures(t *testing.T) {
	stack := resources.New(nil)
	ran := 0
	stack.Push("ok", func() error {
		ran++
		return nil
	})
	stack.Push("broken", func() error {
		return errors.New("cleanup exploded")
	})

	stack.Release()
	stack.Release()

	if ran != 1 {
		t.Fatalf("expected surviving guard to run exactly once, ran %d times", ran)
	}
}

func TestCancelWithdrawsGuard(t *testing.T) {
	stack := resources.New(nil)
	ran := false
	guard := stack.Push("artifact removal", func() error {
		ran = true
		return nil
	})
	guard.Cancel()

	stack.Release()

	if ran {
		t.Fatal("canceled guard must not run")
	}
}

func TestCloseRunsEarlyAndSkipsUnwind(t *testing.T) {
	stack := resources.New(nil)
	ran := 0
	guard := stack.Push("marker restore", func() error {
		ran++
		return nil
	})

	if err := guard.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if stack.Len() != 0 {
		t.Fatalf("expected closed guard excluded from Len, got %d", stack.Len())
	}

	stack.Release()

	if ran != 1 {
		t.Fatalf("guard ran %d times, want 1", ran)
	}
}
