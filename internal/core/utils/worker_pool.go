package utils

import (
	"context"
	"sync"
)

type Task[T any] struct {
	Index int
	Input T
}

type CompletedTask[T any] struct {
	Index  int
	Result T
	Error  error
}

// Tasks returns a closed, buffered queue holding every input tagged with its
// position.
func Tasks[T any](inputs []T) chan Task[T] {
	queue := make(chan Task[T], len(inputs))
	for i, in := range inputs {
		queue <- Task[T]{Index: i, Input: in}
	}
	close(queue)
	return queue
}

// RunInPool drains queue with at most maxWorkers goroutines and closes completed
// once every task is done. Tasks finish in any order, Index identifies them.
func RunInPool[In any, Out any](ctx context.Context, worker func(context.Context, In) (Out, error), queue chan Task[In], completed chan CompletedTask[Out], maxWorkers int) {
	workers := max(1, min(len(queue), maxWorkers))

	go func() {
		wg := sync.WaitGroup{}
		wg.Add(workers)

		for i := 0; i < workers; i++ {
			go func() {
				defer wg.Done()

				for next := range queue {
					res, err := worker(ctx, next.Input)
					completed <- CompletedTask[Out]{Index: next.Index, Result: res, Error: err}
				}
			}()
		}

		wg.Wait()

		close(completed)
	}()
}

// Collect runs every input through worker and returns the completed tasks in
// input order.
func Collect[In any, Out any](ctx context.Context, inputs []In, worker func(context.Context, In) (Out, error), maxWorkers int) []CompletedTask[Out] {
	completed := make(chan CompletedTask[Out], len(inputs))
	RunInPool(ctx, worker, Tasks(inputs), completed, maxWorkers)

	results := make([]CompletedTask[Out], len(inputs))
	for task := range completed {
		results[task.Index] = task
	}
	return results
}
