package dispatcher

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrQueueFull = errors.New("dispatcher queue is full")
	ErrStopped   = errors.New("dispatcher is stopped")
)

// Task is a unit of work traveling from Dispatch to one of the workers.
type Task struct {
	Payload interface{}
}

// Workload is what dispatcher workers execute. Implementations must be safe
// for concurrent Do calls from multiple workers.
type Workload interface {
	Do(Task) error
}

type Dispatcher struct {
	tasks    chan Task
	stopChan chan struct{}
	stopOnce sync.Once
	gwait    sync.WaitGroup
}

// Start launches a pool of workers executing wl. The queue is bounded:
// once queueSize tasks are waiting, Dispatch refuses new ones rather
// than blocking the caller.
func Start(workers, queueSize int, wl Workload) *Dispatcher {
	d := &Dispatcher{
		tasks:    make(chan Task, queueSize),
		stopChan: make(chan struct{}),
	}

	for i := 0; i < workers; i++ {
		d.gwait.Add(1)
		wid := fmt.Sprintf("%T#%v", wl, i)
		go d.work(wid, wl)
	}

	return d
}

func (d *Dispatcher) work(wid string, wl Workload) {
	defer d.gwait.Done()
	logger.Infof("spawned dispatch worker %v", wid)
	for {
		select {
		case t := <-d.tasks:
			DispatcherQueueLength.Dec()
			DispatcherTasksActive.Inc()
			ll := logger.With("wid", wid)
			ll.Debugw("worker got a task")
			err := wl.Do(t)
			DispatcherTasksActive.Dec()
			if err != nil {
				DispatcherTasksFailed.WithLabelValues(wid).Inc()
				ll.Errorw("workload failed", "err", err)
			} else {
				DispatcherTasksDone.WithLabelValues(wid).Inc()
				ll.Debugw("worker done a task")
			}
		case <-d.stopChan:
			logger.Infof("stopped dispatch worker %v", wid)
			return
		}
	}
}

// Dispatch queues payload for detached execution. It never blocks: when the
// queue is at capacity or the dispatcher is stopped, an error is returned and
// no work is scheduled. No handle to the running task is returned.
func (d *Dispatcher) Dispatch(payload interface{}) error {
	select {
	case <-d.stopChan:
		return ErrStopped
	default:
	}
	select {
	case d.tasks <- Task{Payload: payload}:
		DispatcherQueueLength.Inc()
		DispatcherTasksQueued.Inc()
		return nil
	default:
		DispatcherTasksDropped.Inc()
		return ErrQueueFull
	}
}

// Stop signals the workers to quit after their current task and waits for them.
// Tasks still sitting in the queue are dropped.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopChan)
	})
	d.gwait.Wait()
	logger.Info("all dispatch workers are stopped")
}
