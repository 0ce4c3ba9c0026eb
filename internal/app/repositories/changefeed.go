package repositories

import (
	"sync"

	"github.com/yigit/coursereg/internal/app/models"
)

// changeFanout delivers change events to every subscribed handler.
type changeFanout struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]models.ChangeHandler
}

func newChangeFanout() *changeFanout {
	return &changeFanout{handlers: make(map[int]models.ChangeHandler)}
}

// add registers h and returns the func that removes it. Removing twice is a no-op.
func (f *changeFanout) add(h models.ChangeHandler) func() {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.handlers[id] = h
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.handlers, id)
			f.mu.Unlock()
		})
	}
}

func (f *changeFanout) len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.handlers)
}

// dispatch calls every handler outside the lock so handlers may unsubscribe.
func (f *changeFanout) dispatch(ev models.ChangeEvent) {
	f.mu.RLock()
	hs := make([]models.ChangeHandler, 0, len(f.handlers))
	for _, h := range f.handlers {
		hs = append(hs, h)
	}
	f.mu.RUnlock()

	for _, h := range hs {
		h(ev)
	}
}

// dispatchResync tells subscribers both tables may have changed, for example
// after a feed reconnect where notifications could have been missed.
func (f *changeFanout) dispatchResync() {
	f.dispatch(models.ChangeEvent{Table: models.TableCourses, Type: models.ChangeUpdate})
	f.dispatch(models.ChangeEvent{Table: models.TableRegistrations, Type: models.ChangeUpdate})
}
