package services

import (
	"context"
	"slices"
	"sync"

	"github.com/yigit/coursereg/internal/app/models"
	"github.com/yigit/coursereg/internal/pkg/apperrors"
)

// fakeStore is an in-memory RegistrationStore with failure injection and call
// counters.
type fakeStore struct {
	mu            sync.Mutex
	courses       []models.Course
	registrations []models.Registration
	handlers      map[int]models.ChangeHandler
	nextHandler   int

	listCoursesErr error
	listRegsErr    error
	createErr      error
	updateErr      error
	deleteErr      error
	subscribeErr   error

	// beforeListReturn runs after ListCourses copied its result and before it
	// returns, without the store lock held.
	beforeListReturn func()
	// createGate, when set, blocks CreateRegistration until it is closed.
	createGate chan struct{}
	// createStarted receives once per CreateRegistration call when set.
	createStarted chan struct{}

	listCoursesCalls int
	listRegsCalls    int
	createCalls      int
	updateCalls      int
	deleteCalls      int
}

func newFakeStore(courses ...models.Course) *fakeStore {
	return &fakeStore{
		courses:  slices.Clone(courses),
		handlers: make(map[int]models.ChangeHandler),
	}
}

func testCatalog() []models.Course {
	return []models.Course{
		{ID: "CS101", Name: "Introduction to Programming", Professor: "Prof. Kim", Credits: 3, Time: "Mon/Wed 10:00-11:30", Capacity: 50, Enrolled: 35},
		{ID: "CS201", Name: "Data Structures", Professor: "Prof. Lee", Credits: 3, Time: "Tue/Thu 13:00-14:30", Capacity: 40, Enrolled: 28},
		{ID: "CS301", Name: "Databases", Professor: "Prof. Park", Credits: 3, Time: "Mon/Wed 14:00-15:30", Capacity: 35, Enrolled: 35},
		{ID: "MATH101", Name: "Calculus", Professor: "Prof. Choi", Credits: 3, Time: "Mon/Wed/Fri 09:00-10:00", Capacity: 60, Enrolled: 45},
		{ID: "ENG101", Name: "English Conversation", Professor: "Prof. Smith", Credits: 2, Time: "Tue/Thu 10:00-11:00", Capacity: 25, Enrolled: 20},
		{ID: "PHYS101", Name: "General Physics", Professor: "Prof. Jung", Credits: 3, Time: "Tue/Thu 09:00-10:30", Capacity: 45, Enrolled: 38},
		{ID: "CHEM101", Name: "General Chemistry", Professor: "Prof. Kang", Credits: 3, Time: "Mon/Wed 13:00-14:30", Capacity: 40, Enrolled: 25},
		{ID: "BIO101", Name: "Introduction to Biology", Professor: "Prof. Yoon", Credits: 3, Time: "Fri 13:00-16:00", Capacity: 30, Enrolled: 22},
		{ID: "HIST101", Name: "Korean History", Professor: "Prof. Han", Credits: 2, Time: "Wed 15:00-17:00", Capacity: 80, Enrolled: 60},
		{ID: "ART101", Name: "Understanding Art", Professor: "Prof. Oh", Credits: 2, Time: "Thu 15:00-17:00", Capacity: 20, Enrolled: 15},
	}
}

func (f *fakeStore) ListCourses(ctx context.Context) ([]models.Course, error) {
	f.mu.Lock()
	f.listCoursesCalls++
	if f.listCoursesErr != nil {
		err := f.listCoursesErr
		f.mu.Unlock()
		return nil, err
	}
	courses := slices.Clone(f.courses)
	hook := f.beforeListReturn
	f.beforeListReturn = nil
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return courses, nil
}

func (f *fakeStore) ListRegisteredCourses(ctx context.Context, studentID string) ([]models.RegisteredCourse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listRegsCalls++
	if f.listRegsErr != nil {
		return nil, f.listRegsErr
	}
	var rows []models.RegisteredCourse
	for _, r := range f.registrations {
		if r.StudentID != studentID {
			continue
		}
		if i := models.IndexOfCourse(f.courses, r.CourseID); i >= 0 {
			rows = append(rows, models.RegisteredCourse{Registration: r, Course: f.courses[i]})
		}
	}
	return rows, nil
}

func (f *fakeStore) CreateRegistration(ctx context.Context, reg *models.Registration) error {
	f.mu.Lock()
	f.createCalls++
	gate, started := f.createGate, f.createStarted
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	if f.createErr != nil {
		err := f.createErr
		f.mu.Unlock()
		return err
	}
	for _, r := range f.registrations {
		if r.StudentID == reg.StudentID && r.CourseID == reg.CourseID {
			f.mu.Unlock()
			return apperrors.ErrAlreadyRegistered
		}
	}
	f.registrations = append(f.registrations, *reg)
	f.mu.Unlock()

	f.emit(models.TableRegistrations, models.ChangeInsert)
	return nil
}

func (f *fakeStore) DeleteRegistration(ctx context.Context, studentID, courseID string) error {
	f.mu.Lock()
	f.deleteCalls++
	if f.deleteErr != nil {
		err := f.deleteErr
		f.mu.Unlock()
		return err
	}
	i := slices.IndexFunc(f.registrations, func(r models.Registration) bool {
		return r.StudentID == studentID && r.CourseID == courseID
	})
	if i < 0 {
		f.mu.Unlock()
		return apperrors.ErrRegistrationNotFound
	}
	f.registrations = slices.Delete(f.registrations, i, i+1)
	f.mu.Unlock()

	f.emit(models.TableRegistrations, models.ChangeDelete)
	return nil
}

func (f *fakeStore) UpdateEnrolled(ctx context.Context, courseID string, enrolled int) error {
	f.mu.Lock()
	f.updateCalls++
	if f.updateErr != nil {
		err := f.updateErr
		f.mu.Unlock()
		return err
	}
	i := models.IndexOfCourse(f.courses, courseID)
	if i < 0 {
		f.mu.Unlock()
		return apperrors.ErrCourseNotFound
	}
	f.courses[i].Enrolled = enrolled
	f.mu.Unlock()

	f.emit(models.TableCourses, models.ChangeUpdate)
	return nil
}

func (f *fakeStore) Subscribe(ctx context.Context, handler models.ChangeHandler) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	id := f.nextHandler
	f.nextHandler++
	f.handlers[id] = handler
	return func() {
		f.mu.Lock()
		delete(f.handlers, id)
		f.mu.Unlock()
	}, nil
}

func (f *fakeStore) emit(table string, typ models.ChangeType) {
	f.mu.Lock()
	handlers := make([]models.ChangeHandler, 0, len(f.handlers))
	for _, h := range f.handlers {
		handlers = append(handlers, h)
	}
	f.mu.Unlock()
	for _, h := range handlers {
		h(models.ChangeEvent{Table: table, Type: typ})
	}
}

// register adds a registration directly, as another client would.
func (f *fakeStore) register(studentID, courseID string) {
	f.mu.Lock()
	f.registrations = append(f.registrations, models.Registration{
		ID: studentID + "-" + courseID, StudentID: studentID, CourseID: courseID,
	})
	f.mu.Unlock()
}

func (f *fakeStore) course(id string) models.Course {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i := models.IndexOfCourse(f.courses, id); i >= 0 {
		return f.courses[i]
	}
	return models.Course{}
}

func (f *fakeStore) setEnrolled(id string, enrolled int) {
	f.mu.Lock()
	if i := models.IndexOfCourse(f.courses, id); i >= 0 {
		f.courses[i].Enrolled = enrolled
	}
	f.mu.Unlock()
}

// dropCourse removes id from the catalog, leaving its registrations behind.
func (f *fakeStore) dropCourse(id string) {
	f.mu.Lock()
	if i := models.IndexOfCourse(f.courses, id); i >= 0 {
		f.courses = slices.Delete(f.courses, i, i+1)
	}
	f.mu.Unlock()
}

func (f *fakeStore) registrationIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.registrations))
	for _, r := range f.registrations {
		ids = append(ids, r.ID)
	}
	return ids
}

func (f *fakeStore) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers)
}

type callCounts struct {
	create, update, delete int
}

func (f *fakeStore) writes() callCounts {
	f.mu.Lock()
	defer f.mu.Unlock()
	return callCounts{create: f.createCalls, update: f.updateCalls, delete: f.deleteCalls}
}

// atomicStore adds the AtomicEnroller capability to fakeStore.
type atomicStore struct {
	*fakeStore
	enrollCalls   int
	withdrawCalls int
}

func (a *atomicStore) Enroll(ctx context.Context, reg *models.Registration) (models.Course, error) {
	a.mu.Lock()
	a.enrollCalls++
	i := models.IndexOfCourse(a.courses, reg.CourseID)
	if i < 0 {
		a.mu.Unlock()
		return models.Course{}, apperrors.ErrCourseNotFound
	}
	if a.courses[i].IsFull() {
		a.mu.Unlock()
		return models.Course{}, apperrors.ErrCourseFull
	}
	a.courses[i].Enrolled++
	course := a.courses[i]
	a.registrations = append(a.registrations, *reg)
	a.mu.Unlock()
	return course, nil
}

func (a *atomicStore) Withdraw(ctx context.Context, studentID, courseID string) (models.Course, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.withdrawCalls++
	i := slices.IndexFunc(a.registrations, func(r models.Registration) bool {
		return r.StudentID == studentID && r.CourseID == courseID
	})
	if i < 0 {
		return models.Course{}, apperrors.ErrRegistrationNotFound
	}
	a.registrations = slices.Delete(a.registrations, i, i+1)
	c := models.IndexOfCourse(a.courses, courseID)
	a.courses[c].Enrolled--
	return a.courses[c], nil
}
