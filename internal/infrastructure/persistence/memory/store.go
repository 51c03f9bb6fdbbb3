// Package memory provides an in-memory transactional store implementing the
// domain repositories. It enforces the same natural-key and dedup constraints
// as the PostgreSQL schema and is used by tests and local runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alem-hub/registrar/internal/domain/access"
	"github.com/alem-hub/registrar/internal/domain/course"
	"github.com/alem-hub/registrar/internal/domain/division"
	"github.com/alem-hub/registrar/internal/domain/enrollment"
	"github.com/alem-hub/registrar/internal/domain/shared"
	"github.com/alem-hub/registrar/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATE
// ══════════════════════════════════════════════════════════════════════════════

type actorRecord struct {
	actor   access.Actor
	keyHash []byte
}

type state struct {
	departments map[int64]division.Department
	regulations map[int64]struct{}
	divisions   map[int64]division.Division
	courses     map[int64]course.Course
	students    map[string]student.Student
	enrollments map[string]enrollment.Enrollment
	keys        map[enrollment.Key]string
	actors      map[string]actorRecord
	nextID      int64
}

func newState() state {
	return state{
		departments: map[int64]division.Department{},
		regulations: map[int64]struct{}{},
		divisions:   map[int64]division.Division{},
		courses:     map[int64]course.Course{},
		students:    map[string]student.Student{},
		enrollments: map[string]enrollment.Enrollment{},
		keys:        map[enrollment.Key]string{},
		actors:      map[string]actorRecord{},
	}
}

func (s state) clone() state {
	c := newState()
	c.nextID = s.nextID
	for k, v := range s.departments {
		c.departments[k] = v
	}
	for k := range s.regulations {
		c.regulations[k] = struct{}{}
	}
	for k, v := range s.divisions {
		c.divisions[k] = v
	}
	for k, v := range s.courses {
		c.courses[k] = cloneCourse(v)
	}
	for k, v := range s.students {
		c.students[k] = v
	}
	for k, v := range s.enrollments {
		c.enrollments[k] = v
	}
	for k, v := range s.keys {
		c.keys[k] = v
	}
	for k, v := range s.actors {
		c.actors[k] = v
	}
	return c
}

func (s *state) id() int64 {
	s.nextID++
	return s.nextID
}

func cloneCourse(c course.Course) course.Course {
	c.DivisionIDs = append([]int64(nil), c.DivisionIDs...)
	return c
}

// ══════════════════════════════════════════════════════════════════════════════
// STORE
// ══════════════════════════════════════════════════════════════════════════════

// Store is a goroutine-safe in-memory database.
type Store struct {
	mu    sync.RWMutex
	state state

	// failCommit, when set, makes the next Commit fail with it.
	failCommit error
	commits    int
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{state: newState()}
}

// run applies fn to a copy of the state and swaps it in on success.
func (s *Store) run(fn func(tx *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.state.clone()
	if err := fn(&tx); err != nil {
		return err
	}
	s.state = tx
	return nil
}

func (s *Store) view(fn func(st *state)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(&s.state)
}

// FailNextCommit makes the next enrollment commit fail with err.
func (s *Store) FailNextCommit(err error) {
	s.mu.Lock()
	s.failCommit = err
	s.mu.Unlock()
}

// Commits returns the number of successful enrollment commits.
func (s *Store) Commits() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.commits
}

// ─────────────────────────────────────────────────────────────────────────────
// Seeding
// ─────────────────────────────────────────────────────────────────────────────

// AddRegulation registers a regulation id.
func (s *Store) AddRegulation(id int64) {
	_ = s.run(func(tx *state) error {
		tx.regulations[id] = struct{}{}
		if id > tx.nextID {
			tx.nextID = id
		}
		return nil
	})
}

// AddDepartment stores a department and returns its id.
func (s *Store) AddDepartment(name string) int64 {
	var id int64
	_ = s.run(func(tx *state) error {
		id = tx.id()
		tx.departments[id] = division.Department{ID: id, Name: division.NormalizeName(name)}
		return nil
	})
	return id
}

// AddDivision stores d and assigns its id.
func (s *Store) AddDivision(d *division.Division) error {
	return s.run(func(tx *state) error {
		return insertDivision(tx, d)
	})
}

// AddCourse stores c and assigns its id.
func (s *Store) AddCourse(c *course.Course) {
	_ = s.run(func(tx *state) error {
		insertCourse(tx, c)
		return nil
	})
}

// AddStudent stores st, assigning an id when empty.
func (s *Store) AddStudent(st *student.Student) error {
	return s.run(func(tx *state) error {
		st.Name = student.NormalizeName(st.Name)
		for _, existing := range tx.students {
			if existing.DivisionID == st.DivisionID && existing.Name == st.Name {
				return shared.WrapError("student", "Create", shared.ErrAlreadyExists, "duplicate student", nil)
			}
		}
		if st.ID == "" {
			st.ID = uuid.NewString()
		}
		tx.students[st.ID] = *st
		return nil
	})
}

// AddEnrollment stores e directly, bypassing the import pipeline.
func (s *Store) AddEnrollment(e *enrollment.Enrollment) error {
	return s.run(func(tx *state) error {
		return insertEnrollment(tx, e)
	})
}

// AddActor stores an actor with its bcrypt key hash.
func (s *Store) AddActor(a access.Actor, keyHash []byte) {
	_ = s.run(func(tx *state) error {
		a.Divisions = append([]int64(nil), a.Divisions...)
		tx.actors[a.ID] = actorRecord{actor: a, keyHash: keyHash}
		return nil
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Writes shared by seeding and repositories
// ─────────────────────────────────────────────────────────────────────────────

func insertDivision(tx *state, d *division.Division) error {
	d.Name = division.NormalizeName(d.Name)
	for _, existing := range tx.divisions {
		if existing.Name == d.Name {
			return shared.WrapError("division", "Create", shared.ErrAlreadyExists,
				fmt.Sprintf("division %q already exists", d.Name), nil)
		}
	}
	d.ID = tx.id()
	tx.divisions[d.ID] = *d
	return nil
}

func insertCourse(tx *state, c *course.Course) {
	c.Code = course.NormalizeCode(c.Code)
	c.ID = tx.id()
	tx.courses[c.ID] = cloneCourse(*c)
}

func insertEnrollment(tx *state, e *enrollment.Enrollment) error {
	if _, dup := tx.keys[e.Key()]; dup {
		return enrollment.ErrAlreadyExists
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	tx.enrollments[e.ID] = *e
	tx.keys[e.Key()] = e.ID
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// UNIT OF WORK
// ══════════════════════════════════════════════════════════════════════════════

// Commit implements enrollment.UnitOfWork. Either every write lands or none.
func (s *Store) Commit(_ context.Context, batch enrollment.Batch) error {
	s.mu.Lock()
	injected := s.failCommit
	s.failCommit = nil
	s.mu.Unlock()

	if injected != nil {
		return shared.NewTransactionError("Commit", injected)
	}

	err := s.run(func(tx *state) error {
		for _, e := range batch.Enrollments {
			if _, ok := tx.students[e.StudentID]; !ok {
				return fmt.Errorf("enrollment %s: unknown student %s", e.ID, e.StudentID)
			}
			if _, ok := tx.courses[e.CourseID]; !ok {
				return fmt.Errorf("enrollment %s: unknown course %d", e.ID, e.CourseID)
			}
			copied := *e
			if err := insertEnrollment(tx, &copied); err != nil {
				return err
			}
		}
		for _, u := range batch.Standings {
			stored, ok := tx.students[u.StudentID]
			if !ok {
				return fmt.Errorf("unknown student %s", u.StudentID)
			}
			stored.Standing = u.Apply(stored.Standing)
			stored.UpdatedAt = time.Now().UTC()
			tx.students[u.StudentID] = stored
		}
		return nil
	})
	if err != nil {
		return shared.NewTransactionError("Commit", err)
	}

	s.mu.Lock()
	s.commits++
	s.mu.Unlock()
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY VIEWS
// ══════════════════════════════════════════════════════════════════════════════

// Divisions returns the division.Repository view.
func (s *Store) Divisions() division.Repository { return divisionRepo{s} }

// Courses returns the course.Repository view.
func (s *Store) Courses() course.Repository { return courseRepo{s} }

// Students returns the student.Repository view.
func (s *Store) Students() student.Repository { return studentRepo{s} }

// Enrollments returns the enrollment.Repository view.
func (s *Store) Enrollments() enrollment.Repository { return enrollmentRepo{s} }

// Actors returns the access.Repository view.
func (s *Store) Actors() access.Repository { return actorRepo{s} }

// ─────────────────────────────────────────────────────────────────────────────
// Divisions
// ─────────────────────────────────────────────────────────────────────────────

type divisionRepo struct{ s *Store }

func (r divisionRepo) GetByID(_ context.Context, id int64) (*division.Division, error) {
	var (
		d  division.Division
		ok bool
	)
	r.s.view(func(st *state) { d, ok = st.divisions[id] })
	if !ok {
		return nil, shared.ErrDivisionNotFound
	}
	return &d, nil
}

func (r divisionRepo) GetByName(_ context.Context, name string) (*division.Division, error) {
	name = division.NormalizeName(name)
	var found *division.Division
	r.s.view(func(st *state) {
		for _, d := range st.divisions {
			if d.Name == name {
				d := d
				found = &d
				return
			}
		}
	})
	if found == nil {
		return nil, shared.ErrDivisionNotFound
	}
	return found, nil
}

func (r divisionRepo) GetDepartmentByName(_ context.Context, name string) (*division.Department, error) {
	name = division.NormalizeName(name)
	var found *division.Department
	r.s.view(func(st *state) {
		for _, d := range st.departments {
			if d.Name == name {
				d := d
				found = &d
				return
			}
		}
	})
	if found == nil {
		return nil, shared.ErrDepartmentNotFound
	}
	return found, nil
}

func (r divisionRepo) RegulationExists(_ context.Context, id int64) (bool, error) {
	var ok bool
	r.s.view(func(st *state) { _, ok = st.regulations[id] })
	return ok, nil
}

func (r divisionRepo) CreateMany(_ context.Context, divisions []*division.Division) error {
	err := r.s.run(func(tx *state) error {
		for _, d := range divisions {
			if _, ok := tx.regulations[d.RegulationID]; !ok {
				return shared.ErrRegulationNotFound
			}
			if err := insertDivision(tx, d); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		for _, d := range divisions {
			d.ID = 0
		}
		return shared.NewTransactionError("CreateDivisions", err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Courses
// ─────────────────────────────────────────────────────────────────────────────

type courseRepo struct{ s *Store }

func (r courseRepo) GetByID(_ context.Context, id int64) (*course.Course, error) {
	var (
		c  course.Course
		ok bool
	)
	r.s.view(func(st *state) { c, ok = st.courses[id] })
	if !ok {
		return nil, shared.ErrCourseNotFound
	}
	c = cloneCourse(c)
	return &c, nil
}

// sorted returns the courses matching keep, ordered by id.
func (r courseRepo) sorted(keep func(st *state, c course.Course) bool) []*course.Course {
	var out []*course.Course
	r.s.view(func(st *state) {
		for _, c := range st.courses {
			if keep(st, c) {
				c := cloneCourse(c)
				out = append(out, &c)
			}
		}
	})
	course.SortByID(out)
	return out
}

func (r courseRepo) FindByCodeInDivision(_ context.Context, code string, divisionID int64) (*course.Course, error) {
	code = course.NormalizeCode(code)
	found := r.sorted(func(_ *state, c course.Course) bool {
		return c.Code == code && c.BelongsTo(divisionID)
	})
	if len(found) == 0 {
		return nil, shared.ErrCourseNotFound
	}
	return found[0], nil
}

func (r courseRepo) FindFirstByCode(_ context.Context, code string) (*course.Course, error) {
	code = course.NormalizeCode(code)
	found := r.sorted(func(_ *state, c course.Course) bool { return c.Code == code })
	if len(found) == 0 {
		return nil, shared.ErrCourseNotFound
	}
	return found[0], nil
}

func (r courseRepo) List(_ context.Context, filter course.ListFilter) ([]*course.Course, error) {
	allowed := make(map[int64]struct{}, len(filter.DivisionIDs))
	for _, id := range filter.DivisionIDs {
		allowed[id] = struct{}{}
	}
	return r.sorted(func(st *state, c course.Course) bool {
		if filter.Restricted {
			visible := false
			for _, id := range c.DivisionIDs {
				if _, ok := allowed[id]; ok {
					visible = true
					break
				}
			}
			if !visible {
				return false
			}
		}
		if filter.RegulationID == 0 {
			return true
		}
		for _, id := range c.DivisionIDs {
			if st.divisions[id].RegulationID == filter.RegulationID {
				return true
			}
		}
		return false
	}), nil
}

func (r courseRepo) ListRequired(_ context.Context, divisionID int64) ([]*course.Course, error) {
	return r.sorted(func(_ *state, c course.Course) bool {
		return c.Required && c.BelongsTo(divisionID)
	}), nil
}

func (r courseRepo) CreateMany(_ context.Context, courses []*course.Course) error {
	err := r.s.run(func(tx *state) error {
		for _, c := range courses {
			for _, id := range c.DivisionIDs {
				if _, ok := tx.divisions[id]; !ok {
					return shared.ErrDivisionNotFound
				}
			}
			insertCourse(tx, c)
		}
		return nil
	})
	if err != nil {
		for _, c := range courses {
			c.ID = 0
		}
		return shared.NewTransactionError("CreateCourses", err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Students
// ─────────────────────────────────────────────────────────────────────────────

type studentRepo struct{ s *Store }

func (r studentRepo) GetByID(_ context.Context, id string) (*student.Student, error) {
	var (
		st student.Student
		ok bool
	)
	r.s.view(func(s *state) { st, ok = s.students[id] })
	if !ok {
		return nil, shared.ErrStudentNotFound
	}
	return &st, nil
}

func (r studentRepo) GetByNameInDivision(_ context.Context, name string, divisionID int64) (*student.Student, error) {
	name = student.NormalizeName(name)
	var found *student.Student
	r.s.view(func(s *state) {
		for _, st := range s.students {
			if st.DivisionID == divisionID && st.Name == name {
				st := st
				found = &st
				return
			}
		}
	})
	if found == nil {
		return nil, shared.ErrStudentNotFound
	}
	return found, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Enrollments
// ─────────────────────────────────────────────────────────────────────────────

type enrollmentRepo struct{ s *Store }

func (r enrollmentRepo) Exists(_ context.Context, key enrollment.Key) (bool, error) {
	var ok bool
	r.s.view(func(st *state) { _, ok = st.keys[key] })
	return ok, nil
}

func (r enrollmentRepo) ListByStudent(_ context.Context, studentID string) ([]*enrollment.Enrollment, error) {
	var out []*enrollment.Enrollment
	r.s.view(func(st *state) {
		for _, e := range st.enrollments {
			if e.StudentID == studentID {
				e := e
				out = append(out, &e)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Count returns the number of stored enrollments.
func (s *Store) Count() int {
	var n int
	s.view(func(st *state) { n = len(st.enrollments) })
	return n
}

// ─────────────────────────────────────────────────────────────────────────────
// Actors
// ─────────────────────────────────────────────────────────────────────────────

type actorRepo struct{ s *Store }

func (r actorRepo) GetByID(_ context.Context, id string) (*access.Actor, error) {
	var (
		rec actorRecord
		ok  bool
	)
	r.s.view(func(st *state) { rec, ok = st.actors[id] })
	if !ok {
		return nil, shared.ErrActorNotFound
	}
	a := rec.actor
	a.Divisions = append([]int64(nil), a.Divisions...)
	return &a, nil
}

func (r actorRepo) GetKeyHash(_ context.Context, id string) ([]byte, error) {
	var (
		rec actorRecord
		ok  bool
	)
	r.s.view(func(st *state) { rec, ok = st.actors[id] })
	if !ok || len(rec.keyHash) == 0 {
		return nil, shared.ErrActorNotFound
	}
	return rec.keyHash, nil
}
