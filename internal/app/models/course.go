package models

// Course represents an open course a student can register for.
// Column names follow the backend's courses table.
type Course struct {
	ID        string `json:"id" db:"id"`
	Name      string `json:"name" db:"name"`
	Professor string `json:"professor" db:"professor"`
	Credits   int    `json:"credits" db:"credits"`
	Time      string `json:"time" db:"time"` // Free text schedule label, e.g. "MWF 10:00-11:00"
	Capacity  int    `json:"capacity" db:"capacity"`
	Enrolled  int    `json:"enrolled" db:"enrolled"`
}

// IsFull reports whether the course has no seats left according to this copy.
func (c Course) IsFull() bool {
	return c.Enrolled >= c.Capacity
}

// RemainingSeats returns capacity minus enrolled, never negative.
func (c Course) RemainingSeats() int {
	if c.Enrolled >= c.Capacity {
		return 0
	}
	return c.Capacity - c.Enrolled
}

// TotalCredits sums the credit hours of the given courses.
func TotalCredits(courses []Course) int {
	total := 0
	for _, c := range courses {
		total += c.Credits
	}
	return total
}

// IndexOfCourse returns the position of the course with the given ID, or -1.
func IndexOfCourse(courses []Course, id string) int {
	for i := range courses {
		if courses[i].ID == id {
			return i
		}
	}
	return -1
}
