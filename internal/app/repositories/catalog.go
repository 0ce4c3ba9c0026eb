package repositories

import "github.com/yigit/coursereg/internal/app/models"

// DefaultCatalog returns the demo course catalog used by the memory store and
// the database seeder.
func DefaultCatalog() []models.Course {
	return []models.Course{
		{ID: "CS101", Name: "Introduction to Programming", Professor: "Prof. Kim", Credits: 3, Time: "Mon/Wed/Fri 10:00-11:00", Capacity: 50, Enrolled: 35},
		{ID: "CS201", Name: "Data Structures", Professor: "Prof. Lee", Credits: 3, Time: "Tue/Thu 13:00-14:30", Capacity: 40, Enrolled: 28},
		{ID: "CS301", Name: "Databases", Professor: "Prof. Park", Credits: 3, Time: "Mon/Wed 15:00-16:30", Capacity: 35, Enrolled: 32},
		{ID: "MATH101", Name: "Calculus", Professor: "Prof. Choi", Credits: 3, Time: "Tue/Thu/Fri 09:00-10:00", Capacity: 60, Enrolled: 45},
		{ID: "ENG101", Name: "English Conversation", Professor: "Prof. Smith", Credits: 2, Time: "Mon/Wed 11:00-12:00", Capacity: 25, Enrolled: 20},
		{ID: "PHYS101", Name: "General Physics", Professor: "Prof. Jung", Credits: 3, Time: "Tue/Thu 10:00-11:30", Capacity: 45, Enrolled: 38},
		{ID: "CHEM101", Name: "General Chemistry", Professor: "Prof. Han", Credits: 3, Time: "Mon/Wed/Fri 14:00-15:00", Capacity: 40, Enrolled: 25},
		{ID: "BIO101", Name: "Introduction to Biology", Professor: "Prof. Yoon", Credits: 3, Time: "Tue/Thu 16:00-17:30", Capacity: 30, Enrolled: 22},
		{ID: "HIST101", Name: "Korean History", Professor: "Prof. Kang", Credits: 2, Time: "Fri 13:00-15:00", Capacity: 80, Enrolled: 60},
		{ID: "ART101", Name: "Understanding Art", Professor: "Prof. Cho", Credits: 2, Time: "Thu 15:00-17:00", Capacity: 20, Enrolled: 15},
	}
}
