/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package seed

import "github.com/tomoncle/learnx/model"

type UserSeed struct {
	Name     string
	Email    string
	Password string
	Role     model.Role
	Bio      string
}

type CourseSeed struct {
	Title            string
	Description      string
	ShortDescription string
	Category         string
	Level            model.Level
	Duration         string
	Price            float64
	InstructorEmail  string
	Requirements     []string
	WhatYouLearn     []string
	Tags             []string
}

type EnrollmentSeed struct {
	UserEmail        string
	CourseTitle      string
	Progress         float64
	CompletedLessons []string
}

// Baseline is the fixed set of records every fresh installation starts with.
type Baseline struct {
	Users       []UserSeed
	Courses     []CourseSeed
	Enrollments []EnrollmentSeed
}

func DefaultBaseline() Baseline {
	return Baseline{
		Users: []UserSeed{
			{Name: "Admin User", Email: "admin@learnx.com", Password: "admin123", Role: model.RoleAdmin, Bio: "System Administrator"},
			{Name: "John Instructor", Email: "teacher@learnx.com", Password: "teacher123", Role: model.RoleTeacher, Bio: "Experienced instructor with 10+ years in web development"},
			{Name: "Sarah Student", Email: "student@learnx.com", Password: "student123", Role: model.RoleStudent, Bio: "Eager to learn new technologies"},
		},
		Courses: []CourseSeed{
			{
				Title:            "Complete React Development Course",
				Description:      "Learn React from scratch with hands-on projects and real-world examples.",
				ShortDescription: "Master React.js with practical projects",
				Category:         "Web Development",
				Level:            model.LevelIntermediate,
				Duration:         "40 hours",
				Price:            99.99,
				InstructorEmail:  "teacher@learnx.com",
				Requirements:     []string{"Basic JavaScript knowledge", "HTML & CSS familiarity"},
				WhatYouLearn:     []string{"React fundamentals", "Component architecture", "State management", "API integration"},
				Tags:             []string{"React", "JavaScript", "Frontend", "Web Development"},
			},
			{
				Title:            "Node.js Backend Development",
				Description:      "Build scalable backend applications with Node.js, Express, and databases.",
				ShortDescription: "Master backend development with Node.js",
				Category:         "Backend Development",
				Level:            model.LevelIntermediate,
				Duration:         "35 hours",
				Price:            89.99,
				InstructorEmail:  "teacher@learnx.com",
				Requirements:     []string{"JavaScript basics", "Understanding of web concepts"},
				WhatYouLearn:     []string{"Node.js fundamentals", "Express.js framework", "Database integration", "API development"},
				Tags:             []string{"Node.js", "Express", "Backend", "API"},
			},
			{
				Title:            "Introduction to Programming",
				Description:      "Start your programming journey with fundamental concepts and practical examples.",
				ShortDescription: "Learn programming basics step by step",
				Category:         "Programming Fundamentals",
				Level:            model.LevelBeginner,
				Duration:         "20 hours",
				Price:            49.99,
				InstructorEmail:  "teacher@learnx.com",
				Requirements:     []string{"No prior experience needed"},
				WhatYouLearn:     []string{"Programming concepts", "Problem solving", "Basic algorithms", "Code structure"},
				Tags:             []string{"Programming", "Beginner", "Fundamentals"},
			},
		},
		Enrollments: []EnrollmentSeed{
			{
				UserEmail:        "student@learnx.com",
				CourseTitle:      "Complete React Development Course",
				Progress:         25.5,
				CompletedLessons: []string{"lesson1", "lesson2"},
			},
		},
	}
}
