// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package document

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	MinGPA = 0.0
	MaxGPA = 4.0
)

var ErrInvalidCertificate = errors.New("invalid certificate data")

// CertificateData is everything printed on one certificate. Rendering is a
// pure function of this value.
type CertificateData struct {
	CertificateID  string
	StudentID      string
	StudentName    string
	Course         string
	GPA            float64
	GraduationDate time.Time
	Institution    string
	Faculty        string
	BatchID        string
	BatchName      string
	AcademicYear   string
	Semester       string
	IssuedAt       time.Time
}

// Validate returns an error wrapping ErrInvalidCertificate describing every
// missing or out of range field
func (d *CertificateData) Validate() error {
	var problems []string
	required := []struct {
		name  string
		value string
	}{
		{"certificate id", d.CertificateID},
		{"student id", d.StudentID},
		{"student name", d.StudentName},
		{"course", d.Course},
		{"institution", d.Institution},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			problems = append(problems, "missing "+r.name)
		}
	}
	if d.GraduationDate.IsZero() {
		problems = append(problems, "missing graduation date")
	}
	if d.IssuedAt.IsZero() {
		problems = append(problems, "missing issue time")
	}
	text := []struct {
		name  string
		value string
	}{
		{"certificate id", d.CertificateID},
		{"student id", d.StudentID},
		{"student name", d.StudentName},
		{"course", d.Course},
		{"institution", d.Institution},
		{"faculty", d.Faculty},
		{"batch id", d.BatchID},
		{"batch name", d.BatchName},
		{"academic year", d.AcademicYear},
		{"semester", d.Semester},
	}
	for _, f := range text {
		if bad := unsupportedRunes(f.value); len(bad) > 0 {
			problems = append(
				problems,
				fmt.Sprintf("%s has unsupported characters %q", f.name, string(bad)),
			)
		}
	}
	// Written so NaN fails too
	if !(d.GPA >= MinGPA && d.GPA <= MaxGPA) {
		problems = append(
			problems,
			fmt.Sprintf("gpa %.2f outside [%.1f, %.1f]", d.GPA, MinGPA, MaxGPA),
		)
	}
	if len(problems) > 0 {
		return fmt.Errorf(
			"%w: %s",
			ErrInvalidCertificate,
			strings.Join(problems, ", "),
		)
	}
	return nil
}
