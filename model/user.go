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

package model

import (
	"context"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"golang.org/x/crypto/bcrypt"

	"github.com/tomoncle/learnx/types"
)

type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return true
	}
	return false
}

// ParseRole accepts any casing of a known role.
func ParseRole(s string) (Role, error) {
	return types.ParseEnum(s, RoleStudent, RoleTeacher, RoleAdmin)
}

// PasswordCost is the bcrypt cost used when hashing credentials.
var PasswordCost = bcrypt.DefaultCost

type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID                     string    `bun:"id,pk,type:varchar(36)" json:"id"`
	Name                   string    `bun:"name,notnull,type:varchar(100)" json:"name"`
	Email                  string    `bun:"email,notnull,unique,type:varchar(255)" json:"email"`
	Password               string    `bun:"password,notnull,type:varchar(255)" json:"-"`
	Role                   Role      `bun:"role,notnull,type:varchar(20),default:'student'" json:"role"`
	IsEmailVerified        bool      `bun:"is_email_verified,notnull,default:false" json:"isEmailVerified"`
	EmailVerificationToken *string   `bun:"email_verification_token,type:varchar(255)" json:"-"`
	Bio                    *string   `bun:"bio,type:text" json:"bio,omitempty"`
	IsActive               bool      `bun:"is_active,notnull,default:true" json:"isActive"`
	CreatedAt              time.Time `bun:"created_at,notnull,default:current_timestamp" json:"createdAt"`
	UpdatedAt              time.Time `bun:"updated_at,notnull,default:current_timestamp" json:"updatedAt"`
	DeletedAt              time.Time `bun:"deleted_at,soft_delete,nullzero" json:"-"`
}

var _ bun.BeforeAppendModelHook = (*User)(nil)

// NewUser returns an active user. The password is hashed on insert.
func NewUser(name, email, password string, role Role) *User {
	return &User{
		Name:     name,
		Email:    strings.ToLower(strings.TrimSpace(email)),
		Password: password,
		Role:     role,
		IsActive: true,
	}
}

func (u *User) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	switch query.(type) {
	case *bun.InsertQuery:
		if u.Role == "" {
			u.Role = RoleStudent
		}
		if err := u.Validate(); err != nil {
			return err
		}
		if u.ID == "" {
			u.ID = uuid.NewString()
		}
		if err := u.hashPassword(); err != nil {
			return err
		}
		touch(&u.CreatedAt, &u.UpdatedAt)
	case *bun.UpdateQuery:
		if err := u.Validate(); err != nil {
			return err
		}
		if err := u.hashPassword(); err != nil {
			return err
		}
		touch(nil, &u.UpdatedAt)
	}
	return nil
}

func (u *User) Validate() error {
	if n := utf8.RuneCountInString(strings.TrimSpace(u.Name)); n < 2 || n > 100 {
		return invalid("user", "name", "length %d not in [2,100]", n)
	}
	if _, err := mail.ParseAddress(u.Email); err != nil || len(u.Email) > 255 {
		return invalid("user", "email", "%q is not an email address", u.Email)
	}
	if u.Password == "" {
		return invalid("user", "password", "must not be empty")
	}
	if u.Role != "" && !u.Role.IsValid() {
		return invalid("user", "role", "unknown role %q", u.Role)
	}
	return nil
}

// SetPassword stores the bcrypt hash of plain.
func (u *User) SetPassword(plain string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), PasswordCost)
	if err != nil {
		return err
	}
	u.Password = string(hash)
	return nil
}

// CheckPassword compares plain with the stored hash.
func (u *User) CheckPassword(plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(plain)) == nil
}

func (u *User) hashPassword() error {
	if _, err := bcrypt.Cost([]byte(u.Password)); err == nil {
		return nil
	}
	return u.SetPassword(u.Password)
}

// CanTeach reports whether the user may be a course instructor.
func (u *User) CanTeach() bool {
	return u.IsActive && (u.Role == RoleTeacher || u.Role == RoleAdmin)
}
