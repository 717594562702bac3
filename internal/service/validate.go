package service

import (
	"net/mail"
	"strings"
	"unicode/utf8"
)

const (
	minPasswordLen = 6
	maxPasswordLen = 72
	maxNameLen     = 100
)

func validateEmail(f fieldErrors, email string) {
	email = strings.TrimSpace(email)
	if email == "" {
		f["email"] = "required"
		return
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email, "@") {
		f["email"] = "invalid email"
	}
}

func validateSignup(email, password string) error {
	f := fieldErrors{}
	validateEmail(f, email)
	switch {
	case password == "":
		f["password"] = "required"
	case len(password) < minPasswordLen:
		f["password"] = "must be at least 6 characters"
	case len(password) > maxPasswordLen:
		f["password"] = "must be at most 72 bytes"
	}
	return f.err()
}

func validateLogin(email, password string) error {
	f := fieldErrors{}
	if strings.TrimSpace(email) == "" {
		f["email"] = "required"
	}
	if password == "" {
		f["password"] = "required"
	}
	return f.err()
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	f := fieldErrors{}
	switch {
	case name == "":
		f["name"] = "required"
	case utf8.RuneCountInString(name) > maxNameLen:
		f["name"] = "must be at most 100 characters"
	}
	return name, f.err()
}
