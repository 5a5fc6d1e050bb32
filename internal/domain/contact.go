package domain

import (
	"regexp"
	"time"
)

// ContactStatus описывает этап обработки обращения покупателя.
type ContactStatus string

const (
	// ContactStatusNew означает, что обращение ещё не разобрано.
	ContactStatusNew ContactStatus = "new"
	// ContactStatusContacted означает, что покупателю ответили.
	ContactStatusContacted ContactStatus = "contacted"
	// ContactStatusCompleted означает, что обращение закрыто.
	ContactStatusCompleted ContactStatus = "completed"
)

// Предельные длины полей формы обращения.
const (
	MaxContactNameLen    = 100
	MaxContactPhoneLen   = 20
	MaxContactAddressLen = 500
	MaxContactQueryLen   = 2000
)

// Contact описывает обращение покупателя через форму на сайте.
type Contact struct {
	ID string
	// Reference содержит публичный номер вида CNT-YYYYMMDD-NNNN.
	Reference    string
	Name         string
	Email        string
	Phone        string
	Address      string
	Query        string
	Status       ContactStatus
	Notification NotificationState
	CreatedAt    time.Time
}

// ValidateInvariants проверяет обязательные поля и предельные длины обращения.
func (c *Contact) ValidateInvariants() []error {
	var errs []error

	if c.Name == "" {
		errs = append(errs, ErrContactNameRequired)
	}
	if len(c.Name) > MaxContactNameLen {
		errs = append(errs, ErrContactNameTooLong)
	}
	if c.Email == "" {
		errs = append(errs, ErrCustomerEmailRequired)
	} else if !ValidEmail(c.Email) {
		errs = append(errs, ErrEmailInvalid)
	}
	if len(c.Phone) > MaxContactPhoneLen {
		errs = append(errs, ErrContactPhoneTooLong)
	}
	if len(c.Address) > MaxContactAddressLen {
		errs = append(errs, ErrContactAddressTooLong)
	}
	if c.Query == "" {
		errs = append(errs, ErrContactQueryRequired)
	}
	if len(c.Query) > MaxContactQueryLen {
		errs = append(errs, ErrContactQueryTooLong)
	}

	return errs
}

var emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)

// ValidEmail проверяет адрес по упрощённому шаблону локальная-часть@домен.зона.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}
