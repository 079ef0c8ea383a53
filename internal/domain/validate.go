package domain

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validator returns the shared validator. Field errors are reported by
// their `db` column name when one is declared.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("db"), ",", 2)[0]
			if name == "" || name == "-" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// FieldIssue is one failed struct-tag constraint on a record.
type FieldIssue struct {
	Field string
	Tag   string
}

// IsMissing reports whether the issue is an absent required value.
func (i FieldIssue) IsMissing() bool {
	return i.Tag == "required"
}

// RecordIssues validates a record and lists every failed constraint.
// It returns nil for a clean record.
func RecordIssues(record any) []FieldIssue {
	err := Validator().Struct(record)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldIssue{{Field: "*", Tag: "invalid"}}
	}
	out := make([]FieldIssue, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldIssue{Field: fe.Field(), Tag: fe.Tag()})
	}
	return out
}
