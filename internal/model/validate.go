package model

import (
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Normalize trims surrounding whitespace from every field.
func (n NewReport) Normalize() NewReport {
	return NewReport{
		ReportID:   strings.TrimSpace(n.ReportID),
		Project:    strings.TrimSpace(n.Project),
		Week:       strings.TrimSpace(n.Week),
		Owner:      strings.TrimSpace(n.Owner),
		ReportType: strings.TrimSpace(n.ReportType),
		Status:     strings.TrimSpace(n.Status),
		StorageURL: strings.TrimSpace(n.StorageURL),
	}
}

// Validate reports the names of blank required fields. A nil slice means
// the report is valid. Call Normalize first.
func (n NewReport) Validate() []string {
	err := validatorInstance().Struct(n)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []string{err.Error()}
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
	}
	return fields
}
