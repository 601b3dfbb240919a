package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var deviceIDRe = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

var v = newValidator()

func newValidator() *validator.Validate {
	val := validator.New(validator.WithRequiredStructEnabled())
	val.RegisterTagNameFunc(
		func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		},
	)

	if err := val.RegisterValidation("deviceid", deviceID); err != nil {
		panic(err)
	}
	return val
}

func deviceID(fl validator.FieldLevel) bool {
	return deviceIDRe.MatchString(fl.Field().String())
}

// Struct validates s and returns one message per failed field.
func Struct(s any) []string {
	err := v.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed on %s rule", fe.Field(), fe.Tag()))
	}
	return msgs
}

func DeviceID(id string) bool {
	return deviceIDRe.MatchString(id)
}
