package handlers

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/tbourn/go-forms-backend/internal/fieldtype"
)

var registerOnce sync.Once

// RegisterValidators installs the custom binding tags used by request DTOs
// on gin's validator:
//   - fieldtype: the value is a known field type tag (empty passes; pair
//     with required when needed).
//   - direction: "up" or "down".
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("fieldtype", func(fl validator.FieldLevel) bool {
			s := fl.Field().String()
			if s == "" {
				return true
			}
			_, err := fieldtype.Parse(s)
			return err == nil
		})
		_ = v.RegisterValidation("direction", func(fl validator.FieldLevel) bool {
			s := fl.Field().String()
			return s == "up" || s == "down"
		})
	})
}

// bindingMessages turns validator errors into readable messages naming the
// offending JSON fields.
func bindingMessages(err error) []string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []string{"invalid JSON body"}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			out = append(out, fe.Field()+" is required")
		case "fieldtype":
			out = append(out, fmt.Sprintf("%s: unknown field type %v", fe.Field(), fe.Value()))
		default:
			out = append(out, fe.Field()+" failed "+fe.Tag())
		}
	}
	return out
}
