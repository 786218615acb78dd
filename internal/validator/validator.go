package validator

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	govalidator "github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/stemsi/examquest-backend/internal/model"
)

// trans is the singleton English translator for validation errors.
var trans ut.Translator

var (
	questionOnce     sync.Once
	questionValidate *govalidator.Validate
)

// Setup registers the validator with English translations on Gin's binding engine.
// Call once during application startup.
func Setup() {
	if v, ok := binding.Validator.Engine().(*govalidator.Validate); ok {
		v.RegisterTagNameFunc(jsonTagName)

		enLocale := en.New()
		uni := ut.New(enLocale, enLocale)
		trans, _ = uni.GetTranslator("en")
		en_translations.RegisterDefaultTranslations(v, trans)
	}
}

func jsonTagName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	return name
}

// TranslateErrors takes a binding/validation error and returns a map of
// field name → human-readable error message. If the error is not a
// validation error, it returns a single-key map with "detail".
func TranslateErrors(err error) map[string]string {
	fields := make(map[string]string)

	var ve govalidator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			if trans != nil {
				fields[fe.Field()] = fe.Translate(trans)
			} else {
				fields[fe.Field()] = fe.Error()
			}
		}
		return fields
	}

	fields["detail"] = err.Error()
	return fields
}

// Bind binds and validates the request body into dst.
// Returns nil on success or a translated field error map on failure.
func Bind(c *gin.Context, dst interface{}) map[string]string {
	if err := c.ShouldBindJSON(dst); err != nil {
		return TranslateErrors(err)
	}
	return nil
}

// Question checks the per-type invariants a question must satisfy before it can be scored:
// drag-drop needs at least two complete pairs, multiple-choice at least two non-empty options,
// reading-comprehension a passage.
func Question(q *model.Question) error {
	questionOnce.Do(func() {
		questionValidate = govalidator.New(govalidator.WithRequiredStructEnabled())
		questionValidate.RegisterTagNameFunc(jsonTagName)
		questionValidate.RegisterStructValidation(questionStructLevel, model.Question{})
	})
	return questionValidate.Struct(q)
}

func questionStructLevel(sl govalidator.StructLevel) {
	q := sl.Current().Interface().(model.Question)

	switch q.Type {
	case model.QuestionTypeDragDrop:
		if len(q.CorrectPairs) < 2 {
			sl.ReportError(q.CorrectPairs, "correctAnswer", "CorrectPairs", "min_pairs", "2")
		}
	case model.QuestionTypeMultipleChoice:
		nonEmpty := 0
		for _, opt := range q.Options {
			if strings.TrimSpace(opt) != "" {
				nonEmpty++
			}
		}
		if nonEmpty < 2 {
			sl.ReportError(q.Options, "options", "Options", "min_options", "2")
		}
	case model.QuestionTypeReadingComprehension:
		if strings.TrimSpace(q.Passage) == "" {
			sl.ReportError(q.Passage, "passage", "Passage", "required_passage", "")
		}
	}
}
