package validation

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

// stream ids double as room names and Redis key suffixes
var streamIDRegex = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,128}$`)

func init() {
	MustRegisterGin("streamid", ValidateStreamID)
	MustRegisterGinAlias("identity", "min=1,max=256,printascii")
}

func ValidateStreamID(fl validator.FieldLevel) bool {
	return streamIDRegex.MatchString(fl.Field().String())
}
