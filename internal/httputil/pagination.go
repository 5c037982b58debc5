package httputil

import (
	"strconv"

	"github.com/gin-gonic/gin"
	validation "github.com/jellydator/validation"

	appValidation "github.com/allisson/apikeys/internal/validation"
)

// Page size bounds for list endpoints.
const (
	DefaultPageLimit = 50
	MaxPageLimit     = 100
)

var errNotInteger = validation.NewError("validation_is_integer", "must be an integer")

// Page is a validated offset/limit pair read from the query string.
type Page struct {
	Offset int
	Limit  int
}

// Validate checks the page bounds.
func (p Page) Validate() error {
	err := validation.ValidateStruct(&p,
		validation.Field(&p.Offset, validation.Min(0)),
		validation.Field(&p.Limit, validation.Required, validation.Min(1), validation.Max(MaxPageLimit)),
	)
	return appValidation.WrapValidationError(err)
}

// ParsePage reads the offset and limit query parameters, defaulting to the first
// DefaultPageLimit entries. Non-numeric or out of range values wrap ErrInvalidInput.
func ParsePage(c *gin.Context) (Page, error) {
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil {
		return Page{}, appValidation.WrapValidationError(
			validation.Errors{"offset": errNotInteger},
		)
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(DefaultPageLimit)))
	if err != nil {
		return Page{}, appValidation.WrapValidationError(
			validation.Errors{"limit": errNotInteger},
		)
	}

	page := Page{Offset: offset, Limit: limit}
	if err := page.Validate(); err != nil {
		return Page{}, err
	}
	return page, nil
}
