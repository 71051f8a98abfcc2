package utils

import (
	"github.com/go-playground/validator/v10"
	"github.com/kataras/iris/v12"
)

type validationError struct {
	ActualTag string `json:"tag"`
	Namespace string `json:"namespace"`
	Kind      string `json:"kind"`
	Type      string `json:"type"`
	Value     string `json:"value"`
	Param     string `json:"param"`
}

// HandleValidationErrors writes a 400 with field-level details when the body
// failed validator tags, or a generic 400 for malformed JSON.
func HandleValidationErrors(err error, ctx iris.Context) {
	if errs, ok := err.(validator.ValidationErrors); ok {
		validationErrors := make([]validationError, 0, len(errs))
		for _, validationErr := range errs {
			validationErrors = append(validationErrors, validationError{
				ActualTag: validationErr.ActualTag(),
				Namespace: validationErr.Namespace(),
				Kind:      validationErr.Kind().String(),
				Type:      validationErr.Type().String(),
				Value:     "",
				Param:     validationErr.Param(),
			})
		}

		ctx.StatusCode(iris.StatusBadRequest)
		ctx.JSON(iris.Map{"message": "Validation error", "errors": validationErrors})
		return
	}

	ctx.StatusCode(iris.StatusBadRequest)
	ctx.JSON(iris.Map{"message": "Invalid request body"})
}

// CreateError writes an error response with a title and message.
func CreateError(statusCode int, title, detail string, ctx iris.Context) {
	ctx.StatusCode(statusCode)
	ctx.JSON(iris.Map{"title": title, "message": detail})
}

func CreateInternalServerError(ctx iris.Context) {
	ctx.StatusCode(iris.StatusInternalServerError)
	ctx.JSON(iris.Map{"message": "Internal server error"})
}

func CreateNotFound(ctx iris.Context) {
	ctx.StatusCode(iris.StatusNotFound)
	ctx.JSON(iris.Map{"message": "Not found"})
}

func CreateForbidden(ctx iris.Context) {
	ctx.StatusCode(iris.StatusForbidden)
	ctx.JSON(iris.Map{"message": "Forbidden"})
}

func CreateEmailAlreadyRegistered(ctx iris.Context) {
	ctx.StatusCode(iris.StatusConflict)
	ctx.JSON(iris.Map{"message": "Email already registered"})
}
