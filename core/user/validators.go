package user

import (
	"sort"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/enlighten-ed/backend/core"
)

var (
	allRolesTag  = "allroles"
	allRolesText = "invalid roles"
)

// InitValidators registers the user app's custom validators.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(allRolesTag, allRolesValidation)
	core.RegisterCustomTranslation(validate, translator, allRolesTag, allRolesText)
}

// allRolesValidation checks that all the values in the field are valid roles.
func allRolesValidation(fl validator.FieldLevel) bool {
	roles, ok := fl.Field().Interface().([]string)
	if !ok {
		return false
	}
	sorted := make([]string, len(AllRoles))
	copy(sorted, AllRoles)
	sort.Strings(sorted)
	for _, role := range roles {
		i := sort.SearchStrings(sorted, role)
		if i >= len(sorted) || sorted[i] != role {
			return false
		}
	}
	return true
}
