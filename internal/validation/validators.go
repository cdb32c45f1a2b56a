package validation

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/benvon/family-planner/internal/models"
	"github.com/go-playground/validator/v10"
)

// ISODateLayout is the calendar date format used for itinerary days
const ISODateLayout = "2006-01-02"

var (
	// Validate is a shared validator instance
	Validate *validator.Validate
)

func init() {
	Validate = validator.New()

	// Register custom validators for enums
	if err := Validate.RegisterValidation("activity_status", validateActivityStatus); err != nil {
		panic(fmt.Sprintf("failed to register activity_status validator: %v", err))
	}
	if err := Validate.RegisterValidation("iso_date", validateISODate); err != nil {
		panic(fmt.Sprintf("failed to register iso_date validator: %v", err))
	}
	if err := Validate.RegisterValidation("category", validateCategory); err != nil {
		panic(fmt.Sprintf("failed to register category validator: %v", err))
	}
	if err := Validate.RegisterValidation("member_role", validateMemberRole); err != nil {
		panic(fmt.Sprintf("failed to register member_role validator: %v", err))
	}
}

func validateActivityStatus(fl validator.FieldLevel) bool {
	return models.ActivityStatus(fl.Field().String()).Valid()
}

// validateISODate accepts YYYY-MM-DD; empty values are left to omitempty/required
func validateISODate(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	_, err := time.Parse(ISODateLayout, value)
	return err == nil
}

func validateCategory(fl validator.FieldLevel) bool {
	return models.Category(fl.Field().String()).Valid()
}

func validateMemberRole(fl validator.FieldLevel) bool {
	switch models.MemberRole(fl.Field().String()) {
	case models.RoleOwner, models.RoleEditor, models.RoleViewer:
		return true
	default:
		return false
	}
}

// SanitizeText sanitizes text input by trimming whitespace and removing control characters
func SanitizeText(text string) string {
	text = strings.TrimSpace(text)

	// Remove control characters except newline and tab
	var sanitized strings.Builder
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sanitized.WriteRune(r)
	}

	return sanitized.String()
}

// ValidateActivityStatus validates an ActivityStatus string value
func ValidateActivityStatus(value string) error {
	if !models.ActivityStatus(value).Valid() {
		return fmt.Errorf("invalid status: %s (must be 'none', 'want', or 'done')", value)
	}
	return nil
}

// FieldErrors flattens validator errors into "field: tag" messages
func FieldErrors(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}
