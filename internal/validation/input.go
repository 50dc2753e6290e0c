package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Validation limits.
const (
	MinUsernameLength     = 3
	MaxUsernameLength     = 30
	MinDisplayNameLength  = 2
	MaxDisplayNameLength  = 100
	MinProductLength      = 2
	MaxProductLength      = 200
	MaxCategoryLength     = 50
	MaxBioLength          = 1000
	MaxNeighborhoodLength = 100
	MaxAddressLength      = 300
	MaxInstructionsLength = 1000
	MinReasonLength       = 3
	MaxReasonLength       = 2000
	MinMessageLength      = 1
	MaxMessageLength      = 5000
	MaxQuantity           = 1000000.0
	MaxPointsPerUnit      = 1000000
	MinRating             = 1
	MaxRating             = 5
	MaxFeedbackLength     = 2000
)

// ValidateLength checks a string's rune count against bounds.
func ValidateLength(fieldName, value string, min, max int) error {
	length := utf8.RuneCountInString(value)
	if min > 0 && length < min {
		return fmt.Errorf("%s must be at least %d characters", fieldName, min)
	}
	if max > 0 && length > max {
		return fmt.Errorf("%s must be at most %d characters", fieldName, max)
	}
	return nil
}

// ValidateEmail checks the email format.
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email is required")
	}

	email = strings.ToLower(strings.TrimSpace(email))

	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return fmt.Errorf("invalid email format")
	}

	localPart := parts[0]
	domainPart := parts[1]

	if len(localPart) == 0 || len(localPart) > 64 {
		return fmt.Errorf("email local part must be between 1 and 64 characters")
	}
	if len(domainPart) == 0 || len(domainPart) > 255 {
		return fmt.Errorf("email domain must be between 1 and 255 characters")
	}

	localRegex := regexp.MustCompile(`^[a-z0-9._+-]+$`)
	if !localRegex.MatchString(localPart) {
		return fmt.Errorf("email local part contains invalid characters")
	}

	domainRegex := regexp.MustCompile(`^[a-z0-9.-]+\.[a-z]{2,}$`)
	if !domainRegex.MatchString(domainPart) {
		return fmt.Errorf("email domain has an invalid format")
	}

	return nil
}

// ValidateNonEmpty checks that a string is not blank.
func ValidateNonEmpty(fieldName, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}
	return nil
}

// ValidateUsername checks the username format.
func ValidateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("username is required")
	}

	username = strings.TrimSpace(username)

	if err := ValidateLength("username", username, MinUsernameLength, MaxUsernameLength); err != nil {
		return err
	}

	usernameRegex := regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	if !usernameRegex.MatchString(username) {
		return fmt.Errorf("username may only contain letters, digits and underscores")
	}

	if unicode.IsDigit(rune(username[0])) {
		return fmt.Errorf("username cannot start with a digit")
	}

	return nil
}

// ValidateDisplayName checks the display name.
func ValidateDisplayName(displayName string) error {
	if displayName == "" {
		return fmt.Errorf("display name is required")
	}

	displayName = strings.TrimSpace(displayName)

	return ValidateLength("display name", displayName, MinDisplayNameLength, MaxDisplayNameLength)
}

// ValidateBio checks the optional profile bio.
func ValidateBio(bio *string) error {
	return ValidateOptionalText("bio", bio, MaxBioLength)
}

// ValidateProduct checks the product name on an order.
func ValidateProduct(product string) error {
	if strings.TrimSpace(product) == "" {
		return fmt.Errorf("product is required")
	}
	return ValidateLength("product", strings.TrimSpace(product), MinProductLength, MaxProductLength)
}

// ValidateQuantity checks that the quantity is a positive, sane number.
func ValidateQuantity(quantity float64) error {
	if quantity <= 0 {
		return fmt.Errorf("quantity must be greater than zero")
	}
	if quantity > MaxQuantity {
		return fmt.Errorf("quantity cannot exceed %.0f", MaxQuantity)
	}
	return nil
}

// ValidatePointsPerUnit checks the unit price in points.
func ValidatePointsPerUnit(points int64) error {
	if points <= 0 {
		return fmt.Errorf("points per unit must be greater than zero")
	}
	if points > MaxPointsPerUnit {
		return fmt.Errorf("points per unit cannot exceed %d", MaxPointsPerUnit)
	}
	return nil
}

// ValidateRating checks a rating score.
func ValidateRating(score int) error {
	if score < MinRating || score > MaxRating {
		return fmt.Errorf("rating must be between %d and %d", MinRating, MaxRating)
	}
	return nil
}

// ValidateDisputeReason checks a dispute reason. An empty reason is rejected.
func ValidateDisputeReason(reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return fmt.Errorf("dispute reason is required")
	}
	return ValidateLength("dispute reason", reason, MinReasonLength, MaxReasonLength)
}

// ValidateMessageContent checks a chat message body.
func ValidateMessageContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("message cannot be empty")
	}
	return ValidateLength("message", strings.TrimSpace(content), MinMessageLength, MaxMessageLength)
}

// ValidateOptionalText checks an optional free-text field.
func ValidateOptionalText(fieldName string, value *string, max int) error {
	if value != nil && *value != "" {
		return ValidateLength(fieldName, strings.TrimSpace(*value), 0, max)
	}
	return nil
}
