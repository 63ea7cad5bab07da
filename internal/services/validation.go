package services

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/storefront/ecommerce-go-app/internal/apperr"
	"github.com/storefront/ecommerce-go-app/internal/models"
)

var (
	personNameRe   = regexp.MustCompile(`^[A-Za-z\s'-]+$`)
	usernameRe     = regexp.MustCompile(`^[a-z][a-z0-9]*$`)
	phoneRe        = regexp.MustCompile(`^\+[0-9]+$`)
	emailRe        = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)
	placeRe        = regexp.MustCompile(`^[A-Za-z\s\-.']+$`)
	productNameRe  = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9\s&,.()-]*[A-Za-z0-9).]$`)
	productDescrRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9\s,.!?()&$#@%*+\-"':]*[A-Za-z0-9.!?)]$`)
	categoryNameRe = regexp.MustCompile(`^[a-zA-Z0-9-_ ]+$`)
)

const passwordSymbols = "!@#$%^&*()_+-=[]{};:'\",.<>/?\\|`~"

const defaultCategoryDescription = "No description."

// fieldCheck validates one field and returns the message for the first violation.
type fieldCheck struct {
	field string
	value string
	re    *regexp.Regexp
	min   int
	max   int
	msg   string
}

func (c fieldCheck) check(op string) error {
	n := utf8.RuneCountInString(c.value)
	if n < c.min {
		return apperr.Validation(op, "%s should be equal or more than %d symbols.", c.field, c.min)
	}
	if c.max > 0 && n > c.max {
		return apperr.Validation(op, "%s shouldn't be more than %d symbols.", c.field, c.max)
	}
	if c.re != nil && !c.re.MatchString(c.value) {
		return apperr.Validation(op, "%s: %s", c.field, c.msg)
	}
	return nil
}

func runChecks(op string, checks ...fieldCheck) error {
	for _, c := range checks {
		if err := c.check(op); err != nil {
			return err
		}
	}
	return nil
}

func firstNameCheck(v string) fieldCheck {
	return fieldCheck{"First name", v, personNameRe, 1, 50, "Only english letters and spaces allowed."}
}

func lastNameCheck(v string) fieldCheck {
	return fieldCheck{"Last name", v, personNameRe, 1, 50, "Only english letters and spaces allowed."}
}

func usernameCheck(v string) fieldCheck {
	return fieldCheck{"Username", v, usernameRe, 4, 16, "Only lowercase english letters and numbers allowed."}
}

func phoneCheck(v string) fieldCheck {
	return fieldCheck{"Phone number", v, phoneRe, 10, 15, "Only '+' and numbers allowed."}
}

func emailCheck(v string) fieldCheck {
	return fieldCheck{"Email", v, emailRe, 5, 254, "Email is not correct."}
}

func placeCheck(field, v string) fieldCheck {
	return fieldCheck{field, v, placeRe, 1, 100, "Only english letters and spaces allowed."}
}

// validatePassword requires at least 8 symbols with an upper case letter, a
// lower case letter, a digit and a special symbol, and nothing else.
func validatePassword(op, password string) error {
	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case unicode.IsDigit(r) && r < unicode.MaxASCII:
			digit = true
		case strings.ContainsRune(passwordSymbols, r):
			symbol = true
		default:
			return apperr.Validation(op, "Password contains a symbol that is not allowed.")
		}
	}
	if len(password) < 8 || !upper || !lower || !digit || !symbol {
		return apperr.Validation(op, "Password must be at least 8 symbols (min. 1 uppercase letter, min. 1 lowercase, min. 1 number, min. 1 special symbol)")
	}
	return nil
}

func validateHouse(op string, house int) error {
	if house < 1 {
		return apperr.Validation(op, "House number must be 1 or more.")
	}
	return nil
}

func validateApartment(op string, apartment *int) error {
	if apartment != nil && *apartment < 1 {
		return apperr.Validation(op, "Apartment number must be 1 or more.")
	}
	return nil
}

func validateRole(op string, role models.Role) error {
	if role != models.RoleUser && role != models.RoleAdmin {
		return apperr.Validation(op, "Role must be %q or %q.", models.RoleUser, models.RoleAdmin)
	}
	return nil
}

func validateRegister(op string, req *models.RegisterRequest) error {
	if err := runChecks(op,
		firstNameCheck(req.FirstName),
		lastNameCheck(req.LastName),
		usernameCheck(req.Username),
		phoneCheck(req.Phone),
		emailCheck(req.Email),
		placeCheck("Country", req.Country),
		placeCheck("City", req.City),
		placeCheck("Street", req.Street),
	); err != nil {
		return err
	}
	if err := validatePassword(op, req.Password); err != nil {
		return err
	}
	if err := validateHouse(op, req.House); err != nil {
		return err
	}
	return validateApartment(op, req.Apartment)
}

func validateProductName(op, name string) error {
	return fieldCheck{"Name", name, productNameRe, 3, 100, "Only english letters, numbers, spaces and basic punctuation allowed."}.check(op)
}

func validateProductDescription(op, descr string) error {
	return fieldCheck{"Description", descr, productDescrRe, 10, 1000, "Only english letters, numbers, spaces and basic punctuation allowed."}.check(op)
}

func validatePrice(op string, price decimal.Decimal) error {
	if !price.IsPositive() {
		return apperr.Validation(op, "Price must be greater than 0.")
	}
	if price.LessThan(decimal.New(1, -2)) {
		return apperr.Validation(op, "Price must be at least 0.01.")
	}
	return nil
}

func validateStock(op string, quantity int) error {
	if quantity < 0 {
		return apperr.Validation(op, "Quantity must be 0 or more.")
	}
	return nil
}

func validateCategoryName(op, name string) error {
	return fieldCheck{"Name", name, categoryNameRe, 1, 100, "Only english letters, numbers, spaces, '-' and '_' allowed."}.check(op)
}

func validateAmount(op string, amount int) error {
	if amount < 1 {
		return apperr.Validation(op, "Amount must be a positive integer.")
	}
	return nil
}
