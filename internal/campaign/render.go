package campaign

import (
	"strings"

	"github.com/brinecast/brinecast/internal/model"
)

// renderTemplate substitutes recipient placeholders into a campaign
// template. Unknown placeholders pass through untouched so typos show
// up in test sends instead of silently vanishing.
//
// Supported placeholders:
//
//	{first_name}    recipient first name
//	{last_name}     recipient last name
//	{name}          full name, falling back to "there"
//	{discount_code} assigned discount code, empty when the campaign
//	                carries none
func renderTemplate(template string, customer *model.Customer, discountCode string) string {
	name := customer.FullName()
	if name == "" {
		name = "there"
	}

	return strings.NewReplacer(
		"{first_name}", customer.FirstName,
		"{last_name}", customer.LastName,
		"{name}", name,
		"{discount_code}", discountCode,
	).Replace(template)
}
