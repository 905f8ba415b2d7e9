package campaign

import (
	"testing"

	"github.com/brinecast/brinecast/internal/model"
)

func TestRenderTemplate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		template string
		customer *model.Customer
		code     string
		want     string
	}{
		{
			name:     "first name",
			template: "Hi {first_name}, new batch in stock!",
			customer: &model.Customer{FirstName: "Morty", LastName: "Briner"},
			want:     "Hi Morty, new batch in stock!",
		},
		{
			name:     "full name",
			template: "Dear {name},",
			customer: &model.Customer{FirstName: "Morty", LastName: "Briner"},
			want:     "Dear Morty Briner,",
		},
		{
			name:     "name falls back to there",
			template: "Hey {name}!",
			customer: &model.Customer{},
			want:     "Hey there!",
		},
		{
			name:     "discount code",
			template: "Use code {discount_code} at checkout",
			customer: &model.Customer{},
			code:     "BRINE15",
			want:     "Use code BRINE15 at checkout",
		},
		{
			name:     "empty discount code",
			template: "Code: {discount_code}",
			customer: &model.Customer{},
			want:     "Code: ",
		},
		{
			name:     "unknown placeholder passes through",
			template: "Hi {nickname}",
			customer: &model.Customer{FirstName: "Morty"},
			want:     "Hi {nickname}",
		},
		{
			name:     "all placeholders",
			template: "{first_name} {last_name} / {name} / {discount_code}",
			customer: &model.Customer{FirstName: "Morty", LastName: "Briner"},
			code:     "BRINE20",
			want:     "Morty Briner / Morty Briner / BRINE20",
		},
		{
			name:     "no placeholders",
			template: "Plain message",
			customer: &model.Customer{FirstName: "Morty"},
			want:     "Plain message",
		},
		{
			name:     "repeated placeholder",
			template: "{first_name} {first_name}",
			customer: &model.Customer{FirstName: "Morty"},
			want:     "Morty Morty",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := renderTemplate(tt.template, tt.customer, tt.code)
			if got != tt.want {
				t.Errorf("renderTemplate() = %q, want %q", got, tt.want)
			}
		})
	}
}
