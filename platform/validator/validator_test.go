package validator

import "testing"

type contact struct {
	Name    string `validate:"required"`
	Email   string `validate:"required_without=Phone"`
	Phone   string `validate:"required_without=Email"`
	Zipcode string `validate:"omitempty,zipcode"`
}

func TestStructRequiredWithout(t *testing.T) {
	v := New()

	if err := v.Struct(contact{Name: "Ann", Email: "a@x.com"}); err != nil {
		t.Fatalf("email only should pass: %v", err)
	}
	if err := v.Struct(contact{Name: "Ann", Phone: "5551234567"}); err != nil {
		t.Fatalf("phone only should pass: %v", err)
	}

	err := v.Struct(contact{Name: "Ann"})
	if err == nil {
		t.Fatal("expected error when both email and phone are missing")
	}
	fields := FieldErrors(err)
	if fields["email"] == "" || fields["phone"] == "" {
		t.Fatalf("expected email and phone field errors, got %v", fields)
	}
}

func TestZipcodeRule(t *testing.T) {
	v := New()
	for _, zip := range []string{"75001", "75001-1234"} {
		if err := v.Var(zip, "zipcode"); err != nil {
			t.Errorf("zip %q should be valid: %v", zip, err)
		}
	}
	for _, zip := range []string{"7500", "ABCDE", "75001-12"} {
		if err := v.Var(zip, "zipcode"); err == nil {
			t.Errorf("zip %q should be invalid", zip)
		}
	}
}
