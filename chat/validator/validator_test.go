package validator

import (
	"testing"
)

func TestValidator_ValidateStruct(t *testing.T) {
	type payload struct {
		Message     string `validate:"required"`
		RecipientID int    `validate:"required,gt=0"`
		Theme       string `validate:"omitempty,oneof=auto dark light"`
	}

	v := New()

	tests := []struct {
		name    string
		input   payload
		wantErr bool
		fields  []string
	}{
		{
			name: "Valid",
			input: payload{
				Message:     "hi",
				RecipientID: 2,
				Theme:       "dark",
			},
		},
		{
			name:    "MissingRequired",
			input:   payload{Theme: "dark"},
			wantErr: true,
			fields:  []string{"Message", "RecipientID"},
		},
		{
			name: "BadEnum",
			input: payload{
				Message:     "hi",
				RecipientID: 2,
				Theme:       "sepia",
			},
			wantErr: true,
			fields:  []string{"Theme"},
		},
		{
			name: "NegativeRecipient",
			input: payload{
				Message:     "hi",
				RecipientID: -1,
			},
			wantErr: true,
			fields:  []string{"RecipientID"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := v.ValidateStruct(tt.input)

			if tt.wantErr && len(errs) == 0 {
				t.Fatal("ValidateStruct() expected errors but got none")
			}
			if !tt.wantErr && len(errs) > 0 {
				t.Fatalf("ValidateStruct() got unexpected errors: %v", errs)
			}

			for _, want := range tt.fields {
				found := false
				for _, err := range errs {
					if err.Field == want {
						found = true
						break
					}
				}
				if !found {
					t.Errorf("Expected validation error for field %s, but got none", want)
				}
			}
		})
	}
}

func TestNew(t *testing.T) {
	v := New()
	if v == nil || v.cli == nil {
		t.Error("New() returned invalid validator")
	}
}
