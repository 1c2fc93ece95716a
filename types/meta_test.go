package types //nolint:revive // types is a valid package name

import (
	"testing"
)

func TestValidationMeta_Validate(t *testing.T) {
	tests := []struct {
		name    string
		meta    ValidationMeta
		wantErr bool
	}{
		{
			name:    "empty validation_id",
			meta:    ValidationMeta{ValidationID: "", Profile: ProfileBasic},
			wantErr: true,
		},
		{
			name:    "empty profile",
			meta:    ValidationMeta{ValidationID: "01ARZ3NDEKTSV4RRFFQ69G5FAV", Profile: ""},
			wantErr: true,
		},
		{
			name:    "valid",
			meta:    ValidationMeta{ValidationID: "01ARZ3NDEKTSV4RRFFQ69G5FAV", Profile: ProfileBasic},
			wantErr: false,
		},
		{
			name:    "unknown profile is allowed",
			meta:    ValidationMeta{ValidationID: "01ARZ3NDEKTSV4RRFFQ69G5FAV", Profile: Profile("experimental")},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.meta.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewValidationID(t *testing.T) {
	a := NewValidationID()
	b := NewValidationID()

	if len(a) != 26 {
		t.Errorf("ULID length = %d, want 26", len(a))
	}
	if a == b {
		t.Errorf("two generated IDs collided: %s", a)
	}
}
