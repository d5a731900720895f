package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xzegga/ait-saas-sso/pkg/idperr"
)

type signUpInput struct {
	Email     string `validate:"idp_email" msg:"Invalid email address"`
	Password  string `validate:"min=6" msg:"Password must be at least 6 characters"`
	FullName  string `validate:"notblank" msg:"Full name is required"`
	ProductID string `validate:"required" msg:"Product ID is required"`
}

type untagged struct {
	Name  string `validate:"required"`
	Tier  string `validate:"oneof=free pro"`
	Owner string `validate:"omitempty,uuid"`
}

func TestIsValidEmail(t *testing.T) {
	tests := []struct {
		email string
		want  bool
	}{
		{"ada@example.com", true},
		{"a.b+tag@sub.example.co", true},
		{"", false},
		{"ada", false},
		{"ada@example", false},
		{"ada @example.com", false},
		{"@example.com", false},
		{"ada@@example.com", false},
	}
	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidEmail(tt.email))
		})
	}
}

func TestStruct_FirstFailureWins(t *testing.T) {
	tests := []struct {
		name  string
		input signUpInput
		want  string
	}{
		{"bad email", signUpInput{Email: "nope", Password: "x"}, MsgInvalidEmail},
		{"short password", signUpInput{Email: "ada@example.com", Password: "12345"}, MsgPasswordTooShort},
		{"blank name", signUpInput{Email: "ada@example.com", Password: "123456", FullName: "   "}, MsgFullNameRequired},
		{"missing product", signUpInput{Email: "ada@example.com", Password: "123456", FullName: "Ada"}, MsgProductRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Struct(tt.input)
			require.Error(t, err)
			assert.ErrorIs(t, err, idperr.ErrValidation)
			assert.Equal(t, tt.want, err.Error())
		})
	}

	assert.NoError(t, Struct(signUpInput{Email: "ada@example.com", Password: "123456", FullName: "Ada", ProductID: "p1"}))
}

func TestStruct_GenericMessages(t *testing.T) {
	err := Struct(untagged{Tier: "free"})
	require.Error(t, err)
	assert.Equal(t, "Name is required", err.Error())

	err = Struct(untagged{Name: "x", Tier: "gold"})
	require.Error(t, err)
	assert.Equal(t, "Tier must be one of: free pro", err.Error())

	err = Struct(untagged{Name: "x", Tier: "pro", Owner: "not-a-uuid"})
	require.Error(t, err)
	assert.Equal(t, "Owner must be a UUID", err.Error())
}

func TestEmailAndPassword(t *testing.T) {
	assert.NoError(t, Email("ada@example.com"))
	assert.Equal(t, MsgInvalidEmail, Email("bad").Error())

	assert.NoError(t, Password("123456"))
	err := Password("12345")
	require.Error(t, err)
	assert.ErrorIs(t, err, idperr.ErrValidation)
	assert.Equal(t, MsgPasswordTooShort, err.Error())
}
