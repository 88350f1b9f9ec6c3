package user

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-quiz/core"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

func TestNewUser_validation(t *testing.T) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	InitValidators(validate, translator)
	LoadCommonPasswords(nopLogger{})
	require.NotEmpty(t, commonPasswords)

	newUser := func(pwd string) NewUser {
		return NewUser{Name: "User", Username: "awe", Email: "awe@test.cd", Password: pwd, PasswordConfirm: pwd}
	}

	tests := []struct {
		name    string
		nu      NewUser
		wantErr map[string]string
	}{
		{
			name: "username or email required",
			nu:   NewUser{Name: "User", Password: "LolC@t123", PasswordConfirm: "LolC@t123"},
			wantErr: map[string]string{
				"username": usernameOrEmailText,
				"email":    usernameOrEmailText,
			},
		},
		{name: "min len", nu: newUser("lol"), wantErr: map[string]string{"password": pwdMinLenText}},
		{name: "no whitespace", nu: newUser("l o loll"), wantErr: map[string]string{"password": pwdNoSpaceText}},
		{name: "not all numeric", nu: newUser("12345678"), wantErr: map[string]string{"password": pwdNotAllNumText}},
		{name: "complexity", nu: newUser("lol12345"), wantErr: map[string]string{"password": pwdComplexityText}},
		{name: "too common", nu: newUser("P@$$w0rd"), wantErr: map[string]string{"password": pwdNoCommonText}},
		{
			name:    "too similar to username",
			nu:      NewUser{Name: "Hero", Username: "herohero1", Password: "Herohero1!", PasswordConfirm: "Herohero1!"},
			wantErr: map[string]string{"password": pwdAttrSimText},
		},
		{
			name:    "unknown role",
			nu:      NewUser{Name: "User", Username: "awe", Password: "LolC@t123", PasswordConfirm: "LolC@t123", Roles: []string{"lol"}},
			wantErr: map[string]string{"roles": allRolesText},
		},
		{name: "valid", nu: newUser("LolC@t123")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate.Struct(tt.nu)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			vErrs, ok := err.(validator.ValidationErrors)
			require.True(t, ok, "want validator.ValidationErrors, got %T", err)

			got := make(map[string]string, len(vErrs))
			for _, vErr := range vErrs {
				got[vErr.Field()] = vErr.Translate(translator)
			}
			assert.Equal(t, tt.wantErr, got)
		})
	}
}

func TestMaxRolePriority(t *testing.T) {
	assert.Equal(t, 0, MaxRolePriority(nil))
	assert.Equal(t, 1, MaxRolePriority([]string{RoleStudent}))
	assert.Equal(t, 29, MaxRolePriority([]string{RoleTeacher, RoleAdminPrincipal, RoleStudent}))

	usr := User{Roles: []string{RoleAdminOwner}}
	assert.True(t, usr.IsAdmin())
	assert.False(t, usr.IsTeacher())
	assert.False(t, usr.IsStudent())
}
