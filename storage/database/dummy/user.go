package dummydb

import (
	"context"

	"github.com/google/uuid"

	"github.com/trezcool/masomo-quiz/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) *userRepository {
	return &userRepository{db: db}
}

func (repo *userRepository) CheckUsernameUniqueness(_ context.Context, username, email string, excludedUsers ...user.User) error {
	var err error
	repo.db.read(func(t *tables) {
		err = checkUniqueness(t, username, email, excludedUsers)
	})
	return err
}

func checkUniqueness(t *tables, username, email string, excludedUsers []user.User) error {
	excluded := make(map[string]bool, len(excludedUsers))
	for _, u := range excludedUsers {
		excluded[u.ID] = true
	}
	for _, usr := range t.user {
		if excluded[usr.ID] {
			continue
		}
		if username != "" && usr.Username == username {
			return user.ErrUsernameExists
		}
		if email != "" && usr.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	err := repo.db.write(func(t *tables) error {
		if err := checkUniqueness(t, usr.Username, usr.Email, nil); err != nil {
			return err
		}
		usr.ID = uuid.New().String()
		t.user[usr.ID] = cloneUser(usr)
		return nil
	})
	if err != nil {
		return user.User{}, err
	}
	return usr, nil
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter) (user.User, error) {
	var (
		found user.User
		ok    bool
	)
	repo.db.read(func(t *tables) {
		if filter.ID != "" {
			found, ok = t.user[filter.ID]
			return
		}
		for _, usr := range t.user {
			switch {
			case filter.Username != "":
				ok = usr.Username == filter.Username
			case filter.Email != "":
				ok = usr.Email == filter.Email
			case filter.UsernameOrEmail != "":
				ok = usr.Username == filter.UsernameOrEmail || usr.Email == filter.UsernameOrEmail
			}
			if ok {
				found = usr
				return
			}
		}
	})
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return cloneUser(found), nil
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	err := repo.db.write(func(t *tables) error {
		if _, ok := t.user[usr.ID]; !ok {
			return user.ErrNotFound
		}
		t.user[usr.ID] = cloneUser(usr)
		return nil
	})
	if err != nil {
		return user.User{}, err
	}
	return usr, nil
}

func (repo *userRepository) UpdateOrCreateUser(ctx context.Context, usr user.User) (user.User, error) {
	if usr.ID == "" {
		return repo.CreateUser(ctx, usr)
	}
	return repo.UpdateUser(ctx, usr)
}
