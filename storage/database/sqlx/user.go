package sqlxrepos

import (
	"context"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/masomo-fees/core"
	"github.com/trezcool/masomo-fees/core/user"
)

const userColumns = `id, name, username, email, program, is_active, roles, password_hash, created_at, updated_at, last_login`

var userOrderings = map[string]bool{"name": true, "username": true, "email": true, "created_at": true, "last_login": true}

type userRow struct {
	ID           string         `db:"id"`
	Name         string         `db:"name"`
	Username     null.String    `db:"username"`
	Email        null.String    `db:"email"`
	Program      null.String    `db:"program"`
	IsActive     bool           `db:"is_active"`
	Roles        pq.StringArray `db:"roles"`
	PasswordHash null.Bytes     `db:"password_hash"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
	LastLogin    null.Time      `db:"last_login"`
}

type userRepository struct {
	repository
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor) *userRepository {
	return &userRepository{repository{exec: exec}}
}

func (repo userRepository) toRow(usr user.User) userRow {
	roles := usr.Roles
	if roles == nil {
		roles = []string{}
	}
	return userRow{
		ID:           usr.ID,
		Name:         usr.Name,
		Username:     null.NewString(usr.Username, usr.Username != ""),
		Email:        null.NewString(usr.Email, usr.Email != ""),
		Program:      null.NewString(usr.Program, usr.Program != ""),
		IsActive:     usr.Active(),
		Roles:        roles,
		PasswordHash: null.NewBytes(usr.PasswordHash, usr.PasswordHash != nil),
		CreatedAt:    usr.CreatedAt.UTC(),
		UpdatedAt:    usr.UpdatedAt.UTC(),
		LastLogin:    null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}
}

func (repo userRepository) fromRow(row userRow) user.User {
	usr := user.User{
		ID:           row.ID,
		Name:         row.Name,
		Username:     row.Username.String,
		Email:        row.Email.String,
		Program:      row.Program.String,
		Roles:        row.Roles,
		PasswordHash: row.PasswordHash.Bytes,
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
		LastLogin:    row.LastLogin.Time.UTC(),
	}
	usr.SetActive(row.IsActive)
	return usr
}

func (repo userRepository) fromRows(rows []userRow) []user.User {
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, repo.fromRow(row))
	}
	return users
}

func (repo userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	excluded := make(pq.StringArray, 0, len(excludedUsers))
	for _, u := range excludedUsers {
		excluded = append(excluded, u.ID)
	}

	rows, err := selectRows[userRow](ctx, repo.getExec(exec),
		`SELECT `+userColumns+` FROM "user"
		WHERE (username = :username OR email = :email) AND CAST(id AS TEXT) <> ALL(:excluded)`,
		map[string]interface{}{"username": username, "email": email, "excluded": excluded},
	)
	if err != nil {
		return errors.Wrap(err, "checking user uniqueness")
	}
	for _, row := range rows {
		switch {
		case username != "" && row.Username.String == username:
			return user.ErrUsernameExists
		case email != "" && row.Email.String == email:
			return user.ErrEmailExists
		}
	}
	if len(rows) > 0 {
		return user.ErrUserExists
	}
	return nil
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	if usr.ID == "" {
		usr.ID = newID()
	}
	row := repo.toRow(usr)
	_, err := execNamed(ctx, repo.getExec(exec),
		`INSERT INTO "user" (`+userColumns+`)
		VALUES (:id, :name, :username, :email, :program, :is_active, :roles, :password_hash, :created_at, :updated_at, :last_login)`,
		row,
	)
	if err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return repo.fromRow(row), nil
}

func (repo userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]user.User, error) {
	var where whereClause
	args := make(map[string]interface{})

	if filter != nil {
		// users with Name, Username or Email matching the search keyword
		if filter.Search != "" {
			where = append(where, "(name ILIKE :search OR username ILIKE :search OR email ILIKE :search)")
			args["search"] = "%" + filter.Search + "%"
		}
		// users with any role that starts with any of the provided roles
		if len(filter.Roles) > 0 {
			patterns := make(pq.StringArray, 0, len(filter.Roles))
			for _, role := range filter.Roles {
				patterns = append(patterns, role+"%")
			}
			where = append(where, "EXISTS (SELECT 1 FROM UNNEST(roles) user_role WHERE user_role ILIKE ANY(:roles))")
			args["roles"] = patterns
		}
		if filter.Program != "" {
			where = append(where, "LOWER(program) = :program")
			args["program"] = strings.ToLower(filter.Program)
		}
		if filter.IsActive != nil {
			where = append(where, "is_active = :is_active")
			args["is_active"] = *filter.IsActive
		}
		if !filter.CreatedFrom.IsZero() {
			where = append(where, "created_at >= :created_from")
			args["created_from"] = filter.CreatedFrom.UTC()
		}
		if !filter.CreatedTo.IsZero() {
			where = append(where, "created_at <= :created_to")
			args["created_to"] = filter.CreatedTo.UTC()
		}
	}

	query := `SELECT ` + userColumns + ` FROM "user"` + where.String() + orderBy(ordering, userOrderings, "created_at DESC")
	rows, err := selectRows[userRow](ctx, repo.getExec(exec), query, args)
	if err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	return repo.fromRows(rows), nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	var (
		cond string
		args = make(map[string]interface{})
	)

	switch {
	case filter.ID != "":
		if !isUUID(filter.ID) {
			return user.User{}, user.ErrNotFound
		}
		cond, args["id"] = "id = :id", filter.ID
	case filter.Username != "":
		cond, args["username"] = "username = :username", filter.Username
	case filter.Email != "":
		cond, args["email"] = "email = :email", filter.Email
	case len(filter.UsernameOrEmail) > 0:
		var email string
		uname := filter.UsernameOrEmail[0]
		if len(filter.UsernameOrEmail) == 2 {
			email = filter.UsernameOrEmail[1]
		}
		if email == "" {
			email = uname
		} else if uname == "" {
			uname = email
		}
		if uname == "" {
			return user.User{}, user.ErrNotFound
		}
		cond, args["username"], args["email"] = "(username = :username OR email = :email)", uname, email
	default:
		return user.User{}, user.ErrNotFound
	}

	row, err := getRow[userRow](ctx, repo.getExec(exec), `SELECT `+userColumns+` FROM "user" WHERE `+cond+` LIMIT 1`, args)
	if err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "finding user")
	}
	return repo.fromRow(row), nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	row := repo.toRow(usr)
	res, err := execNamed(ctx, repo.getExec(exec),
		`UPDATE "user" SET name = :name, username = :username, email = :email, program = :program,
		is_active = :is_active, roles = :roles, password_hash = :password_hash, updated_at = :updated_at,
		last_login = :last_login
		WHERE id = :id`,
		row,
	)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return repo.fromRow(row), nil
}

func (repo userRepository) UpdateOrCreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	if usr.ID == "" {
		return repo.CreateUser(ctx, usr, exec...)
	}
	return repo.UpdateUser(ctx, usr, exec...)
}
