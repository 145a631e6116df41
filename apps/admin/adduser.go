package main

import (
	"context"
	"time"

	"github.com/trezcool/masomo-fees/core"
	"github.com/trezcool/masomo-fees/core/user"
)

type newUserArgs struct {
	name, uname, email, program, password string
	isAdmin                               bool
}

// addUser updates or creates a user.User
func (cli *commandLine) addUser(args newUserArgs) error {
	var usr user.User
	var err error
	ctx := context.Background()
	uname := core.CleanString(args.uname, true /* lower */)
	email := core.CleanString(args.email, true /* lower */)

	if usr, err = cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: []string{uname, email}}); err != nil {
		if !core.IsNotFound(err) {
			return err
		}
		usr = user.User{
			Username:  uname,
			Email:     email,
			CreatedAt: time.Now().UTC(),
		}
	}
	usr.Name = core.CleanString(args.name)
	if program := core.CleanString(args.program); program != "" {
		usr.Program = program
		usr.Roles = appendRole(usr.Roles, user.RoleStudent)
	}
	if args.isAdmin {
		usr.Roles = user.AllRoles
	}
	usr.SetActive(true)
	if err := usr.SetPassword(args.password); err != nil {
		return err
	}
	usr.UpdatedAt = time.Now().UTC()
	if _, err := cli.usrRepo.UpdateOrCreateUser(ctx, usr); err != nil {
		return err
	}
	return nil
}

func appendRole(roles []string, role string) []string {
	for _, r := range roles {
		if r == role {
			return roles
		}
	}
	return append(roles, role)
}
