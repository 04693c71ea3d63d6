package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"syscall"

	"golang.org/x/term"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/attendance"
	"github.com/trezcool/shule/core/report"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/storage/database"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	conf    *core.Config
	repos   *database.Repositories
	usrSvc  *user.Service
	issuer  *attendance.Issuer
	reports *report.Service
	out     io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  adduser -name NAME -email EMAIL [-role admin|teacher|student] - create (or reactivate) a user, the password is prompted next")
	fmt.Println("  resetpassword -email EMAIL - reset user's password")
	fmt.Println("  migrate COMMAND [ARGS] - run a goose command (up, up-by-one, up-to, down, down-to, redo, reset, status, version, create, fix)")
	fmt.Println("  export [-class ID] [-subject ID] [-teacher ID] [-o FILE] - export the attendance & grades report as CSV")
	fmt.Println("  sweeptokens - deactivate the expired attendance tokens")
}

func (cli *commandLine) promptPassword() (string, error) {
	fmt.Print("Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ExitOnError)
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	addUserEmail := addUserCmd.String("email", "", "The user's email. The password will be prompted next.")
	addUserRole := addUserCmd.String("role", user.RoleAdmin, "The user's role: admin, teacher or student.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ExitOnError)
	resetPasswordEmail := resetPasswordCmd.String("email", "", "The user's email. The password will be prompted next.")

	exportCmd := flag.NewFlagSet("export", flag.ExitOnError)
	exportClass := exportCmd.String("class", "", "Only report on this class.")
	exportSubject := exportCmd.String("subject", "", "Only report on this subject.")
	exportTeacher := exportCmd.String("teacher", "", "Only report on the lessons of this teacher.")
	exportOutput := exportCmd.String("o", "", "Write the CSV to this file instead of stdout.")

	switch args[1] {
	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserName == "" || *addUserEmail == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(*addUserName, *addUserEmail, *addUserRole, pwd)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordEmail == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordEmail, pwd)

	case "migrate":
		if len(args) < 3 {
			fmt.Println("Usage: migrate COMMAND [ARGS]")
			return errHelp
		}
		return cli.migrate(args[2:])

	case "export":
		if err := exportCmd.Parse(args[2:]); err != nil {
			return err
		}
		filter := report.Filter{ClassID: *exportClass, SubjectID: *exportSubject, TeacherID: *exportTeacher}
		if *exportOutput == "" {
			return cli.export(filter, cli.out)
		}
		file, err := os.Create(*exportOutput)
		if err != nil {
			return err
		}
		if err = cli.export(filter, file); err != nil {
			_ = file.Close()
			return err
		}
		return file.Close()

	case "sweeptokens":
		return cli.sweepTokens()

	default:
		cli.printUsage()
		return errHelp
	}
}

// addUser creates an active user, or reactivates the one owning the email with the new password.
func (cli *commandLine) addUser(name, email, role, pwd string) error {
	ctx := context.Background()

	usr, err := cli.usrSvc.GetByEmail(ctx, email)
	if err != nil {
		if !core.IsNotFound(err) {
			return err
		}
		usr, err = cli.usrSvc.Create(ctx, user.NewUser{
			Name:            name,
			Email:           email,
			Role:            role,
			Password:        pwd,
			PasswordConfirm: pwd,
		})
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cli.out, "created %s %s (%s)\n", usr.Role, usr.Email, usr.ID)
		return nil
	}

	if _, err = cli.usrSvc.Update(ctx, usr.ID, user.UpdateUser{
		Name:     name,
		IsActive: core.BoolPtr(true),
		Password: pwd,
	}); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cli.out, "updated %s %s (%s)\n", usr.Role, usr.Email, usr.ID)
	return nil
}

func (cli *commandLine) resetPassword(email, pwd string) error {
	ctx := context.Background()
	usr, err := cli.usrSvc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	_, err = cli.usrSvc.Update(ctx, usr.ID, user.UpdateUser{Password: pwd})
	return err
}

func (cli *commandLine) export(filter report.Filter, w io.Writer) error {
	rows, err := cli.reports.Generate(context.Background(), filter)
	if err != nil {
		return err
	}
	return report.WriteCSV(w, rows)
}

func (cli *commandLine) sweepTokens() error {
	n, err := cli.issuer.SweepExpired(context.Background())
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cli.out, "deactivated %d expired token(s)\n", n)
	return nil
}
