package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"syscall"

	"golang.org/x/term"

	"github.com/trezcool/masomo-fees/core"
	"github.com/trezcool/masomo-fees/core/fee"
	"github.com/trezcool/masomo-fees/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	conf    *core.Config
	db      *sql.DB
	usrRepo user.Repository
	feeSvc  *fee.Service
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS] - run database migrations (up, down, status, ...)")
	fmt.Println("  adduser -name NAME -username USERNAME -email EMAIL [-program PROGRAM] [-admin] - create or update a user")
	fmt.Println("  resetpassword -username USERNAME|EMAIL - reset user's password")
	fmt.Println("  importfees -file CATALOGUE.yaml - create the fee heads and structures listed in a catalogue")
	fmt.Println("  assignfees -structure ID - assign a fee structure to every active student of its program")
	fmt.Println("  exportledger -out FILE.xlsx [-program PROGRAM] - export the fee ledger to a spreadsheet")
}

func (cli *commandLine) promptPassword(usage func()) (string, error) {
	fmt.Print("Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		usage()
		return "", errHelp
	}
	return string(pwd), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	addUserUname := addUserCmd.String("username", "", "The user's username.")
	addUserEmail := addUserCmd.String("email", "", "The user's email. The password will be prompted next.")
	addUserProgram := addUserCmd.String("program", "", "Enrol the user as a student of this program.")
	addUserAdmin := addUserCmd.Bool("admin", false, "Grant every role to the user.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")

	importFeesCmd := flag.NewFlagSet("importfees", flag.ContinueOnError)
	importFeesFile := importFeesCmd.String("file", "", "Path to a YAML fee catalogue.")

	assignFeesCmd := flag.NewFlagSet("assignfees", flag.ContinueOnError)
	assignFeesStructure := assignFeesCmd.String("structure", "", "ID of the fee structure to assign.")

	exportLedgerCmd := flag.NewFlagSet("exportledger", flag.ContinueOnError)
	exportLedgerOut := exportLedgerCmd.String("out", "", "Path of the spreadsheet to write.")
	exportLedgerProgram := exportLedgerCmd.String("program", "", "Only export fees of this program.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserName == "" || (*addUserUname == "" && *addUserEmail == "") {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword(addUserCmd.Usage)
		if err != nil {
			return err
		}
		return cli.addUser(newUserArgs{
			name:     *addUserName,
			uname:    *addUserUname,
			email:    *addUserEmail,
			program:  *addUserProgram,
			password: pwd,
			isAdmin:  *addUserAdmin,
		})

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword(resetPasswordCmd.Usage)
		if err != nil {
			return err
		}
		return cli.resetPassword(*resetPasswordUname, pwd)

	case "importfees":
		if err := importFeesCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *importFeesFile == "" {
			importFeesCmd.Usage()
			return errHelp
		}
		return cli.importFees(*importFeesFile)

	case "assignfees":
		if err := assignFeesCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *assignFeesStructure == "" {
			assignFeesCmd.Usage()
			return errHelp
		}
		return cli.assignFees(*assignFeesStructure)

	case "exportledger":
		if err := exportLedgerCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *exportLedgerOut == "" {
			exportLedgerCmd.Usage()
			return errHelp
		}
		return cli.exportLedger(*exportLedgerOut, *exportLedgerProgram)

	default:
		cli.printUsage()
		return errHelp
	}
}
