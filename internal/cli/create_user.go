package cli

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/mrlokans/libmanage/internal/entities"
	"github.com/mrlokans/libmanage/internal/entrypoint"
)

// CreateUserCommand creates an account with a chosen role.
type CreateUserCommand struct {
	Username     string
	Email        string
	Role         string
	DatabasePath string

	// readPassword is swapped in tests.
	readPassword func() (string, error)
	out          io.Writer
}

func NewCreateUserCommand() *CreateUserCommand {
	return &CreateUserCommand{
		readPassword: promptPassword,
		out:          os.Stdout,
	}
}

func (cmd *CreateUserCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("create-user", flag.ExitOnError)

	fs.StringVar(&cmd.Username, "username", "", "Username for the new account")
	fs.StringVar(&cmd.Email, "email", "", "Email address for the new account")
	fs.StringVar(&cmd.Role, "role", string(entities.UserRoleUser), "Role: admin, manager or user")
	fs.StringVar(&cmd.DatabasePath, "db", "", "Path to the SQLite database (defaults to DATABASE_PATH)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s create-user -username NAME -email EMAIL [-role ROLE]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Create an account. The password is read from the terminal,\n")
		fmt.Fprintf(os.Stderr, "or from the first line of stdin when it is not a terminal.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if cmd.Username == "" || cmd.Email == "" {
		return fmt.Errorf("both -username and -email are required")
	}
	if !entities.UserRole(cmd.Role).Valid() {
		return fmt.Errorf("invalid role %q: expected admin, manager or user", cmd.Role)
	}
	return nil
}

func (cmd *CreateUserCommand) Run() error {
	password, err := cmd.readPassword()
	if err != nil {
		return err
	}

	app, err := openApp(cmd.DatabasePath)
	if err != nil {
		return err
	}
	defer app.Close()

	return cmd.create(context.Background(), app, password)
}

func (cmd *CreateUserCommand) create(ctx context.Context, app *entrypoint.App, password string) error {
	user, err := app.Auth.CreateUser(ctx, cmd.Username, cmd.Email, password, entities.UserRole(cmd.Role))
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	app.Audit.Record(ctx, &entities.AuditEvent{
		EventType:   entities.AuditEventUsers,
		Action:      "user_create",
		Description: fmt.Sprintf("Created %s %s from the command line", user.Role, user.Username),
		EntityType:  "user",
		EntityID:    &user.ID,
	})
	fmt.Fprintf(cmd.out, "Created %s %q (id %d)\n", user.Role, user.Username, user.ID)
	return nil
}

func promptPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("read password: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	fmt.Fprint(os.Stderr, "Password: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	fmt.Fprint(os.Stderr, "Confirm password: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	if string(first) != string(second) {
		return "", fmt.Errorf("passwords do not match")
	}
	return string(first), nil
}
