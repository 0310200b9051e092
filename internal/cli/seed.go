package cli

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mrlokans/libmanage/internal/auth"
	"github.com/mrlokans/libmanage/internal/catalog"
	"github.com/mrlokans/libmanage/internal/database/users"
	"github.com/mrlokans/libmanage/internal/entities"
	"github.com/mrlokans/libmanage/internal/entrypoint"
)

type demoAccount struct {
	username string
	email    string
	role     entities.UserRole
}

var demoAccounts = []demoAccount{
	{"admin", "admin@libmanage.local", entities.UserRoleAdmin},
	{"manager", "manager@libmanage.local", entities.UserRoleManager},
	{"user", "user@libmanage.local", entities.UserRoleUser},
}

// SeedCommand creates one demo account per role and a small starter catalog.
// Existing accounts and a non-empty catalog are left untouched.
type SeedCommand struct {
	DatabasePath string
	Password     string
	SkipCatalog  bool

	out io.Writer
}

func NewSeedCommand() *SeedCommand {
	return &SeedCommand{out: os.Stdout}
}

func (cmd *SeedCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)

	fs.StringVar(&cmd.DatabasePath, "db", "", "Path to the SQLite database (defaults to DATABASE_PATH)")
	fs.StringVar(&cmd.Password, "password", os.Getenv("SEED_PASSWORD"), "Password for every demo account (random per account if empty)")
	fs.BoolVar(&cmd.SkipCatalog, "skip-catalog", false, "Only create the demo accounts")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s seed [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Create admin, manager and user demo accounts and a starter catalog.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if cmd.Password != "" {
		return auth.ValidatePassword(cmd.Password)
	}
	return nil
}

func (cmd *SeedCommand) Run() error {
	app, err := openApp(cmd.DatabasePath)
	if err != nil {
		return err
	}
	defer app.Close()

	return cmd.seed(context.Background(), app)
}

func (cmd *SeedCommand) seed(ctx context.Context, app *entrypoint.App) error {
	if missing := app.MissingPlaceholders(); len(missing) > 0 {
		fmt.Fprintf(cmd.out, "WARNING: placeholder images missing under %s:\n", app.Files.Root())
		for _, p := range missing {
			fmt.Fprintf(cmd.out, "  %s\n", p)
		}
	}

	if err := cmd.seedAccounts(ctx, app); err != nil {
		return err
	}
	if cmd.SkipCatalog {
		return nil
	}
	return cmd.seedCatalog(ctx, app)
}

func (cmd *SeedCommand) seedAccounts(ctx context.Context, app *entrypoint.App) error {
	for _, acc := range demoAccounts {
		_, err := app.Users.GetUserByUsername(ctx, acc.username)
		if err == nil {
			fmt.Fprintf(cmd.out, "Account %q already exists, skipping\n", acc.username)
			continue
		}
		if !errors.Is(err, users.ErrUserNotFound) {
			return fmt.Errorf("look up %s: %w", acc.username, err)
		}

		password := cmd.Password
		if password == "" {
			if password, err = randomPassword(); err != nil {
				return err
			}
		}
		if _, err := app.Auth.CreateUser(ctx, acc.username, acc.email, password, acc.role); err != nil {
			return fmt.Errorf("create %s: %w", acc.username, err)
		}
		fmt.Fprintf(cmd.out, "Created %-7s %-8s password: %s\n", acc.role, acc.username, password)
	}
	return nil
}

func (cmd *SeedCommand) seedCatalog(ctx context.Context, app *entrypoint.App) error {
	var publishers int64
	if err := app.DB.DB.WithContext(ctx).Model(&entities.Publisher{}).Count(&publishers).Error; err != nil {
		return fmt.Errorf("count publishers: %w", err)
	}
	if publishers > 0 {
		fmt.Fprintln(cmd.out, "Catalog is not empty, skipping")
		return nil
	}

	zahari, err := app.Publishers.Create(ctx, catalog.PublisherInput{
		Name:        "Zahari Stoyanov",
		Country:     "BG",
		Website:     "https://zstoyanov.com",
		Description: "Bulgarian publishing house founded in 1997, known for national classics and contemporary authors.",
	})
	if err != nil {
		return err
	}
	pleiad, err := app.Publishers.Create(ctx, catalog.PublisherInput{
		Name:        "Pleiad Books",
		Country:     "BG",
		Website:     "https://pleiadbooks.com",
		Description: "Publisher of Stephen King and Dean Koontz translations since 1991.",
	})
	if err != nil {
		return err
	}

	king, err := app.Authors.Create(ctx, catalog.AuthorInput{
		FullName:    "Stephen King",
		DateOfBirth: date(1947, time.September, 21),
		Biography:   "American author of horror, suspense and fantasy novels.",
	})
	if err != nil {
		return err
	}
	talev, err := app.Authors.Create(ctx, catalog.AuthorInput{
		FullName:    "Dimitar Talev",
		DateOfBirth: date(1898, time.September, 1),
		DateOfDeath: date(1966, time.October, 20),
		Biography:   "Bulgarian novelist and journalist, author of the Prespa tetralogy.",
	})
	if err != nil {
		return err
	}
	if _, err := app.Authors.Create(ctx, catalog.AuthorInput{
		FullName:    "Ivan Vazov",
		DateOfBirth: date(1850, time.July, 9),
		DateOfDeath: date(1921, time.September, 22),
		Biography:   "Bulgarian poet, novelist and playwright.",
	}); err != nil {
		return err
	}

	books := []catalog.BookInput{
		{
			Title: "The Iron Candlestick", ISBN: "9789540907765",
			Language: "Bulgarian", Genre: "History", Type: string(entities.BookTypePhysical),
			AuthorID: talev.ID, PublisherID: zahari.ID,
		},
		{
			Title: "The Dark Tower I: The Gunslinger", ISBN: "9789544094003",
			ReleaseDate: date(2019, time.June, 19),
			Language:    "Bulgarian", Genre: "Thriller", Type: string(entities.BookTypePhysical),
			AuthorID: king.ID, PublisherID: pleiad.ID,
		},
	}
	for _, in := range books {
		if _, err := app.Books.Create(ctx, in); err != nil {
			return fmt.Errorf("create book %q: %w", in.Title, err)
		}
	}
	fmt.Fprintf(cmd.out, "Created 2 publishers, 3 authors and %d books\n", len(books))
	return nil
}

func randomPassword() (string, error) {
	buf := make([]byte, 9)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate password: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func date(year int, month time.Month, day int) *time.Time {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &t
}
