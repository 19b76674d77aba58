// Package cli implements the dueskeeperctl administration commands. Every
// command opens the same state core the daemon uses, applies its mutation
// and flushes replication before exiting.
package cli

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/dueskeeper/dueskeeper/internal/app"
	"github.com/dueskeeper/dueskeeper/internal/config"
	"github.com/dueskeeper/dueskeeper/internal/identity"
	"github.com/dueskeeper/dueskeeper/internal/state"
	"github.com/dueskeeper/dueskeeper/internal/store"
	"github.com/dueskeeper/dueskeeper/internal/textgen"
)

var monthRe = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// App is the command-line front end.
type App struct {
	cfg *config.Config
	in  *bufio.Reader
	out io.Writer

	// gen is lazily built from config when nil. Tests inject a fake.
	gen textgen.Generator
}

func NewApp(cfg *config.Config) *App {
	return &App{
		cfg: cfg,
		in:  bufio.NewReader(os.Stdin),
		out: os.Stdout,
	}
}

const usage = `usage: dueskeeperctl <command> [flags]

commands:
  adduser    -login L [-token T]            register a member
  activate   -login L [-token T]            reactivate a member
  deactivate -login L [-token T]            deactivate a member
  remove     -login L [-token T]            soft-delete a member
  pay        -login L -month YYYY-MM [-amount N] [-method M] [-notes S] [-token T]
  list                                      print members and their last paid month
  audit      [-n N]                         print recent audit entries
  token      -login L [-ttl D]              issue a signed actor token
  remind     -month YYYY-MM                 draft a dues reminder for unpaid members
`

// Run opens the state core and dispatches the command. Replication is
// flushed before returning.
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(a.out, usage)
		return fmt.Errorf("no command given")
	}

	core, err := app.NewApp(ctx, a.cfg)
	if err != nil {
		return err
	}
	defer core.Shutdown()

	return a.runCommand(ctx, core.Store(), args)
}

func (a *App) runCommand(ctx context.Context, st *store.Store, args []string) error {
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "adduser":
		return a.cmdAddUser(ctx, st, rest)
	case "activate":
		return a.cmdSetActive(ctx, st, rest, true)
	case "deactivate":
		return a.cmdSetActive(ctx, st, rest, false)
	case "remove":
		return a.cmdRemove(ctx, st, rest)
	case "pay":
		return a.cmdPay(ctx, st, rest)
	case "list":
		return a.cmdList(st)
	case "audit":
		return a.cmdAudit(st, rest)
	case "token":
		return a.cmdToken(st, rest)
	case "remind":
		return a.cmdRemind(ctx, st, rest)
	default:
		fmt.Fprint(a.out, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// actor resolves the acting identity for audit entries. A signed token names
// the actor, otherwise mutations are attributed to the local admin.
func (a *App) actor(token string) (string, error) {
	if token == "" {
		return "admin", nil
	}
	if a.cfg.SecretKey == "" {
		return "", fmt.Errorf("token given but no signing key configured")
	}
	return identity.NewTokenActor([]byte(a.cfg.SecretKey)).Actor(token)
}

func (a *App) cmdAddUser(ctx context.Context, st *store.Store, args []string) error {
	fs := flag.NewFlagSet("adduser", flag.ContinueOnError)
	login := fs.String("login", "", "member login")
	token := fs.String("token", "", "actor token")
	if err := fs.Parse(args); err != nil {
		return err
	}

	actor, err := a.actor(*token)
	if err != nil {
		return err
	}

	pw, err := GetPassword(a.out)
	if err != nil {
		return err
	}

	u, err := st.AddUser(ctx, actor, *login, string(pw))
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "added %s (%s)\n", u.Login, u.ID)
	return nil
}

func (a *App) cmdSetActive(ctx context.Context, st *store.Store, args []string, active bool) error {
	fs := flag.NewFlagSet("setactive", flag.ContinueOnError)
	login := fs.String("login", "", "member login")
	token := fs.String("token", "", "actor token")
	if err := fs.Parse(args); err != nil {
		return err
	}

	actor, err := a.actor(*token)
	if err != nil {
		return err
	}

	u := st.Snapshot().UserByLogin(*login)
	if u == nil {
		return fmt.Errorf("no member with login %q", *login)
	}

	if err := st.SetActive(ctx, actor, u.ID, active); err != nil {
		return err
	}

	verb := "deactivated"
	if active {
		verb = "activated"
	}
	fmt.Fprintf(a.out, "%s %s\n", verb, u.Login)
	return nil
}

func (a *App) cmdRemove(ctx context.Context, st *store.Store, args []string) error {
	fs := flag.NewFlagSet("remove", flag.ContinueOnError)
	login := fs.String("login", "", "member login")
	token := fs.String("token", "", "actor token")
	if err := fs.Parse(args); err != nil {
		return err
	}

	actor, err := a.actor(*token)
	if err != nil {
		return err
	}

	u := st.Snapshot().UserByLogin(*login)
	if u == nil {
		return fmt.Errorf("no member with login %q", *login)
	}

	if err := st.SoftDeleteUser(ctx, actor, u.ID); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "removed %s\n", u.Login)
	return nil
}

func (a *App) cmdPay(ctx context.Context, st *store.Store, args []string) error {
	fs := flag.NewFlagSet("pay", flag.ContinueOnError)
	login := fs.String("login", "", "member login")
	month := fs.String("month", "", "dues month, YYYY-MM")
	amount := fs.Float64("amount", 0, "amount paid")
	method := fs.String("method", "", "payment method")
	notes := fs.String("notes", "", "free-form note")
	token := fs.String("token", "", "actor token")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if !monthRe.MatchString(*month) {
		return fmt.Errorf("month must be YYYY-MM, got %q", *month)
	}

	actor, err := a.actor(*token)
	if err != nil {
		return err
	}

	u := st.Snapshot().UserByLogin(*login)
	if u == nil {
		return fmt.Errorf("no member with login %q", *login)
	}

	p, err := st.RecordPayment(ctx, actor, state.Payment{
		UserID: u.ID,
		Month:  *month,
		Amount: *amount,
		Method: *method,
		Notes:  *notes,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "recorded %s for %s (%s)\n", p.Month, u.Login, p.ID)
	return nil
}

func (a *App) cmdList(st *store.Store) error {
	doc := st.Snapshot()

	lastPaid := make(map[string]string, len(doc.Users))
	for _, p := range doc.Payments {
		if p.Month > lastPaid[p.UserID] {
			lastPaid[p.UserID] = p.Month
		}
	}

	fmt.Fprintf(a.out, "%-20s %-8s %-10s %s\n", "LOGIN", "ACTIVE", "LAST PAID", "CREATED")
	for _, u := range doc.Users {
		if u.IsDeleted {
			continue
		}
		paid := lastPaid[u.ID]
		if paid == "" {
			paid = "-"
		}
		fmt.Fprintf(a.out, "%-20s %-8t %-10s %s\n", u.Login, u.IsActive, paid, u.CreatedAt)
	}
	return nil
}

func (a *App) cmdAudit(st *store.Store, args []string) error {
	fs := flag.NewFlagSet("audit", flag.ContinueOnError)
	n := fs.Int("n", 20, "number of entries")
	if err := fs.Parse(args); err != nil {
		return err
	}

	doc := st.Snapshot()
	entries := doc.Audit
	if len(entries) > *n {
		entries = entries[len(entries)-*n:]
	}

	for _, e := range entries {
		fmt.Fprintf(a.out, "%s  %-16s %-38s %s\n", e.At, e.Action, e.Target, e.Details)
	}
	return nil
}

func (a *App) cmdToken(st *store.Store, args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	login := fs.String("login", "", "actor login")
	ttl := fs.Duration("ttl", 24*time.Hour, "token validity")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if a.cfg.SecretKey == "" {
		return fmt.Errorf("no signing key configured")
	}
	if st.Snapshot().UserByLogin(*login) == nil {
		return fmt.Errorf("no member with login %q", *login)
	}

	tok, err := identity.GenerateToken(*login, []byte(a.cfg.SecretKey), *ttl)
	if err != nil {
		return err
	}

	fmt.Fprintln(a.out, tok)
	return nil
}

func (a *App) cmdRemind(ctx context.Context, st *store.Store, args []string) error {
	fs := flag.NewFlagSet("remind", flag.ContinueOnError)
	month := fs.String("month", "", "dues month, YYYY-MM")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if !monthRe.MatchString(*month) {
		return fmt.Errorf("month must be YYYY-MM, got %q", *month)
	}

	doc := st.Snapshot()

	paid := make(map[string]bool)
	for _, p := range doc.Payments {
		if p.Month == *month {
			paid[p.UserID] = true
		}
	}

	var unpaid []string
	for _, u := range doc.Users {
		if u.IsDeleted || !u.IsActive || paid[u.ID] {
			continue
		}
		unpaid = append(unpaid, u.Login)
	}

	if len(unpaid) == 0 {
		fmt.Fprintf(a.out, "everyone has paid for %s\n", *month)
		return nil
	}

	gen, err := a.generator(ctx)
	if err != nil {
		return err
	}

	prompt := fmt.Sprintf(
		"Write a short, friendly reminder that membership dues for %s are outstanding. "+
			"Address the group, not individuals. Members behind on dues: %s.",
		*month, strings.Join(unpaid, ", "))

	text, err := gen.Generate(ctx, prompt)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "unpaid for %s: %s\n\n%s\n", *month, strings.Join(unpaid, ", "), text)
	return nil
}

func (a *App) generator(ctx context.Context) (textgen.Generator, error) {
	if a.gen != nil {
		return a.gen, nil
	}
	gen, err := textgen.NewGenAI(ctx, a.cfg.TextGenAPIKey, a.cfg.TextGenModel)
	if err != nil {
		return nil, err
	}
	a.gen = gen
	return gen, nil
}
