package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"

	"todohive/internal/client"
)

const usage = `todoctl - todohive command line client

Usage:
  todoctl [-server URL] <command> [arguments]

Auth commands:
  register -name NAME -email EMAIL -password PASS
  verify   -otp CODE [-email EMAIL]
  resend   [-email EMAIL]
  login    -email EMAIL -password PASS
  logout

Todo commands:
  list
  add    -title TITLE [-desc TEXT]
  done   ID
  undone ID
  edit   ID [-title TITLE] [-desc TEXT]
  rm     ID
  search QUERY
  stats

Other:
  health
`

func main() {
	serverURL := flag.String("server", envOr("TODOHIVE_SERVER", "http://localhost:8081"), "todohive server base URL")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessionPath, err := client.DefaultSessionPath()
	if err != nil {
		fatal(err)
	}
	session, err := client.OpenSessionStore(sessionPath)
	if err != nil {
		fatal(err)
	}
	defer session.Close()

	c := client.New(*serverURL, session)

	cmd, args := flag.Arg(0), flag.Args()[1:]
	if err := run(ctx, c, session, cmd, args); err != nil {
		fatal(err)
	}
}

func run(ctx context.Context, c *client.Client, session *client.SessionStore, cmd string, args []string) error {
	switch cmd {
	case "register":
		fs := flag.NewFlagSet("register", flag.ExitOnError)
		name := fs.String("name", "", "display name")
		email := fs.String("email", "", "email address")
		password := fs.String("password", "", "password (min 6 chars)")
		fs.Parse(args)
		result, err := c.Register(ctx, *name, *email, *password)
		if err != nil {
			return err
		}
		fmt.Println(result.Message)
		fmt.Printf("Next: todoctl verify -otp CODE (code sent to %s)\n", result.Email)
		return nil

	case "verify":
		fs := flag.NewFlagSet("verify", flag.ExitOnError)
		email := fs.String("email", "", "email address (defaults to the pending one)")
		otp := fs.String("otp", "", "six digit verification code")
		fs.Parse(args)
		addr, err := resolveEmail(ctx, session, *email)
		if err != nil {
			return err
		}
		msg, err := c.Verify(ctx, addr, *otp)
		if err != nil {
			return err
		}
		fmt.Println(msg)
		return nil

	case "resend":
		fs := flag.NewFlagSet("resend", flag.ExitOnError)
		email := fs.String("email", "", "email address (defaults to the pending one)")
		fs.Parse(args)
		addr, err := resolveEmail(ctx, session, *email)
		if err != nil {
			return err
		}
		msg, err := c.ResendVerification(ctx, addr)
		if err != nil {
			return err
		}
		fmt.Println(msg)
		return nil

	case "login":
		fs := flag.NewFlagSet("login", flag.ExitOnError)
		email := fs.String("email", "", "email address")
		password := fs.String("password", "", "password")
		fs.Parse(args)
		user, err := c.Login(ctx, *email, *password)
		if err != nil {
			return err
		}
		fmt.Printf("Logged in as %s <%s>\n", user.Name, user.Email)
		return nil

	case "logout":
		if err := c.Logout(ctx); err != nil {
			return err
		}
		fmt.Println("Logged out")
		return nil

	case "list":
		todos, err := c.Todos(ctx)
		if err != nil {
			return err
		}
		printTodos(todos)
		return nil

	case "add":
		fs := flag.NewFlagSet("add", flag.ExitOnError)
		title := fs.String("title", "", "todo title")
		desc := fs.String("desc", "", "optional description")
		fs.Parse(args)
		todo, err := c.CreateTodo(ctx, *title, *desc)
		if err != nil {
			return err
		}
		fmt.Printf("Created #%d %s\n", todo.ID, todo.Title)
		return nil

	case "done", "undone":
		id, err := parseID(args)
		if err != nil {
			return err
		}
		completed := cmd == "done"
		todo, err := c.UpdateTodo(ctx, id, client.TodoPatch{Completed: &completed})
		if err != nil {
			return err
		}
		fmt.Printf("#%d %s [%s]\n", todo.ID, todo.Title, statusMark(todo.Completed))
		return nil

	case "edit":
		if len(args) < 1 {
			return fmt.Errorf("usage: todoctl edit ID [-title TITLE] [-desc TEXT]")
		}
		id, err := parseID(args[:1])
		if err != nil {
			return err
		}
		fs := flag.NewFlagSet("edit", flag.ExitOnError)
		title := fs.String("title", "", "new title")
		desc := fs.String("desc", "", "new description")
		fs.Parse(args[1:])

		var patch client.TodoPatch
		fs.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "title":
				patch.Title = title
			case "desc":
				patch.Description = desc
			}
		})
		todo, err := c.UpdateTodo(ctx, id, patch)
		if err != nil {
			return err
		}
		fmt.Printf("Updated #%d %s\n", todo.ID, todo.Title)
		return nil

	case "rm":
		id, err := parseID(args)
		if err != nil {
			return err
		}
		if err := c.DeleteTodo(ctx, id); err != nil {
			return err
		}
		fmt.Printf("Deleted #%d\n", id)
		return nil

	case "search":
		if len(args) < 1 {
			return fmt.Errorf("usage: todoctl search QUERY")
		}
		todos, err := c.SearchTodos(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}
		printTodos(todos)
		return nil

	case "stats":
		stats, err := c.TodoStats(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("total: %d  completed: %d  pending: %d  completion: %.0f%%\n",
			stats.Total, stats.Completed, stats.Pending, stats.CompletionRate)
		return nil

	case "health":
		status, err := c.Health(ctx)
		if err != nil {
			return err
		}
		fmt.Println(status)
		return nil

	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// resolveEmail 在未显式传 -email 时回退到注册时记下的待验证邮箱。
func resolveEmail(ctx context.Context, session *client.SessionStore, email string) (string, error) {
	if email != "" {
		return email, nil
	}
	pending, err := session.PendingEmail(ctx)
	if err != nil {
		return "", err
	}
	if pending == "" {
		return "", fmt.Errorf("no pending email found, pass -email explicitly")
	}
	return pending, nil
}

func parseID(args []string) (uint, error) {
	if len(args) < 1 {
		return 0, fmt.Errorf("missing todo ID")
	}
	id, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid todo ID %q", args[0])
	}
	return uint(id), nil
}

func printTodos(todos []client.Todo) {
	if len(todos) == 0 {
		fmt.Println("No todos.")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tTITLE\tDESCRIPTION")
	for _, todo := range todos {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", todo.ID, statusMark(todo.Completed), todo.Title, todo.Description)
	}
	w.Flush()
}

func statusMark(completed bool) string {
	if completed {
		return "done"
	}
	return "open"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
